package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-session/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam header by its UUID. Questions are not loaded.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	e := &model.ExamDefinition{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, duration_minutes, max_score, created_at, updated_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.DurationMinutes, &e.MaxScore, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListIDs returns every exam ID, newest first. Used for cache prewarming on startup.
func (r *ExamRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM exams ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Create inserts an exam with its questions in one transaction.
func (r *ExamRepository) Create(ctx context.Context, e *model.ExamDefinition) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO exams (id, title, duration_minutes, max_score)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		e.ID, e.Title, e.DurationMinutes, e.MaxScore,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}

	if err := insertQuestions(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Replace overwrites an existing exam and its whole question set in one
// transaction and bumps updated_at. It returns pgx.ErrNoRows when the exam
// does not exist.
func (r *ExamRepository) Replace(ctx context.Context, e *model.ExamDefinition) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`UPDATE exams
		 SET title = $2, duration_minutes = $3, max_score = $4, updated_at = NOW()
		 WHERE id = $1
		 RETURNING created_at, updated_at`,
		e.ID, e.Title, e.DurationMinutes, e.MaxScore,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE exam_id = $1`, e.ID); err != nil {
		return fmt.Errorf("delete questions: %w", err)
	}
	if err := insertQuestions(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// insertQuestions queues every question of e in one batch. Question order
// follows the slice; IDs are generated when zero.
func insertQuestions(ctx context.Context, tx pgx.Tx, e *model.ExamDefinition) error {
	batch := &pgx.Batch{}
	for i := range e.Questions {
		q := &e.Questions[i]
		if q.ID == uuid.Nil {
			q.ID = uuid.New()
		}
		q.OrderNum = i
		options := q.Options
		if options == nil {
			options = []string{}
		}
		batch.Queue(
			`INSERT INTO questions (id, exam_id, prompt, question_type, options, answer, order_num)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			q.ID, e.ID, q.Prompt, q.Type, options, q.Answer, q.OrderNum,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}
	return nil
}
