package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-session/internal/model"
)

const attemptColumns = `id, exam_id, user_id, submitted_at, time_spent, score, total_score,
	correct_answers, total_questions, answers, passed, auto_submitted`

// AttemptRepository handles attempt record data access. Records are append-only:
// there is no update or delete.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create inserts a completed attempt. The record ID is generated by the caller,
// so a retried insert of the same record hits the primary key instead of duplicating.
func (r *AttemptRepository) Create(ctx context.Context, a *model.AttemptRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_attempts (`+attemptColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO NOTHING`,
		a.ID, a.ExamID, a.UserID, a.SubmittedAt, a.TimeSpent, a.Score, a.TotalScore,
		a.CorrectAnswers, a.TotalQuestions, a.Answers, a.Passed, a.AutoSubmitted,
	)
	return err
}

// GetByID retrieves one attempt.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.AttemptRecord, error) {
	a := &model.AttemptRecord{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1`, id,
	).Scan(&a.ID, &a.ExamID, &a.UserID, &a.SubmittedAt, &a.TimeSpent, &a.Score, &a.TotalScore,
		&a.CorrectAnswers, &a.TotalQuestions, &a.Answers, &a.Passed, &a.AutoSubmitted)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListByExamAndUser retrieves a learner's attempts for one exam, newest first.
func (r *AttemptRepository) ListByExamAndUser(ctx context.Context, examID uuid.UUID, userID string) ([]model.AttemptRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE exam_id = $1 AND user_id = $2
		 ORDER BY submitted_at DESC`, examID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := []model.AttemptRecord{}
	for rows.Next() {
		var a model.AttemptRecord
		if err := rows.Scan(&a.ID, &a.ExamID, &a.UserID, &a.SubmittedAt, &a.TimeSpent, &a.Score, &a.TotalScore,
			&a.CorrectAnswers, &a.TotalQuestions, &a.Answers, &a.Passed, &a.AutoSubmitted); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ListByExamAndUserPaginated is ListByExamAndUser with LIMIT/OFFSET and a total count.
func (r *AttemptRepository) ListByExamAndUserPaginated(ctx context.Context, examID uuid.UUID, userID string, limit, offset int) ([]model.AttemptRecord, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_attempts WHERE exam_id = $1 AND user_id = $2`,
		examID, userID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE exam_id = $1 AND user_id = $2
		 ORDER BY submitted_at DESC
		 LIMIT $3 OFFSET $4`, examID, userID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	attempts := []model.AttemptRecord{}
	for rows.Next() {
		var a model.AttemptRecord
		if err := rows.Scan(&a.ID, &a.ExamID, &a.UserID, &a.SubmittedAt, &a.TimeSpent, &a.Score, &a.TotalScore,
			&a.CorrectAnswers, &a.TotalQuestions, &a.Answers, &a.Passed, &a.AutoSubmitted); err != nil {
			return nil, 0, err
		}
		attempts = append(attempts, a)
	}
	return attempts, total, rows.Err()
}
