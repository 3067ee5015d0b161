package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-session/internal/model"
)

// StatsKey identifies one learner's aggregate for one exam.
type StatsKey struct {
	ExamID uuid.UUID `json:"exam_id"`
	UserID string    `json:"user_id"`
}

// AttemptStatsRepository maintains exam_attempt_stats, a per-(exam, user)
// aggregate derived from exam_attempts.
type AttemptStatsRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptStatsRepository creates a new AttemptStatsRepository.
func NewAttemptStatsRepository(pool *pgxpool.Pool) *AttemptStatsRepository {
	return &AttemptStatsRepository{pool: pool}
}

// Recomputing from exam_attempts keeps the upsert idempotent, so a requeued
// key is harmless.
const refreshStatsQuery = `
	INSERT INTO exam_attempt_stats
		(exam_id, user_id, attempt_count, best_score, last_score, ever_passed, last_attempt_at)
	SELECT
		a.exam_id,
		a.user_id,
		COUNT(*),
		MAX(a.score),
		(ARRAY_AGG(a.score ORDER BY a.submitted_at DESC))[1],
		BOOL_OR(a.passed),
		MAX(a.submitted_at)
	FROM exam_attempts a
	JOIN (
		SELECT DISTINCT u.exam_id, u.user_id
		FROM UNNEST($1::uuid[], $2::text[]) AS u (exam_id, user_id)
	) AS k ON k.exam_id = a.exam_id AND k.user_id = a.user_id
	GROUP BY a.exam_id, a.user_id
	ON CONFLICT (exam_id, user_id) DO UPDATE
	SET attempt_count   = EXCLUDED.attempt_count,
	    best_score      = EXCLUDED.best_score,
	    last_score      = EXCLUDED.last_score,
	    ever_passed     = EXCLUDED.ever_passed,
	    last_attempt_at = EXCLUDED.last_attempt_at
`

// RefreshBatch recomputes the aggregates of every key in one statement.
func (r *AttemptStatsRepository) RefreshBatch(ctx context.Context, keys []StatsKey) error {
	if len(keys) == 0 {
		return nil
	}
	examIDs := make([]uuid.UUID, len(keys))
	userIDs := make([]string, len(keys))
	for i, k := range keys {
		examIDs[i] = k.ExamID
		userIDs[i] = k.UserID
	}
	_, err := r.pool.Exec(ctx, refreshStatsQuery, examIDs, userIDs)
	return err
}

// Refresh recomputes a single aggregate.
func (r *AttemptStatsRepository) Refresh(ctx context.Context, key StatsKey) error {
	return r.RefreshBatch(ctx, []StatsKey{key})
}

// Get returns the aggregate for a learner on an exam.
func (r *AttemptStatsRepository) Get(ctx context.Context, examID uuid.UUID, userID string) (*model.AttemptStats, error) {
	s := &model.AttemptStats{}
	err := r.pool.QueryRow(ctx,
		`SELECT exam_id, user_id, attempt_count, best_score, last_score, ever_passed, last_attempt_at
		 FROM exam_attempt_stats
		 WHERE exam_id = $1 AND user_id = $2`, examID, userID,
	).Scan(&s.ExamID, &s.UserID, &s.AttemptCount, &s.BestScore, &s.LastScore, &s.EverPassed, &s.LastAttemptAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}
