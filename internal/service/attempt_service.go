package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/repository"
	"github.com/stemsi/exstem-session/internal/response"
)

var ErrAttemptNotFound = errors.New("attempt not found")

type attemptStore interface {
	Create(ctx context.Context, a *model.AttemptRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.AttemptRecord, error)
	ListByExamAndUser(ctx context.Context, examID uuid.UUID, userID string) ([]model.AttemptRecord, error)
	ListByExamAndUserPaginated(ctx context.Context, examID uuid.UUID, userID string, limit, offset int) ([]model.AttemptRecord, int, error)
}

type statsReader interface {
	Get(ctx context.Context, examID uuid.UUID, userID string) (*model.AttemptStats, error)
}

// AttemptService persists completed attempts and reads attempt history.
type AttemptService struct {
	attempts attemptStore
	stats    statsReader
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(attempts attemptStore, stats statsReader, rdb *redis.Client, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		attempts: attempts,
		stats:    stats,
		rdb:      rdb,
		log:      log.With().Str("component", "attempt_service").Logger(),
	}
}

// CreateAttemptRecord durably appends one attempt and queues its stats refresh.
// Only the insert decides success; a failed enqueue is logged.
func (s *AttemptService) CreateAttemptRecord(ctx context.Context, record *model.AttemptRecord) error {
	if err := s.attempts.Create(ctx, record); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	raw, _ := json.Marshal(repository.StatsKey{ExamID: record.ExamID, UserID: record.UserID})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistAttemptStatsQueue, raw).Err(); err != nil {
		s.log.Warn().
			Err(err).
			Str("attempt_id", record.ID.String()).
			Msg("Failed to enqueue attempt stats refresh")
	}
	return nil
}

// LoadAttemptHistory returns every attempt of a learner on an exam, newest first.
func (s *AttemptService) LoadAttemptHistory(ctx context.Context, examID uuid.UUID, userID string) ([]model.AttemptRecord, error) {
	return s.attempts.ListByExamAndUser(ctx, examID, userID)
}

// ListHistory is the paginated variant of LoadAttemptHistory.
func (s *AttemptService) ListHistory(ctx context.Context, examID uuid.UUID, userID string, page, perPage int) ([]model.AttemptRecord, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	attempts, total, err := s.attempts.ListByExamAndUserPaginated(ctx, examID, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if attempts == nil {
		attempts = []model.AttemptRecord{}
	}
	return attempts, response.NewPagination(page, perPage, total), nil
}

// GetByID returns one stored attempt.
func (s *AttemptService) GetByID(ctx context.Context, id uuid.UUID) (*model.AttemptRecord, error) {
	a, err := s.attempts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, err
	}
	return a, nil
}

// Stats returns the learner's aggregate for an exam as last refreshed by the
// stats worker. A learner without attempts gets a zero aggregate.
func (s *AttemptService) Stats(ctx context.Context, examID uuid.UUID, userID string) (*model.AttemptStats, error) {
	st, err := s.stats.Get(ctx, examID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.AttemptStats{ExamID: examID, UserID: userID}, nil
		}
		return nil, err
	}
	return st, nil
}
