package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

// Domain Errors
var (
	ErrExamNotFound = errors.New("exam not found")
)

type examReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

type questionLister interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// ExamService serves exam definitions from a Redis "fast lane" backed by PostgreSQL.
type ExamService struct {
	exams     examReader
	questions questionLister
	rdb       *redis.Client
	ttl       time.Duration
	log       zerolog.Logger
}

// NewExamService creates a new ExamService. A zero ttl caches without expiry.
func NewExamService(
	exams examReader,
	questions questionLister,
	rdb *redis.Client,
	ttl time.Duration,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		exams:     exams,
		questions: questions,
		rdb:       rdb,
		ttl:       ttl,
		log:       log.With().Str("component", "exam_service").Logger(),
	}
}

// LoadExam returns the full definition, answer key included.
// Cache miss or Redis failure falls back to PostgreSQL and re-caches.
func (s *ExamService) LoadExam(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.ExamDefinitionKey(examID.String())).Bytes()
	if err == nil {
		var def model.ExamDefinition
		if err := json.Unmarshal(data, &def); err == nil {
			return &def, nil
		}
		s.log.Warn().Str("exam_id", examID.String()).Msg("Corrupt cached exam, reloading")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Redis read failed, falling back to PostgreSQL")
	}

	def, err := s.loadFromDB(ctx, examID)
	if err != nil {
		return nil, err
	}

	// Self-heal: put it back so the next load is fast.
	if err := s.cache(ctx, def); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to cache exam")
	}
	return def, nil
}

// GetPaper returns the learner-facing paper without the answer key.
func (s *ExamService) GetPaper(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.ExamPaperKey(examID.String())).Bytes()
	if err == nil {
		var paper model.ExamPaper
		if err := json.Unmarshal(data, &paper); err == nil {
			return &paper, nil
		}
	}

	def, err := s.LoadExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	paper := def.Paper()
	return &paper, nil
}

// WarmExamCache loads one exam from PostgreSQL into Redis.
func (s *ExamService) WarmExamCache(ctx context.Context, examID uuid.UUID) error {
	def, err := s.loadFromDB(ctx, examID)
	if err != nil {
		return err
	}
	return s.cache(ctx, def)
}

// PrewarmAllCaches loads every exam into Redis on application startup.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	ids, err := s.exams.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("list exams: %w", err)
	}

	if len(ids) == 0 {
		s.log.Info().Msg("No exams to prewarm")
		return nil
	}

	warmed := 0
	for _, id := range ids {
		if err := s.WarmExamCache(ctx, id); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", id.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(ids)).
		Msg("Prewarming complete")
	return nil
}

// Invalidate drops the cached definition and paper of an exam.
func (s *ExamService) Invalidate(ctx context.Context, examID uuid.UUID) error {
	id := examID.String()
	if err := s.rdb.Del(ctx, config.CacheKey.ExamDefinitionKey(id), config.CacheKey.ExamPaperKey(id)).Err(); err != nil {
		return fmt.Errorf("invalidate exam cache: %w", err)
	}
	return nil
}

// Refresh replaces the cached copy of an exam that was changed in
// PostgreSQL. The old entry is dropped first, so a failed reload leaves
// readers on the database path instead of the stale definition.
func (s *ExamService) Refresh(ctx context.Context, examID uuid.UUID) error {
	if err := s.Invalidate(ctx, examID); err != nil {
		return err
	}
	return s.WarmExamCache(ctx, examID)
}

func (s *ExamService) loadFromDB(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	def, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	questions, err := s.questions.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	def.Questions = questions
	return def, nil
}

func (s *ExamService) cache(ctx context.Context, def *model.ExamDefinition) error {
	defJSON, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal exam: %w", err)
	}
	paperJSON, err := json.Marshal(def.Paper())
	if err != nil {
		return fmt.Errorf("marshal paper: %w", err)
	}

	id := def.ID.String()
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.ExamDefinitionKey(id), defJSON, s.ttl)
	pipe.Set(ctx, config.CacheKey.ExamPaperKey(id), paperJSON, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("exam_id", id).
		Int("questions", len(def.Questions)).
		Msg("Cache warmed")
	return nil
}
