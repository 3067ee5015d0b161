package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-session/internal/model"
)

// SessionStore joins the exam and attempt services into the store an exam
// session runs against.
type SessionStore struct {
	exams    *ExamService
	attempts *AttemptService
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(exams *ExamService, attempts *AttemptService) *SessionStore {
	return &SessionStore{exams: exams, attempts: attempts}
}

func (s *SessionStore) LoadExam(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	return s.exams.LoadExam(ctx, examID)
}

func (s *SessionStore) LoadAttemptHistory(ctx context.Context, examID uuid.UUID, userID string) ([]model.AttemptRecord, error) {
	return s.attempts.LoadAttemptHistory(ctx, examID, userID)
}

func (s *SessionStore) CreateAttemptRecord(ctx context.Context, record *model.AttemptRecord) error {
	return s.attempts.CreateAttemptRecord(ctx, record)
}
