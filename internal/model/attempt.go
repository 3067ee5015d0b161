package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptRecord is the durable outcome of one completed exam session.
// Records are append-only: created once, never updated or deleted.
type AttemptRecord struct {
	ID             uuid.UUID `json:"id"`
	ExamID         uuid.UUID `json:"exam_id"`
	UserID         string    `json:"user_id"`
	SubmittedAt    time.Time `json:"submitted_at"`
	TimeSpent      int       `json:"time_spent"` // minutes
	Score          int       `json:"score"`
	TotalScore     int       `json:"total_score"`
	CorrectAnswers int       `json:"correct_answers"`
	TotalQuestions int       `json:"total_questions"`
	Answers        []string  `json:"answers"`
	Passed         bool      `json:"passed"`
	AutoSubmitted  bool      `json:"auto_submitted"`
}

// AttemptStats is the per-(exam, user) aggregate maintained by the stats worker.
type AttemptStats struct {
	ExamID        uuid.UUID  `json:"exam_id"`
	UserID        string     `json:"user_id"`
	AttemptCount  int        `json:"attempt_count"`
	BestScore     int        `json:"best_score"`
	LastScore     int        `json:"last_score"`
	EverPassed    bool       `json:"ever_passed"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}
