package model

import (
	"time"

	"github.com/google/uuid"
)

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeFreeText       QuestionType = "FREE_TEXT"
)

// ExamDefinition is the static question set, timing and scoring configuration
// of an exam. It is never mutated by a session.
type ExamDefinition struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	DurationMinutes int        `json:"duration_minutes"`
	MaxScore        int        `json:"max_score"`
	Questions       []Question `json:"questions"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DurationSeconds returns the full time limit in seconds.
func (e *ExamDefinition) DurationSeconds() int {
	return e.DurationMinutes * 60
}

// Question is a single exam question. Its index inside ExamDefinition.Questions
// is its identity within a session.
type Question struct {
	ID       uuid.UUID    `json:"id"`
	Prompt   string       `json:"prompt"`
	Type     QuestionType `json:"question_type"`
	Options  []string     `json:"options"`
	Answer   string       `json:"answer"`
	OrderNum int          `json:"order_num"`
}

// IsFreeText reports whether the question takes a typed answer instead of a choice.
func (q *Question) IsFreeText() bool {
	return q.Type == QuestionTypeFreeText || (q.Type == "" && len(q.Options) == 0)
}

// HasOption reports whether v is one of the question's options.
func (q *Question) HasOption(v string) bool {
	for _, o := range q.Options {
		if o == v {
			return true
		}
	}
	return false
}

// ExamPaper is the learner-facing view of an exam (no correct answers).
type ExamPaper struct {
	ExamID          uuid.UUID            `json:"exam_id"`
	Title           string               `json:"title"`
	DurationMinutes int                  `json:"duration_minutes"`
	MaxScore        int                  `json:"max_score"`
	Questions       []QuestionForStudent `json:"questions"`
}

// QuestionForStudent is a question without the correct answer.
type QuestionForStudent struct {
	Index   int          `json:"index"`
	Prompt  string       `json:"prompt"`
	Type    QuestionType `json:"question_type"`
	Options []string     `json:"options"`
}

// Paper strips the answer key from the definition.
func (e *ExamDefinition) Paper() ExamPaper {
	qs := make([]QuestionForStudent, len(e.Questions))
	for i, q := range e.Questions {
		qs[i] = QuestionForStudent{
			Index:   i,
			Prompt:  q.Prompt,
			Type:    q.Type,
			Options: q.Options,
		}
	}
	return ExamPaper{
		ExamID:          e.ID,
		Title:           e.Title,
		DurationMinutes: e.DurationMinutes,
		MaxScore:        e.MaxScore,
		Questions:       qs,
	}
}
