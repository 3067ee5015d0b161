// Package scoring compares an answer sheet against an exam's answer key.
// Every function here is pure and deterministic.
package scoring

import (
	"errors"
	"fmt"

	"github.com/stemsi/exstem-session/internal/model"
)

// PassThreshold is the minimum score/totalQuestions ratio that counts as a pass.
const PassThreshold = 0.70

// ErrInvalidExam is returned by Validate for definitions that cannot be scored.
var ErrInvalidExam = errors.New("invalid exam definition")

// Outcome bundles the scoring results of one submission.
type Outcome struct {
	Score          int  `json:"score"`
	TotalScore     int  `json:"total_score"`
	CorrectAnswers int  `json:"correct_answers"`
	TotalQuestions int  `json:"total_questions"`
	Passed         bool `json:"passed"`
}

// CountCorrect returns the number of indices where the answer equals the
// question's answer exactly. No normalization, no partial credit.
func CountCorrect(answers []string, questions []model.Question) int {
	n := len(questions)
	if len(answers) < n {
		n = len(answers)
	}
	correct := 0
	for i := 0; i < n; i++ {
		if answers[i] == questions[i].Answer {
			correct++
		}
	}
	return correct
}

// Score scales the correct count to maxScore, rounding half up.
// It returns 0 for an empty question set; callers must reject those earlier.
func Score(answers []string, questions []model.Question, maxScore int) int {
	total := len(questions)
	if total == 0 || maxScore <= 0 {
		return 0
	}
	correct := CountCorrect(answers, questions)
	// round(correct/total*maxScore) with half-up, kept in integers.
	return (2*correct*maxScore + total) / (2 * total)
}

// Passed applies the pass rule: score / totalQuestions >= PassThreshold.
// The ratio uses the question count, not maxScore.
func Passed(score, totalQuestions int) bool {
	if totalQuestions <= 0 {
		return false
	}
	return float64(score)/float64(totalQuestions) >= PassThreshold
}

// Evaluate runs the whole scoring pipeline once.
func Evaluate(answers []string, exam *model.ExamDefinition) Outcome {
	score := Score(answers, exam.Questions, exam.MaxScore)
	return Outcome{
		Score:          score,
		TotalScore:     exam.MaxScore,
		CorrectAnswers: CountCorrect(answers, exam.Questions),
		TotalQuestions: len(exam.Questions),
		Passed:         Passed(score, len(exam.Questions)),
	}
}

// Validate reports whether exam can be taken and scored meaningfully.
func Validate(exam *model.ExamDefinition) error {
	if exam == nil {
		return fmt.Errorf("%w: missing definition", ErrInvalidExam)
	}
	if len(exam.Questions) == 0 {
		return fmt.Errorf("%w: exam has no questions", ErrInvalidExam)
	}
	if exam.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidExam)
	}
	if exam.MaxScore <= 0 {
		return fmt.Errorf("%w: max score must be positive", ErrInvalidExam)
	}
	for i := range exam.Questions {
		q := &exam.Questions[i]
		if q.IsFreeText() {
			continue
		}
		if len(q.Options) == 0 {
			return fmt.Errorf("%w: question %d has no options", ErrInvalidExam, i+1)
		}
		if !q.HasOption(q.Answer) {
			return fmt.Errorf("%w: answer of question %d is not one of its options", ErrInvalidExam, i+1)
		}
	}
	return nil
}
