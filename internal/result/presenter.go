package result

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/stemsi/exstem-session/internal/model"
)

// Action is one of the follow-ups a result view offers.
type Action string

const (
	ActionRetry Action = "retry"
	ActionClose Action = "close"
)

// Summary is the headline outcome of a finished attempt.
type Summary struct {
	AttemptID      string   `json:"attempt_id"`
	ExamTitle      string   `json:"exam_title"`
	Score          int      `json:"score"`
	TotalScore     int      `json:"total_score"`
	CorrectAnswers int      `json:"correct_answers"`
	TotalQuestions int      `json:"total_questions"`
	TimeSpent      int      `json:"time_spent_minutes"`
	Passed         bool     `json:"passed"`
	AutoSubmitted  bool     `json:"auto_submitted"`
	Actions        []Action `json:"actions"`
}

// Item compares one answer with the key.
type Item struct {
	Index         int    `json:"index"`
	Prompt        string `json:"prompt"`
	Answer        string `json:"answer"`
	CorrectAnswer string `json:"correct_answer"`
	Correct       bool   `json:"correct"`
}

// Presenter renders a completed attempt. It holds copies and exposes no way
// to change the attempt.
type Presenter struct {
	record model.AttemptRecord
	exam   *model.ExamDefinition
}

// New creates a presenter for record. exam may be nil, in which case the
// breakdown is empty. The breakdown is also empty when exam was changed after
// the attempt was submitted, since its key no longer matches the answers.
func New(record model.AttemptRecord, exam *model.ExamDefinition) *Presenter {
	record.Answers = append([]string(nil), record.Answers...)
	return &Presenter{record: record, exam: exam}
}

func (p *Presenter) Summary() Summary {
	s := Summary{
		AttemptID:      p.record.ID.String(),
		Score:          p.record.Score,
		TotalScore:     p.record.TotalScore,
		CorrectAnswers: p.record.CorrectAnswers,
		TotalQuestions: p.record.TotalQuestions,
		TimeSpent:      p.record.TimeSpent,
		Passed:         p.record.Passed,
		AutoSubmitted:  p.record.AutoSubmitted,
		Actions:        []Action{ActionRetry, ActionClose},
	}
	if p.exam != nil {
		s.ExamTitle = p.exam.Title
	}
	return s
}

// Breakdown lists every question with the learner's answer and the key.
// Unanswered questions carry an empty answer and are incorrect.
func (p *Presenter) Breakdown() []Item {
	if p.exam == nil || p.examChanged() {
		return nil
	}
	items := make([]Item, len(p.exam.Questions))
	for i, q := range p.exam.Questions {
		var given string
		if i < len(p.record.Answers) {
			given = p.record.Answers[i]
		}
		items[i] = Item{
			Index:         i,
			Prompt:        q.Prompt,
			Answer:        given,
			CorrectAnswer: q.Answer,
			Correct:       given == q.Answer,
		}
	}
	return items
}

func (p *Presenter) examChanged() bool {
	if p.exam.UpdatedAt.After(p.record.SubmittedAt) {
		return true
	}
	return p.record.TotalQuestions > 0 && len(p.exam.Questions) != p.record.TotalQuestions
}

// WriteSummary prints the headline to w.
func (p *Presenter) WriteSummary(w io.Writer) {
	s := p.Summary()
	verdict := color.New(color.FgRed, color.Bold).Sprint("NOT PASSED")
	if s.Passed {
		verdict = color.New(color.FgGreen, color.Bold).Sprint("PASSED")
	}

	if s.ExamTitle != "" {
		color.New(color.FgCyan).Fprintf(w, "\n=== %s ===\n", s.ExamTitle)
	}
	fmt.Fprintf(w, "Score: %d / %d  %s\n", s.Score, s.TotalScore, verdict)
	fmt.Fprintf(w, "Correct answers: %d of %d\n", s.CorrectAnswers, s.TotalQuestions)
	fmt.Fprintf(w, "Time spent: %d min\n", s.TimeSpent)
	if s.AutoSubmitted {
		color.New(color.FgYellow).Fprintln(w, "Submitted automatically when time ran out.")
	}
}

// WriteTable prints the per-question breakdown as a table.
func (p *Presenter) WriteTable(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Question", "Your Answer", "Correct Answer", "Result"})
	table.SetAutoWrapText(true)
	table.SetRowLine(false)

	for _, it := range p.Breakdown() {
		answer := it.Answer
		if answer == "" {
			answer = "-"
		}
		mark := "wrong"
		if it.Correct {
			mark = "correct"
		}
		table.Append([]string{
			strconv.Itoa(it.Index + 1),
			it.Prompt,
			answer,
			it.CorrectAnswer,
			mark,
		})
	}
	table.Render()
}
