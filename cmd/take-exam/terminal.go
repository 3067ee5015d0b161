package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/result"
	"github.com/stemsi/exstem-session/internal/session"
)

var errQuit = errors.New("quit")

// terminal renders session events and drives a session from typed commands.
type terminal struct {
	mu        sync.Mutex
	out       io.Writer
	grace     time.Duration
	completed chan model.AttemptRecord
}

func newTerminal(out io.Writer, grace time.Duration) *terminal {
	return &terminal{
		out:       out,
		grace:     grace,
		completed: make(chan model.AttemptRecord, 1),
	}
}

func (t *terminal) OnTick(remaining int) {
	// Every minute, then every second of the last ten.
	if remaining%60 != 0 && remaining > 10 {
		return
	}
	t.printf(color.New(color.FgYellow), "\n[%s left]\n", formatRemaining(remaining))
}

func (t *terminal) OnTimeUp() {
	t.printf(color.New(color.FgRed, color.Bold),
		"\nTime is up! Your answers are locked and will be submitted in %s.\n", t.grace)
}

func (t *terminal) OnCompleted(rec model.AttemptRecord) {
	select {
	case t.completed <- rec:
	default:
	}
}

func (t *terminal) OnSubmitFailed(err error) {
	t.printf(color.New(color.FgRed),
		"\nSaving your attempt failed (%v). Type 's' to try again.\n", err)
}

func (t *terminal) printf(c *color.Color, format string, args ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c.Fprintf(t.out, format, args...)
}

func (t *terminal) println(args ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, args...)
}

// run takes s from NOT_STARTED to a finished attempt. It returns the retry
// session, or nil when the learner closes.
func (t *terminal) run(ctx context.Context, s *session.Session, lines <-chan string) (*session.Session, error) {
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	exam := s.Exam()
	t.printHeader(exam, s.History())

	t.println("Press Enter to start, or type 'q' to quit.")
	line, err := next(ctx, lines, nil)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(line) == "q" {
		return nil, errQuit
	}
	if err := s.Start(); err != nil {
		return nil, err
	}

	cur := 0
	t.printQuestion(s, cur)
	for {
		line, err := next(ctx, lines, t.completed)
		if errors.Is(err, errCompleted) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch cmd := strings.TrimSpace(line); {
		case cmd == "":
			t.printQuestion(s, cur)
		case cmd == "?":
			t.printHelp()
		case cmd == "q":
			return nil, errQuit
		case cmd == "n":
			if cur < len(exam.Questions)-1 {
				cur++
			}
			t.printQuestion(s, cur)
		case cmd == "p":
			if cur > 0 {
				cur--
			}
			t.printQuestion(s, cur)
		case strings.HasPrefix(cmd, "g "):
			n, err := strconv.Atoi(strings.TrimSpace(cmd[2:]))
			if err != nil || n < 1 || n > len(exam.Questions) {
				t.println("No such question.")
				continue
			}
			cur = n - 1
			t.printQuestion(s, cur)
		case cmd == "c":
			t.answer(s, cur, "")
		case cmd == "s":
			if _, err := s.Submit(ctx); err != nil && !errors.Is(err, session.ErrSubmitFailed) {
				t.println(err)
			}
		default:
			value, ok := resolveAnswer(&exam.Questions[cur], cmd)
			if !ok {
				t.println("Choose an option number, or '?' for commands.")
				continue
			}
			t.answer(s, cur, value)
		}
	}

	rec, _ := s.Record()
	p := result.New(*rec, exam)
	t.mu.Lock()
	p.WriteSummary(t.out)
	fmt.Fprintln(t.out)
	p.WriteTable(t.out)
	t.mu.Unlock()

	t.println("Type 'r' to retry or anything else to close.")
	line, err = next(ctx, lines, nil)
	if err != nil || strings.TrimSpace(line) != "r" {
		return nil, nil
	}
	return s.Retry()
}

func (t *terminal) answer(s *session.Session, cur int, value string) {
	if err := s.SetAnswer(cur, value); err != nil {
		t.println(err)
		return
	}
	v := s.View()
	t.printf(color.New(color.FgGreen), "Saved. %d of %d answered.\n", v.Answered, v.TotalQuestions)
}

func (t *terminal) printHeader(exam *model.ExamDefinition, history []model.AttemptRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	color.New(color.FgCyan, color.Bold).Fprintf(t.out, "\n%s\n", exam.Title)
	fmt.Fprintf(t.out, "%d questions, %d minutes, max score %d\n\n",
		len(exam.Questions), exam.DurationMinutes, exam.MaxScore)

	if len(history) == 0 {
		fmt.Fprintln(t.out, "No previous attempts.")
		return
	}
	table := tablewriter.NewWriter(t.out)
	table.SetHeader([]string{"#", "Submitted", "Score", "Result"})
	for i, a := range history {
		verdict := "not passed"
		if a.Passed {
			verdict = "passed"
		}
		table.Append([]string{
			strconv.Itoa(i + 1),
			a.SubmittedAt.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%d / %d", a.Score, a.TotalScore),
			verdict,
		})
	}
	table.Render()
}

func (t *terminal) printQuestion(s *session.Session, i int) {
	exam := s.Exam()
	q := exam.Questions[i]
	answers := s.Answers()

	t.mu.Lock()
	defer t.mu.Unlock()

	color.New(color.Bold).Fprintf(t.out, "\nQuestion %d/%d  (%s left)\n", i+1, len(exam.Questions), formatRemaining(s.Remaining()))
	fmt.Fprintln(t.out, q.Prompt)
	for j, opt := range q.Options {
		mark := " "
		if i < len(answers) && answers[i] == opt {
			mark = "*"
		}
		fmt.Fprintf(t.out, " %s %d) %s\n", mark, j+1, opt)
	}
	if q.IsFreeText() && i < len(answers) && answers[i] != "" {
		fmt.Fprintf(t.out, "Your answer: %s\n", answers[i])
	}
	fmt.Fprintln(t.out, "Type an answer, or '?' for commands.")
}

func (t *terminal) printHelp() {
	t.println(strings.Join([]string{
		"  <number>  choose an option",
		"  <text>    answer a free-text question",
		"  n / p     next / previous question",
		"  g <n>     go to question n",
		"  c         clear this answer",
		"  s         submit",
		"  q         quit without submitting",
	}, "\n"))
}

// resolveAnswer maps an option number to the option text. Free-text
// questions take the input as is.
func resolveAnswer(q *model.Question, input string) (string, bool) {
	if q.IsFreeText() {
		return input, true
	}
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(q.Options) {
		return q.Options[n-1], true
	}
	return "", false
}

func formatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

var errCompleted = errors.New("completed")

// next waits for a line, a completed attempt, or cancellation. A completed
// attempt wins over pending input.
func next(ctx context.Context, lines <-chan string, completed <-chan model.AttemptRecord) (string, error) {
	select {
	case <-completed:
		return "", errCompleted
	default:
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-completed:
		return "", errCompleted
	case line, ok := <-lines:
		if !ok {
			return "", errQuit
		}
		return line, nil
	}
}
