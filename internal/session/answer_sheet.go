package session

import "fmt"

// AnswerSheet holds the learner's current answer per question index.
// An empty string means unanswered. It is not safe for concurrent use; the
// owning Session serializes access.
type AnswerSheet struct {
	slots []string
}

// NewAnswerSheet creates a sheet with n empty slots.
func NewAnswerSheet(n int) *AnswerSheet {
	return &AnswerSheet{slots: make([]string, n)}
}

// Len returns the number of slots.
func (a *AnswerSheet) Len() int {
	return len(a.slots)
}

// SetAnswer overwrites slot i. An out-of-range index is a programming error
// and panics; callers bound-check first.
func (a *AnswerSheet) SetAnswer(i int, v string) {
	if i < 0 || i >= len(a.slots) {
		panic(fmt.Sprintf("answer sheet: index %d out of range [0,%d)", i, len(a.slots)))
	}
	a.slots[i] = v
}

// Answer returns the current answer at slot i.
func (a *AnswerSheet) Answer(i int) string {
	return a.slots[i]
}

// AnsweredCount returns the number of non-empty slots.
func (a *AnswerSheet) AnsweredCount() int {
	n := 0
	for _, s := range a.slots {
		if s != "" {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of the answers that does not alias the live sheet.
func (a *AnswerSheet) Snapshot() []string {
	out := make([]string, len(a.slots))
	copy(out, a.slots)
	return out
}
