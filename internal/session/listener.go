package session

import "github.com/stemsi/exstem-session/internal/model"

// Listener receives the events a learner-facing UI has to render. Calls may
// arrive from the clock goroutine; implementations serialize their own output.
type Listener interface {
	OnTick(remaining int)
	// OnTimeUp fires when the clock expires, before the grace delay starts.
	OnTimeUp()
	OnCompleted(record model.AttemptRecord)
	OnSubmitFailed(err error)
}

// NopListener ignores every event.
type NopListener struct{}

func (NopListener) OnTick(int)                      {}
func (NopListener) OnTimeUp()                       {}
func (NopListener) OnCompleted(model.AttemptRecord) {}
func (NopListener) OnSubmitFailed(error)            {}
