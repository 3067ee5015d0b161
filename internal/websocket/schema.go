package websocket

import (
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/result"
	"github.com/stemsi/exstem-session/internal/session"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionLoad      Action = "load"
	ActionStart     Action = "start"
	ActionAnswer    Action = "answer"
	ActionSubmit    Action = "submit"
	ActionBreakdown Action = "breakdown"
	ActionRetry     Action = "retry"
	ActionClose     Action = "close"
	ActionPing      Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest sets the answer of one question. An empty answer clears it.
type AnswerRequest struct {
	Action Action `json:"action"`
	Index  *int   `json:"index" binding:"required,min=0"`
	Answer string `json:"answer" binding:"max=2000"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState        Event = "state"
	EventTick         Event = "tick"
	EventTimesUp      Event = "times_up"
	EventCompleted    Event = "completed"
	EventSubmitFailed Event = "submit_failed"
	EventBreakdown    Event = "breakdown"
	EventClosed       Event = "closed"
	EventError        Event = "error"
	EventPong         Event = "pong"
)

// StateResponse carries a full snapshot; paper and history are sent once loaded.
type StateResponse struct {
	Event   Event                 `json:"event"`
	Session session.View          `json:"session"`
	Paper   *model.ExamPaper      `json:"paper,omitempty"`
	History []model.AttemptRecord `json:"history,omitempty"`
}

type TickResponse struct {
	Event     Event `json:"event"`
	Remaining int   `json:"remaining_seconds"`
}

type TimesUpResponse struct {
	Event        Event `json:"event"`
	GraceSeconds int   `json:"grace_seconds"`
}

type CompletedResponse struct {
	Event   Event          `json:"event"`
	Summary result.Summary `json:"summary"`
}

type SubmitFailedResponse struct {
	Event     Event  `json:"event"`
	Code      string `json:"code"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

type BreakdownResponse struct {
	Event Event         `json:"event"`
	Items []result.Item `json:"items"`
}

type ClosedResponse struct {
	Event Event `json:"event"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
