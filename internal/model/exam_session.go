package model

// SessionState enumerates the lifecycle of a timed exam session.
type SessionState string

const (
	SessionStateNotStarted SessionState = "NOT_STARTED"
	SessionStateInProgress SessionState = "IN_PROGRESS"
	SessionStateSubmitting SessionState = "SUBMITTING"
	SessionStateCompleted  SessionState = "COMPLETED"
)

// HistoryQuery is the query string of the attempt history endpoint.
type HistoryQuery struct {
	Page    int `form:"page" binding:"omitempty,min=1"`
	PerPage int `form:"per_page" binding:"omitempty,min=1,max=100"`
}
