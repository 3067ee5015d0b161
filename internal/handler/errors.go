package handler

import (
	"errors"
	"net/http"

	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/session"
)

// sessionError maps a domain error to an HTTP status and API code.
func sessionError(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrExamNotFound):
		return http.StatusNotFound, response.ErrExamNotFound
	case errors.Is(err, service.ErrAttemptNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, session.ErrInvalidExam):
		return http.StatusUnprocessableEntity, response.ErrExamInvalid
	case errors.Is(err, session.ErrLoadFailed):
		return http.StatusServiceUnavailable, response.ErrExamLoadFailed
	case errors.Is(err, session.ErrNotLoaded):
		return http.StatusConflict, response.ErrExamNotLoaded
	case errors.Is(err, session.ErrAlreadyStarted):
		return http.StatusConflict, response.ErrSessionStarted
	case errors.Is(err, session.ErrNotInProgress):
		return http.StatusConflict, response.ErrSessionNotActive
	case errors.Is(err, session.ErrTimeUp):
		return http.StatusConflict, response.ErrTimeUp
	case errors.Is(err, session.ErrQuestionOutOfRange):
		return http.StatusBadRequest, response.ErrQuestionOutOfRange
	case errors.Is(err, session.ErrSubmissionInProgress):
		return http.StatusConflict, response.ErrSubmissionInProgress
	case errors.Is(err, session.ErrAlreadySubmitted):
		return http.StatusConflict, response.ErrAlreadySubmitted
	case errors.Is(err, session.ErrSubmitFailed):
		return http.StatusServiceUnavailable, response.ErrSubmitFailed
	case errors.Is(err, session.ErrNotCompleted):
		return http.StatusConflict, response.ErrSessionNotCompleted
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}
