package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/result"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/validator"
)

// ExamHandler serves the read-only exam and attempt endpoints.
type ExamHandler struct {
	examService    *service.ExamService
	attemptService *service.AttemptService
	log            zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService, attemptService *service.AttemptService, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		examService:    examService,
		attemptService: attemptService,
		log:            log.With().Str("component", "exam_handler").Logger(),
	}
}

// GetExam godoc
// GET /api/v1/exams/:exam_id
// Returns the learner-facing paper, the caller's attempt history and their
// aggregate stats for the exam.
func (h *ExamHandler) GetExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	paper, err := h.examService.GetPaper(c.Request.Context(), examID)
	if err != nil {
		h.fail(c, err)
		return
	}

	history, err := h.attemptService.LoadAttemptHistory(c.Request.Context(), examID, claims.UserID())
	if err != nil {
		h.fail(c, err)
		return
	}
	if history == nil {
		history = []model.AttemptRecord{}
	}

	// Stats are a convenience; the paper is served without them.
	stats, err := h.attemptService.Stats(c.Request.Context(), examID, claims.UserID())
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Attempt stats unavailable")
		stats = nil
	}

	response.Success(c, http.StatusOK, gin.H{
		"paper":   paper,
		"history": history,
		"stats":   stats,
	})
}

// ListAttempts godoc
// GET /api/v1/exams/:exam_id/attempts?page=&per_page=
func (h *ExamHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var q model.HistoryQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempts, pagination, err := h.attemptService.ListHistory(c.Request.Context(), examID, claims.UserID(), q.Page, q.PerPage)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, attempts, pagination)
}

// GetAttempt godoc
// GET /api/v1/attempts/:attempt_id
// Returns a stored attempt with its summary and per-question breakdown. The
// breakdown is null when the exam has been changed since the attempt.
func (h *ExamHandler) GetAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	rec, err := h.attemptService.GetByID(c.Request.Context(), attemptID)
	if err != nil {
		h.fail(c, err)
		return
	}
	// Other learners' attempts are reported as missing.
	if rec.UserID != claims.UserID() {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	exam, err := h.examService.LoadExam(c.Request.Context(), rec.ExamID)
	if err != nil {
		h.log.Warn().Err(err).Str("attempt_id", rec.ID.String()).Msg("Exam unavailable, breakdown omitted")
		exam = nil
	}

	p := result.New(*rec, exam)
	response.Success(c, http.StatusOK, gin.H{
		"attempt":   rec,
		"summary":   p.Summary(),
		"breakdown": p.Breakdown(),
	})
}

func (h *ExamHandler) fail(c *gin.Context, err error) {
	status, code := sessionError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	response.Fail(c, status, code)
}
