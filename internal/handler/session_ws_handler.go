package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/result"
	"github.com/stemsi/exstem-session/internal/session"
	"github.com/stemsi/exstem-session/internal/validator"
	ws "github.com/stemsi/exstem-session/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// SessionHandler drives an exam session over a WebSocket.
type SessionHandler struct {
	registry   *session.Registry
	graceDelay time.Duration
	log        zerolog.Logger
	upgrader   websocket.Upgrader
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(registry *session.Registry, graceDelay time.Duration, log zerolog.Logger, allowedOrigins []string) *SessionHandler {
	return &SessionHandler{
		registry:   registry,
		graceDelay: graceDelay,
		log:        log.With().Str("component", "session_ws_handler").Logger(),
		upgrader:   buildUpgrader(allowedOrigins),
	}
}

// Stream godoc
// WS /ws/v1/exams/:exam_id/session
// A reconnecting client resumes the running session of the same exam.
func (h *SessionHandler) Stream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("user_id", claims.UserID()).
		Str("exam_id", examID.String()).
		Logger()

	w := ws.NewWriter(conn)
	stopPing := w.KeepAlive()
	defer stopPing()
	l := &wsListener{w: w, grace: h.graceDelay, log: wsLog}
	s := h.registry.Acquire(examID, claims.UserID())
	l.current.Store(s)
	s.SetListener(l)
	defer func() { h.registry.Release(l.current.Load(), l) }()

	wsLog.Info().Str("state", string(s.State())).Msg("Learner connected")
	h.writeState(w, s, false)

	ctx := c.Request.Context()
	for {
		data, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.writeCode(w, response.ErrInvalidPayload)
			continue
		}

		s = l.current.Load()
		switch env.Action {
		case ws.ActionLoad:
			if err := s.Load(ctx); err != nil {
				h.writeErr(w, err)
				continue
			}
			h.writeState(w, s, true)

		case ws.ActionStart:
			if err := s.Start(); err != nil {
				h.writeErr(w, err)
				continue
			}
			h.writeState(w, s, false)

		case ws.ActionAnswer:
			h.handleAnswer(w, s, data)

		case ws.ActionSubmit:
			// Completion and write failures are reported through the listener.
			if _, err := s.Submit(ctx); err != nil && !errors.Is(err, session.ErrSubmitFailed) {
				h.writeErr(w, err)
			}

		case ws.ActionBreakdown:
			rec, ok := s.Record()
			if !ok {
				h.writeErr(w, session.ErrNotCompleted)
				continue
			}
			_ = w.WriteTyped(ws.BreakdownResponse{
				Event: ws.EventBreakdown,
				Items: result.New(*rec, s.Exam()).Breakdown(),
			})

		case ws.ActionRetry:
			next, err := s.Retry()
			if err != nil {
				h.writeErr(w, err)
				continue
			}
			h.registry.Replace(s, next)
			l.current.Store(next)
			next.SetListener(l)
			wsLog.Info().Msg("Retry requested")
			h.writeState(w, next, false)

		case ws.ActionClose:
			_ = w.WriteTyped(ws.ClosedResponse{Event: ws.EventClosed})
			return

		case ws.ActionPing:
			_ = w.WriteTyped(ws.PongResponse{Event: ws.EventPong})

		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			h.writeCode(w, response.ErrUnknownAction)
		}
	}
}

func (h *SessionHandler) handleAnswer(w *ws.Writer, s *session.Session, data []byte) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.writeCode(w, response.ErrInvalidPayload)
		return
	}
	if fields := validator.ValidateStruct(&req); fields != nil {
		h.writeCode(w, response.ErrValidation)
		return
	}
	if err := s.SetAnswer(*req.Index, req.Answer); err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeState(w, s, false)
}

// writeState sends a snapshot. withHistory adds the paper and attempt history.
func (h *SessionHandler) writeState(w *ws.Writer, s *session.Session, withHistory bool) {
	msg := ws.StateResponse{Event: ws.EventState, Session: s.View()}
	if exam := s.Exam(); exam != nil {
		paper := exam.Paper()
		msg.Paper = &paper
		if withHistory {
			msg.History = s.History()
			if msg.History == nil {
				msg.History = []model.AttemptRecord{}
			}
		}
	}
	_ = w.WriteTyped(msg)
}

func (h *SessionHandler) writeErr(w *ws.Writer, err error) {
	status, code := sessionError(err)
	if status >= http.StatusInternalServerError {
		h.log.Warn().Err(err).Msg("Session action failed")
	}
	h.writeCode(w, code)
}

func (h *SessionHandler) writeCode(w *ws.Writer, code response.ErrCode) {
	_ = w.WriteError(string(code), response.GetMessage(code))
}

// wsListener forwards session events to the socket.
type wsListener struct {
	w       *ws.Writer
	grace   time.Duration
	log     zerolog.Logger
	current atomic.Pointer[session.Session]
}

func (l *wsListener) OnTick(remaining int) {
	l.write(ws.TickResponse{Event: ws.EventTick, Remaining: remaining})
}

func (l *wsListener) OnTimeUp() {
	l.write(ws.TimesUpResponse{Event: ws.EventTimesUp, GraceSeconds: int(l.grace / time.Second)})
}

func (l *wsListener) OnCompleted(rec model.AttemptRecord) {
	var exam *model.ExamDefinition
	if s := l.current.Load(); s != nil {
		exam = s.Exam()
	}
	l.write(ws.CompletedResponse{Event: ws.EventCompleted, Summary: result.New(rec, exam).Summary()})
}

func (l *wsListener) OnSubmitFailed(error) {
	l.write(ws.SubmitFailedResponse{
		Event:     ws.EventSubmitFailed,
		Code:      string(response.ErrSubmitFailed),
		Error:     response.GetMessage(response.ErrSubmitFailed),
		Retryable: true,
	})
}

func (l *wsListener) write(v interface{}) {
	if err := l.w.WriteTyped(v); err != nil {
		l.log.Debug().Err(err).Msg("WebSocket write failed")
	}
}

var _ session.Listener = (*wsListener)(nil)
