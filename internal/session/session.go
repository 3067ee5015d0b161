package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-session/internal/clock"
	"github.com/stemsi/exstem-session/internal/metrics"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/scoring"
)

// Session errors.
var (
	ErrLoadFailed           = errors.New("failed to load exam")
	ErrNotLoaded            = errors.New("exam is not loaded yet")
	ErrAlreadyStarted       = errors.New("session already started")
	ErrInvalidExam          = scoring.ErrInvalidExam
	ErrNotInProgress        = errors.New("session is not in progress")
	ErrTimeUp               = errors.New("time is up")
	ErrQuestionOutOfRange   = errors.New("question index out of range")
	ErrSubmissionInProgress = errors.New("submission already in progress")
	ErrAlreadySubmitted     = errors.New("attempt already submitted")
	ErrSubmitFailed         = errors.New("failed to save attempt")
	ErrNotCompleted         = errors.New("session is not completed")
	ErrClosed               = errors.New("session is closed")
)

const (
	DefaultGraceDelay     = 3 * time.Second
	DefaultPersistTimeout = 10 * time.Second
	DefaultRetryMin       = time.Second
	DefaultRetryMax       = 30 * time.Second
)

// Store is the persistence collaborator of a session.
type Store interface {
	LoadExam(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error)
	LoadAttemptHistory(ctx context.Context, examID uuid.UUID, userID string) ([]model.AttemptRecord, error)
	// CreateAttemptRecord durably appends one attempt. The session calls it at
	// most once per successful submission.
	CreateAttemptRecord(ctx context.Context, record *model.AttemptRecord) error
}

// Option configures a Session.
type Option func(*Session)

// WithGraceDelay sets the pause between the time's-up notice and the automatic submission.
func WithGraceDelay(d time.Duration) Option {
	return func(s *Session) { s.graceDelay = d }
}

// WithPersistTimeout bounds the attempt write, which is detached from the caller's context.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Session) { s.persistTimeout = d }
}

// WithRetryBackoff bounds the wait between automatic submission attempts
// after a failed write. The wait doubles from min up to max.
func WithRetryBackoff(min, max time.Duration) Option {
	return func(s *Session) { s.retryMin, s.retryMax = min, max }
}

// WithClockOptions forwards options to every Clock the session builds.
func WithClockOptions(opts ...clock.Option) Option {
	return func(s *Session) { s.clockOpts = append(s.clockOpts, opts...) }
}

// WithLogger sets the parent logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithListener sets the initial event listener.
func WithListener(l Listener) Option {
	return func(s *Session) { s.listener = l }
}

// WithNow overrides the wall clock used for submission timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// View is a read-only snapshot of a session for rendering.
type View struct {
	ExamID         uuid.UUID          `json:"exam_id"`
	State          model.SessionState `json:"state"`
	Remaining      int                `json:"remaining_seconds"`
	Answered       int                `json:"answered"`
	TotalQuestions int                `json:"total_questions"`
	Answers        []string           `json:"answers,omitempty"`
	TimeUp         bool               `json:"time_up"`
}

// Session is the state machine of one timed exam attempt:
// NOT_STARTED → IN_PROGRESS → SUBMITTING → COMPLETED.
type Session struct {
	examID uuid.UUID
	userID string
	store  Store
	opts   []Option

	graceDelay     time.Duration
	persistTimeout time.Duration
	retryMin       time.Duration
	retryMax       time.Duration
	clockOpts      []clock.Option
	now            func() time.Time
	log            zerolog.Logger

	mu         sync.Mutex
	listener   Listener
	state      model.SessionState
	loading    bool
	exam       *model.ExamDefinition
	history    []model.AttemptRecord
	sheet      *AnswerSheet
	clk        *clock.Clock
	expired    bool
	graceTimer *time.Timer
	inFlight   bool
	pending    *model.AttemptRecord
	record     *model.AttemptRecord
	closed     bool

	finishOnce sync.Once
	finished   chan struct{}
}

// New creates a session in NOT_STARTED. Nothing is loaded until Load.
func New(examID uuid.UUID, userID string, store Store, opts ...Option) *Session {
	s := &Session{
		examID:         examID,
		userID:         userID,
		store:          store,
		opts:           opts,
		graceDelay:     DefaultGraceDelay,
		persistTimeout: DefaultPersistTimeout,
		retryMin:       DefaultRetryMin,
		retryMax:       DefaultRetryMax,
		now:            time.Now,
		log:            zerolog.Nop(),
		listener:       NopListener{},
		state:          model.SessionStateNotStarted,
		finished:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.listener == nil {
		s.listener = NopListener{}
	}
	s.log = s.log.With().
		Str("component", "exam_session").
		Str("exam_id", examID.String()).
		Str("user_id", userID).
		Logger()
	return s
}

// ExamID returns the exam this session is for.
func (s *Session) ExamID() uuid.UUID { return s.examID }

// UserID returns the learner this session belongs to.
func (s *Session) UserID() string { return s.userID }

// SetListener swaps the event listener, e.g. when a client reconnects.
func (s *Session) SetListener(l Listener) {
	if l == nil {
		l = NopListener{}
	}
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
}

// DetachListener removes l if it is still the active listener and reports
// whether it was.
func (s *Session) DetachListener(l Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != l {
		return false
	}
	s.listener = NopListener{}
	return true
}

// Load fetches the exam definition and the learner's attempt history.
// On failure the session stays in NOT_STARTED and Load may be called again.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.state != model.SessionStateNotStarted {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	if s.loading {
		s.mu.Unlock()
		return fmt.Errorf("%w: load already running", ErrLoadFailed)
	}
	s.loading = true
	s.mu.Unlock()

	var (
		exam    *model.ExamDefinition
		history []model.AttemptRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		exam, err = s.store.LoadExam(gctx, s.examID)
		if err != nil {
			return fmt.Errorf("load exam: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		history, err = s.store.LoadAttemptHistory(gctx, s.examID, s.userID)
		if err != nil {
			return fmt.Errorf("load attempt history: %w", err)
		}
		return nil
	})
	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.log.Warn().Err(err).Msg("Exam load failed")
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	if exam == nil {
		return fmt.Errorf("%w: exam not found", ErrLoadFailed)
	}
	s.exam = exam
	s.history = history
	s.log.Debug().
		Int("questions", len(exam.Questions)).
		Int("previous_attempts", len(history)).
		Msg("Exam loaded")
	return nil
}

// Start validates the loaded exam and starts the clock. Time is charged
// from this instant only.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != model.SessionStateNotStarted {
		return ErrAlreadyStarted
	}
	if s.exam == nil || s.loading {
		return ErrNotLoaded
	}
	if err := scoring.Validate(s.exam); err != nil {
		s.log.Warn().Err(err).Msg("Refusing to start invalid exam")
		return fmt.Errorf("cannot start exam: %w", err)
	}

	s.sheet = NewAnswerSheet(len(s.exam.Questions))
	s.clk = clock.New(s.exam.DurationSeconds(), clock.Handlers{
		OnTick:    s.onTick,
		OnExpired: s.onExpired,
	}, s.clockOpts...)
	s.state = model.SessionStateInProgress
	s.clk.Start()

	metrics.SessionsStarted.Inc()
	s.log.Info().Int("duration_minutes", s.exam.DurationMinutes).Msg("Exam started")
	return nil
}

// SetAnswer records the answer for question i. Questions may be answered in any order.
func (s *Session) SetAnswer(i int, v string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != model.SessionStateInProgress {
		return ErrNotInProgress
	}
	if s.expired {
		return ErrTimeUp
	}
	if i < 0 || i >= s.sheet.Len() {
		return ErrQuestionOutOfRange
	}
	s.sheet.SetAnswer(i, v)
	return nil
}

// Submit finalizes the attempt on the learner's request. It shares the guarded
// submission path with clock expiry, so concurrent triggers produce at most one record.
// After a failed write, calling Submit again retries the same pending record.
func (s *Session) Submit(ctx context.Context) (*model.AttemptRecord, error) {
	return s.submit(ctx, false)
}

func (s *Session) onTick(remaining int) {
	s.mu.Lock()
	l := s.listener
	active := s.state == model.SessionStateInProgress
	s.mu.Unlock()
	if active {
		l.OnTick(remaining)
	}
}

func (s *Session) onExpired() {
	s.mu.Lock()
	if s.state != model.SessionStateInProgress || s.expired {
		s.mu.Unlock()
		return
	}
	s.expired = true
	l := s.listener
	s.mu.Unlock()

	s.log.Info().Msg("Time is up")
	l.OnTimeUp()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != model.SessionStateInProgress || s.closed {
		return
	}
	s.graceTimer = time.AfterFunc(s.graceDelay, s.autoSubmit)
}

// autoSubmit keeps sending the attempt until it is stored, the session
// completes some other way, or the session is closed. Nobody may be
// listening any more, so a failed write is never left for the learner.
func (s *Session) autoSubmit() {
	wait := s.retryMin
	for {
		_, err := s.submit(context.Background(), true)
		switch {
		case err == nil, errors.Is(err, ErrAlreadySubmitted), errors.Is(err, ErrClosed):
			return
		case errors.Is(err, ErrSubmissionInProgress):
			// The other write reports its own outcome; check back later.
		default:
			s.log.Error().Err(err).Dur("retry_in", wait).Msg("Automatic submission failed")
		}

		t := time.NewTimer(wait)
		select {
		case <-s.finished:
			t.Stop()
			return
		case <-t.C:
		}
		if wait *= 2; wait > s.retryMax {
			wait = s.retryMax
		}
	}
}

func (s *Session) submit(ctx context.Context, auto bool) (*model.AttemptRecord, error) {
	s.mu.Lock()
	if s.closed && s.state != model.SessionStateCompleted {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	switch s.state {
	case model.SessionStateNotStarted:
		s.mu.Unlock()
		return nil, ErrNotInProgress

	case model.SessionStateCompleted:
		rec := cloneRecord(s.record)
		s.mu.Unlock()
		metrics.DuplicateSubmissions.Inc()
		return rec, ErrAlreadySubmitted

	case model.SessionStateSubmitting:
		if s.inFlight {
			s.mu.Unlock()
			metrics.DuplicateSubmissions.Inc()
			return nil, ErrSubmissionInProgress
		}
		// Earlier write failed; retry the frozen record below.

	case model.SessionStateInProgress:
		s.clk.Stop()
		if s.graceTimer != nil {
			s.graceTimer.Stop()
		}
		remaining := s.clk.Remaining()
		answers := s.sheet.Snapshot()
		outcome := scoring.Evaluate(answers, s.exam)
		s.pending = &model.AttemptRecord{
			ID:             uuid.New(),
			ExamID:         s.examID,
			UserID:         s.userID,
			SubmittedAt:    s.now().UTC(),
			TimeSpent:      TimeSpent(s.exam.DurationMinutes, remaining),
			Score:          outcome.Score,
			TotalScore:     outcome.TotalScore,
			CorrectAnswers: outcome.CorrectAnswers,
			TotalQuestions: outcome.TotalQuestions,
			Answers:        answers,
			Passed:         outcome.Passed,
			AutoSubmitted:  auto || s.expired,
		}
		s.state = model.SessionStateSubmitting
	}

	s.inFlight = true
	rec := cloneRecord(s.pending)
	s.mu.Unlock()

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	err := s.store.CreateAttemptRecord(pctx, rec)
	cancel()

	s.mu.Lock()
	s.inFlight = false
	l := s.listener
	if err != nil {
		s.mu.Unlock()
		metrics.PersistFailures.Inc()
		s.log.Error().Err(err).Str("attempt_id", rec.ID.String()).Msg("Attempt write failed")
		err = fmt.Errorf("%w: %w", ErrSubmitFailed, err)
		l.OnSubmitFailed(err)
		return nil, err
	}
	s.record = rec
	s.pending = nil
	s.sheet = nil
	s.state = model.SessionStateCompleted
	s.mu.Unlock()
	s.finish()

	metrics.ObserveSubmission(rec.AutoSubmitted, rec.Passed)
	s.log.Info().
		Str("attempt_id", rec.ID.String()).
		Int("score", rec.Score).
		Int("correct", rec.CorrectAnswers).
		Int("total", rec.TotalQuestions).
		Int("time_spent", rec.TimeSpent).
		Bool("auto", rec.AutoSubmitted).
		Msg("Exam submitted and graded")

	l.OnCompleted(*cloneRecord(rec))
	return cloneRecord(rec), nil
}

// Retry builds a fresh NOT_STARTED session for the same exam and learner.
// The completed session and its record stay untouched.
func (s *Session) Retry() (*Session, error) {
	s.mu.Lock()
	if s.state != model.SessionStateCompleted {
		s.mu.Unlock()
		return nil, ErrNotCompleted
	}
	l := s.listener
	s.mu.Unlock()

	opts := append(append([]Option(nil), s.opts...), WithListener(l))
	return New(s.examID, s.userID, s.store, opts...), nil
}

// Close stops the clock and any pending automatic submission without
// submitting. An in-flight write is not cancelled. Later submissions fail
// with ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	if s.clk != nil {
		s.clk.Stop()
	}
	if s.graceTimer != nil {
		s.graceTimer.Stop()
	}
	s.mu.Unlock()
	s.finish()
}

// Flush makes one more attempt to store a pending record whose earlier
// write failed. It is a no-op unless the session is SUBMITTING with no
// write in flight.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	idle := s.state == model.SessionStateSubmitting && !s.inFlight
	s.mu.Unlock()
	if !idle {
		return nil
	}
	_, err := s.submit(ctx, true)
	if errors.Is(err, ErrSubmissionInProgress) || errors.Is(err, ErrAlreadySubmitted) {
		return nil
	}
	return err
}

// Finished is closed once the session completes or is closed.
func (s *Session) Finished() <-chan struct{} {
	return s.finished
}

func (s *Session) finish() {
	s.finishOnce.Do(func() { close(s.finished) })
}

// State returns the current lifecycle state.
func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Exam returns the loaded definition, or nil before Load succeeds.
func (s *Session) Exam() *model.ExamDefinition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exam
}

// History returns the attempt history loaded before the start.
func (s *Session) History() []model.AttemptRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AttemptRecord, len(s.history))
	copy(out, s.history)
	return out
}

// Remaining returns the seconds left; the full duration before the start.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remainingLocked()
}

func (s *Session) remainingLocked() int {
	if s.clk != nil {
		return s.clk.Remaining()
	}
	if s.exam != nil {
		return s.exam.DurationSeconds()
	}
	return 0
}

// AnsweredCount returns how many questions have a non-empty answer.
func (s *Session) AnsweredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sheet == nil {
		return 0
	}
	return s.sheet.AnsweredCount()
}

// Answers returns a snapshot of the live answer sheet, or nil when none exists.
func (s *Session) Answers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sheet == nil {
		return nil
	}
	return s.sheet.Snapshot()
}

// Record returns the persisted attempt of a completed session.
func (s *Session) Record() (*model.AttemptRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return nil, false
	}
	return cloneRecord(s.record), true
}

// View returns a snapshot suitable for rendering.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ExamID:    s.examID,
		State:     s.state,
		Remaining: s.remainingLocked(),
		TimeUp:    s.expired,
	}
	if s.exam != nil {
		v.TotalQuestions = len(s.exam.Questions)
	}
	switch {
	case s.sheet != nil:
		v.Answers = s.sheet.Snapshot()
		v.Answered = s.sheet.AnsweredCount()
	case s.pending != nil:
		v.Answers = append([]string(nil), s.pending.Answers...)
	case s.record != nil:
		v.Answers = append([]string(nil), s.record.Answers...)
	}
	if v.Answered == 0 {
		for _, a := range v.Answers {
			if a != "" {
				v.Answered++
			}
		}
	}
	return v
}

// TimeSpent converts the seconds left into whole minutes charged:
// durationMinutes - floor(remainingSeconds / 60).
func TimeSpent(durationMinutes, remainingSeconds int) int {
	if remainingSeconds < 0 {
		remainingSeconds = 0
	}
	return durationMinutes - remainingSeconds/60
}

func cloneRecord(r *model.AttemptRecord) *model.AttemptRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Answers = append([]string(nil), r.Answers...)
	return &c
}
