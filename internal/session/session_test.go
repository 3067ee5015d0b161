package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-session/internal/clock"
	"github.com/stemsi/exstem-session/internal/model"
)

type memStore struct {
	mu      sync.Mutex
	exam    *model.ExamDefinition
	records []model.AttemptRecord

	loadErr    error
	historyErr error
	// failWrites makes the next n CreateAttemptRecord calls fail.
	failWrites int
	// gate, when set, blocks CreateAttemptRecord until closed.
	gate   chan struct{}
	writes int
}

func (m *memStore) LoadExam(_ context.Context, _ uuid.UUID) (*model.ExamDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.exam, nil
}

func (m *memStore) LoadAttemptHistory(_ context.Context, examID uuid.UUID, userID string) ([]model.AttemptRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	var out []model.AttemptRecord
	for _, r := range m.records {
		if r.ExamID == examID && r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) CreateAttemptRecord(_ context.Context, r *model.AttemptRecord) error {
	m.mu.Lock()
	gate := m.gate
	m.writes++
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites > 0 {
		m.failWrites--
		return errors.New("connection reset")
	}
	m.records = append(m.records, *r)
	return nil
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *memStore) recordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type recordingListener struct {
	mu        sync.Mutex
	ticks     []int
	timeUp    int
	completed []model.AttemptRecord
	failures  []error
}

func (l *recordingListener) OnTick(r int) {
	l.mu.Lock()
	l.ticks = append(l.ticks, r)
	l.mu.Unlock()
}

func (l *recordingListener) OnTimeUp() {
	l.mu.Lock()
	l.timeUp++
	l.mu.Unlock()
}

func (l *recordingListener) OnCompleted(r model.AttemptRecord) {
	l.mu.Lock()
	l.completed = append(l.completed, r)
	l.mu.Unlock()
}

func (l *recordingListener) OnSubmitFailed(err error) {
	l.mu.Lock()
	l.failures = append(l.failures, err)
	l.mu.Unlock()
}

func sampleExam(minutes int) *model.ExamDefinition {
	return &model.ExamDefinition{
		ID:              uuid.New(),
		Title:           "Arithmetic",
		DurationMinutes: minutes,
		MaxScore:        10,
		Questions: []model.Question{
			{Prompt: "2+2", Type: model.QuestionTypeMultipleChoice, Options: []string{"3", "4"}, Answer: "4"},
			{Prompt: "3+3", Type: model.QuestionTypeMultipleChoice, Options: []string{"6", "7"}, Answer: "6"},
			{Prompt: "5-1", Type: model.QuestionTypeFreeText, Answer: "4"},
			{Prompt: "1+1", Type: model.QuestionTypeMultipleChoice, Options: []string{"2", "11"}, Answer: "2"},
		},
	}
}

func newTestSession(t *testing.T, store *memStore, src *clock.ManualSource, opts ...Option) *Session {
	t.Helper()
	base := []Option{
		WithGraceDelay(0),
		WithPersistTimeout(time.Second),
		WithClockOptions(clock.WithSource(src.Factory())),
	}
	s := New(store.exam.ID, "student-1", store, append(base, opts...)...)
	t.Cleanup(s.Close)
	return s
}

func startedSession(t *testing.T, store *memStore, src *clock.ManualSource, opts ...Option) *Session {
	t.Helper()
	s := newTestSession(t, store, src, opts...)
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Start())
	return s
}

func waitFinished(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Finished():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}
}

func TestSession_AllCorrect(t *testing.T) {
	store := &memStore{exam: sampleExam(30)}
	s := startedSession(t, store, clock.NewManualSource())

	for i, a := range []string{"4", "6", "4", "2"} {
		require.NoError(t, s.SetAnswer(i, a))
	}
	assert.Equal(t, 4, s.AnsweredCount())

	rec, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, rec.Score)
	assert.Equal(t, 10, rec.TotalScore)
	assert.Equal(t, 4, rec.CorrectAnswers)
	assert.Equal(t, 4, rec.TotalQuestions)
	assert.True(t, rec.Passed)
	assert.False(t, rec.AutoSubmitted)
	assert.Equal(t, 0, rec.TimeSpent)
	assert.Equal(t, model.SessionStateCompleted, s.State())
	assert.Equal(t, 1, store.recordCount())
}

func TestSession_HalfCorrect(t *testing.T) {
	store := &memStore{exam: sampleExam(30)}
	s := startedSession(t, store, clock.NewManualSource())

	require.NoError(t, s.SetAnswer(3, "2"))
	require.NoError(t, s.SetAnswer(0, "4"))
	require.NoError(t, s.SetAnswer(1, "7"))

	rec, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, rec.Score)
	assert.Equal(t, 2, rec.CorrectAnswers)
	assert.Equal(t, []string{"4", "7", "", "2"}, rec.Answers)
}

func TestSession_TimeSpentFromTicks(t *testing.T) {
	store := &memStore{exam: sampleExam(30)}
	src := clock.NewManualSource()
	s := startedSession(t, store, src)

	require.Equal(t, 61, src.Advance(61))
	require.Eventually(t, func() bool { return s.Remaining() == 30*60-61 }, time.Second, time.Millisecond)

	rec, err := s.Submit(context.Background())
	require.NoError(t, err)
	// 1739 seconds left -> 28 whole minutes -> 2 minutes charged.
	assert.Equal(t, 2, rec.TimeSpent)
}

func TestSession_TimeoutAutoSubmits(t *testing.T) {
	store := &memStore{exam: sampleExam(1)}
	src := clock.NewManualSource()
	l := &recordingListener{}
	s := startedSession(t, store, src, WithListener(l))

	require.NoError(t, s.SetAnswer(0, "4"))
	assert.Equal(t, 60, src.Advance(65))
	waitFinished(t, s)

	assert.Equal(t, model.SessionStateCompleted, s.State())
	require.Equal(t, 1, store.recordCount())

	rec, ok := s.Record()
	require.True(t, ok)
	assert.Equal(t, 1, rec.TimeSpent)
	assert.True(t, rec.AutoSubmitted)
	assert.Equal(t, 1, rec.CorrectAnswers)

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.ticks, 60)
	assert.Equal(t, 0, l.ticks[len(l.ticks)-1])
	assert.Equal(t, 1, l.timeUp)
	assert.Len(t, l.completed, 1)
}

func TestSession_AnswersFrozenDuringGrace(t *testing.T) {
	store := &memStore{exam: sampleExam(1)}
	src := clock.NewManualSource()
	s := startedSession(t, store, src, WithGraceDelay(time.Hour))

	src.Advance(60)
	require.Eventually(t, func() bool { return s.View().TimeUp }, time.Second, time.Millisecond)

	assert.ErrorIs(t, s.SetAnswer(0, "4"), ErrTimeUp)
	assert.Equal(t, model.SessionStateInProgress, s.State())

	// A manual submit during the grace period wins and is marked automatic.
	rec, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, rec.AutoSubmitted)
	assert.Equal(t, 1, store.recordCount())
}

func TestSession_ConcurrentSubmitWritesOnce(t *testing.T) {
	gate := make(chan struct{})
	store := &memStore{exam: sampleExam(30), gate: gate}
	s := startedSession(t, store, clock.NewManualSource())

	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Submit(context.Background())
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return s.State() == model.SessionStateSubmitting }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()
	close(errs)

	var ok, rejected int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrSubmissionInProgress), errors.Is(err, ErrAlreadySubmitted):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, rejected)
	assert.Equal(t, 1, store.recordCount())
	store.mu.Lock()
	assert.Equal(t, 1, store.writes)
	store.mu.Unlock()
}

func TestSession_SubmitAfterCompletion(t *testing.T) {
	store := &memStore{exam: sampleExam(30)}
	s := startedSession(t, store, clock.NewManualSource())

	first, err := s.Submit(context.Background())
	require.NoError(t, err)

	again, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, store.recordCount())
}

func TestSession_PersistFailureAllowsRetry(t *testing.T) {
	store := &memStore{exam: sampleExam(30), failWrites: 1}
	l := &recordingListener{}
	s := startedSession(t, store, clock.NewManualSource(), WithListener(l))
	require.NoError(t, s.SetAnswer(0, "4"))

	_, err := s.Submit(context.Background())
	require.ErrorIs(t, err, ErrSubmitFailed)
	assert.Equal(t, model.SessionStateSubmitting, s.State())
	assert.Equal(t, 0, store.recordCount())

	// Answers are frozen once submission began.
	assert.ErrorIs(t, s.SetAnswer(1, "6"), ErrNotInProgress)

	rec, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rec.CorrectAnswers)
	assert.Equal(t, model.SessionStateCompleted, s.State())
	assert.Equal(t, 1, store.recordCount())

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.failures, 1)
	assert.Len(t, l.completed, 1)
}

func TestSession_AutoSubmitRetriesFailedWrite(t *testing.T) {
	store := &memStore{exam: sampleExam(1), failWrites: 2}
	src := clock.NewManualSource()
	s := startedSession(t, store, src, WithRetryBackoff(time.Millisecond, 5*time.Millisecond))
	require.NoError(t, s.SetAnswer(0, "4"))

	src.Advance(60)
	waitFinished(t, s)

	assert.Equal(t, model.SessionStateCompleted, s.State())
	assert.Equal(t, 3, store.writeCount())
	require.Equal(t, 1, store.recordCount())
	rec, ok := s.Record()
	require.True(t, ok)
	assert.True(t, rec.AutoSubmitted)
	assert.Equal(t, 1, rec.CorrectAnswers)
}

// closeOnTimeUp closes the session from inside the time's-up notice, before
// the automatic submission is scheduled.
type closeOnTimeUp struct {
	recordingListener
	s *Session
}

func (l *closeOnTimeUp) OnTimeUp() {
	l.recordingListener.OnTimeUp()
	l.s.Close()
}

func TestSession_CloseDuringTimeUpCancelsAutoSubmit(t *testing.T) {
	store := &memStore{exam: sampleExam(1)}
	src := clock.NewManualSource()
	s := startedSession(t, store, src)
	l := &closeOnTimeUp{s: s}
	s.SetListener(l)

	src.Advance(60)
	waitFinished(t, s)

	assert.Never(t, func() bool { return store.writeCount() > 0 }, 50*time.Millisecond, time.Millisecond)
	assert.Equal(t, model.SessionStateInProgress, s.State())

	_, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, store.recordCount())
}

func TestSession_InvalidExamCannotStart(t *testing.T) {
	exam := sampleExam(30)
	exam.Questions[0].Answer = "5"
	store := &memStore{exam: exam}
	s := newTestSession(t, store, clock.NewManualSource())

	require.NoError(t, s.Load(context.Background()))
	err := s.Start()
	require.ErrorIs(t, err, ErrInvalidExam)
	assert.Equal(t, model.SessionStateNotStarted, s.State())
}

func TestSession_LoadFailureStaysNotStarted(t *testing.T) {
	store := &memStore{exam: sampleExam(30), historyErr: errors.New("db down")}
	s := newTestSession(t, store, clock.NewManualSource())

	err := s.Load(context.Background())
	require.ErrorIs(t, err, ErrLoadFailed)
	assert.Equal(t, model.SessionStateNotStarted, s.State())
	assert.ErrorIs(t, s.Start(), ErrNotLoaded)

	store.mu.Lock()
	store.historyErr = nil
	store.mu.Unlock()

	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Start())
}

func TestSession_OperationsOutOfState(t *testing.T) {
	store := &memStore{exam: sampleExam(30)}
	s := newTestSession(t, store, clock.NewManualSource())

	assert.ErrorIs(t, s.SetAnswer(0, "4"), ErrNotInProgress)
	_, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotInProgress)
	_, err = s.Retry()
	assert.ErrorIs(t, err, ErrNotCompleted)

	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, 30*60, s.Remaining())
	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrAlreadyStarted)
	assert.ErrorIs(t, s.SetAnswer(4, "x"), ErrQuestionOutOfRange)
	assert.ErrorIs(t, s.SetAnswer(-1, "x"), ErrQuestionOutOfRange)
}

func TestSession_RetryStartsFresh(t *testing.T) {
	store := &memStore{exam: sampleExam(60)}
	s := startedSession(t, store, clock.NewManualSource())
	require.NoError(t, s.SetAnswer(0, "4"))
	first, err := s.Submit(context.Background())
	require.NoError(t, err)

	next, err := s.Retry()
	require.NoError(t, err)
	t.Cleanup(next.Close)
	assert.Equal(t, model.SessionStateNotStarted, next.State())

	require.NoError(t, next.Load(context.Background()))
	history := next.History()
	require.Len(t, history, 1)
	assert.Equal(t, first.ID, history[0].ID)

	require.NoError(t, next.Start())
	assert.Equal(t, 3600, next.Remaining())
	assert.Equal(t, 0, next.AnsweredCount())
	assert.Equal(t, []string{"", "", "", ""}, next.Answers())

	// The earlier attempt is untouched.
	rec, ok := s.Record()
	require.True(t, ok)
	assert.Equal(t, first.ID, rec.ID)
	assert.Equal(t, model.SessionStateCompleted, s.State())
}

func TestTimeSpent(t *testing.T) {
	assert.Equal(t, 0, TimeSpent(30, 1800))
	assert.Equal(t, 1, TimeSpent(30, 1799))
	assert.Equal(t, 30, TimeSpent(30, 0))
	assert.Equal(t, 1, TimeSpent(1, 0))
	assert.Equal(t, 30, TimeSpent(30, -5))
}
