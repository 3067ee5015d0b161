package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-session/internal/metrics"
	"github.com/stemsi/exstem-session/internal/model"
)

type registryKey struct {
	examID uuid.UUID
	userID string
}

// Registry keeps at most one live session per (exam, learner) so a
// reconnecting client resumes the running attempt instead of starting over.
type Registry struct {
	mu       sync.Mutex
	sessions map[registryKey]*Session
	factory  func(examID uuid.UUID, userID string) *Session
}

// NewRegistry creates a registry that builds new sessions with factory.
func NewRegistry(factory func(examID uuid.UUID, userID string) *Session) *Registry {
	return &Registry{
		sessions: make(map[registryKey]*Session),
		factory:  factory,
	}
}

// Acquire returns the existing session for the pair, or a new NOT_STARTED one.
func (r *Registry) Acquire(examID uuid.UUID, userID string) *Session {
	k := registryKey{examID: examID, userID: userID}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[k]; ok {
		return s
	}
	s := r.factory(examID, userID)
	r.sessions[k] = s
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return s
}

// Replace swaps old for next, e.g. after Retry. It is a no-op if old is no
// longer the registered session.
func (r *Registry) Replace(old, next *Session) {
	k := registryKey{examID: old.ExamID(), userID: old.UserID()}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[k]; ok && cur != old {
		return
	}
	r.sessions[k] = next
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
}

// Release is called when the client owning l detaches. Idle sessions are
// dropped at once; a running one stays until it finishes so expiry can still
// auto-submit. A session another client has since attached to is left alone.
func (r *Registry) Release(s *Session, l Listener) {
	if !s.DetachListener(l) {
		return
	}
	switch s.State() {
	case model.SessionStateNotStarted, model.SessionStateCompleted:
		r.remove(s)
		return
	}
	go func() {
		<-s.Finished()
		r.remove(s)
	}()
}

func (r *Registry) remove(s *Session) {
	k := registryKey{examID: s.ExamID(), userID: s.UserID()}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[k]; ok && cur == s {
		delete(r.sessions, k)
		metrics.ActiveSessions.Set(float64(len(r.sessions)))
	}
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown closes every registered session without submitting it. A session
// holding a record whose write failed gets one last write first.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for k, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, k)
	}
	metrics.ActiveSessions.Set(0)
	r.mu.Unlock()

	for _, s := range all {
		if err := s.Flush(context.Background()); err != nil {
			s.log.Error().Err(err).Msg("Pending attempt lost at shutdown")
		}
		s.Close()
	}
}
