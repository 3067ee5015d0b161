package clock

import (
	"sync"
	"time"
)

// ManualSource is a Source whose beats are produced on demand. It lets tests
// advance simulated time without sleeping.
type ManualSource struct {
	ch       chan time.Time
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewManualSource creates an idle ManualSource.
func NewManualSource() *ManualSource {
	return &ManualSource{
		ch:      make(chan time.Time),
		stopped: make(chan struct{}),
	}
}

func (m *ManualSource) C() <-chan time.Time { return m.ch }

func (m *ManualSource) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopped)
	})
}

// Advance delivers n beats. Each beat blocks until the clock has taken it, so
// every beat but the last has been fully handled when Advance returns. It
// returns the number of beats delivered before the source was stopped.
func (m *ManualSource) Advance(n int) int {
	for i := 0; i < n; i++ {
		select {
		case m.ch <- time.Now():
		case <-m.stopped:
			return i
		}
	}
	return n
}

// Factory returns a constructor usable with WithSource that always hands out m.
func (m *ManualSource) Factory() func() Source {
	return func() Source { return m }
}
