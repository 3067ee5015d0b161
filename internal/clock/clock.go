package clock

import (
	"sync"
	"time"
)

// Handlers receives the clock's events. Both callbacks run on the clock's own
// goroutine, one at a time.
type Handlers struct {
	// OnTick fires once per elapsed second with the seconds still left.
	OnTick func(remaining int)
	// OnExpired fires exactly once when remaining reaches zero.
	OnExpired func()
}

// Source produces the beats that drive a Clock.
type Source interface {
	C() <-chan time.Time
	Stop()
}

type tickerSource struct {
	t *time.Ticker
}

func (s *tickerSource) C() <-chan time.Time { return s.t.C }
func (s *tickerSource) Stop()               { s.t.Stop() }

// NewTickerSource returns a Source backed by a time.Ticker.
func NewTickerSource(interval time.Duration) Source {
	return &tickerSource{t: time.NewTicker(interval)}
}

// Option configures a Clock.
type Option func(*Clock)

// WithSource replaces the wall-clock ticker, mostly for tests.
func WithSource(newSource func() Source) Option {
	return func(c *Clock) {
		c.newSource = newSource
	}
}

// Clock is a one-shot countdown that decrements once per beat.
type Clock struct {
	mu        sync.Mutex
	remaining int
	started   bool

	handlers  Handlers
	newSource func() Source

	stopOnce sync.Once
	stopCh   chan struct{}
	doneOnce sync.Once
	done     chan struct{}
}

// New creates a stopped clock with the given number of seconds.
func New(seconds int, handlers Handlers, opts ...Option) *Clock {
	if seconds < 0 {
		seconds = 0
	}
	c := &Clock{
		remaining: seconds,
		handlers:  handlers,
		newSource: func() Source { return NewTickerSource(time.Second) },
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins the countdown. Calling it more than once, or after Stop, has no effect.
func (c *Clock) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	select {
	case <-c.stopCh:
		c.closeDone()
		return
	default:
	}

	go c.run()
}

// Stop cancels future ticks. It is safe to call at any time, any number of times,
// including from inside a handler.
func (c *Clock) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.mu.Lock()
	notStarted := !c.started
	c.started = true
	c.mu.Unlock()
	if notStarted {
		c.closeDone()
	}
}

// Remaining returns the seconds left on the clock.
func (c *Clock) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Done is closed once the clock has stopped, by expiry or by Stop.
func (c *Clock) Done() <-chan struct{} {
	return c.done
}

func (c *Clock) run() {
	defer c.closeDone()

	if c.Remaining() == 0 {
		c.expire()
		return
	}

	src := c.newSource()
	defer src.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-src.C():
		}

		// A beat racing Stop must not be delivered.
		select {
		case <-c.stopCh:
			return
		default:
		}

		c.mu.Lock()
		c.remaining--
		left := c.remaining
		c.mu.Unlock()

		if c.handlers.OnTick != nil {
			c.handlers.OnTick(left)
		}

		if left == 0 {
			c.expire()
			return
		}
	}
}

func (c *Clock) expire() {
	select {
	case <-c.stopCh:
		return
	default:
	}
	if c.handlers.OnExpired != nil {
		c.handlers.OnExpired()
	}
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

func (c *Clock) closeDone() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
}
