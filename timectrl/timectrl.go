// Package timectrl fires registered listeners on a fixed interval.
package timectrl

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrInvalidInterval indicates a non-positive tick interval.
	ErrInvalidInterval = errors.New("tick interval must be positive")
	// ErrAlreadyRunning indicates Start was called on a running scheduler.
	ErrAlreadyRunning = errors.New("scheduler already running")
)

// Listener is invoked once per tick with the tick time.
type Listener func(ctx context.Context, at time.Time)

// Scheduler drives ticks from a single goroutine, so listener invocations
// never overlap. Stop blocks until that goroutine has exited; once it
// returns no listener runs again.
type Scheduler struct {
	mu       sync.RWMutex
	interval time.Duration

	listeners []Listener

	// tickMu lets Stop wait out a listener run already in flight.
	tickMu  sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// NewScheduler constructs a scheduler that ticks every interval once started.
func NewScheduler(interval time.Duration) (*Scheduler, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	return &Scheduler{interval: interval}, nil
}

// Interval returns the tick period.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// AddListener registers a callback invoked on every tick.
func (s *Scheduler) AddListener(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Running reports whether the tick loop is active. It turns false once Stop
// is called or the context given to Start is cancelled.
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done != nil && !s.stopped
}

// Start launches the tick loop. The loop ends when Stop is called or ctx is
// cancelled, whichever comes first.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil && !s.stopped {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.stopped = false

	go s.loop(ctx, done)
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		// Mark the loop finished before waking Stop, so a caller that
		// observes done also observes Running() == false.
		s.mu.Lock()
		if s.done == done {
			s.stopped = true
		}
		s.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case at := <-ticker.C:
			s.fire(ctx, at)
		}
	}
}

// Stop cancels the tick loop and waits for it to exit. It is safe to call
// more than once and on a scheduler that was never started.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.stopped = true
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) fire(ctx context.Context, at time.Time) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	// A tick that raced with Stop is dropped whole.
	if ctx.Err() != nil {
		return
	}

	s.mu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(ctx, at)
	}
}
