package timectrl

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewSchedulerRejectsNonPositiveInterval(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		if _, err := NewScheduler(d); !errors.Is(err, ErrInvalidInterval) {
			t.Fatalf("NewScheduler(%v) err = %v, want ErrInvalidInterval", d, err)
		}
	}
}

func TestSchedulerInterval(t *testing.T) {
	s, err := NewScheduler(250 * time.Millisecond)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if got := s.Interval(); got != 250*time.Millisecond {
		t.Fatalf("Interval() = %v, want 250ms", got)
	}
}

func TestSchedulerStartFiresTicks(t *testing.T) {
	s, err := NewScheduler(5 * time.Millisecond)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	var calls atomic.Int64
	s.AddListener(func(context.Context, time.Time) { calls.Add(1) })

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d ticks fired before deadline", calls.Load())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSchedulerStartTwiceFails(t *testing.T) {
	s, err := NewScheduler(time.Hour)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start err = %v, want ErrAlreadyRunning", err)
	}
}

func TestSchedulerStopHaltsTicks(t *testing.T) {
	s, err := NewScheduler(2 * time.Millisecond)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	var calls atomic.Int64
	s.AddListener(func(context.Context, time.Time) { calls.Add(1) })

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	if s.Running() {
		t.Fatalf("Running() = true after Stop")
	}
	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	if got := calls.Load(); got != after {
		t.Fatalf("ticks after Stop: got %d, want %d", got, after)
	}

	// Stop is idempotent.
	s.Stop()
}

func TestSchedulerContextCancelStopsLoop(t *testing.T) {
	s, err := NewScheduler(2 * time.Millisecond)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	var calls atomic.Int64
	s.AddListener(func(context.Context, time.Time) { calls.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	cancel()
	s.Stop()

	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	if got := calls.Load(); got != after {
		t.Fatalf("ticks after cancel: got %d, want %d", got, after)
	}
}

func TestSchedulerContextCancelAllowsRestart(t *testing.T) {
	s, err := NewScheduler(2 * time.Millisecond)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	var calls atomic.Int64
	s.AddListener(func(context.Context, time.Time) { calls.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.Running() {
		t.Fatalf("Running() = false after Start")
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for s.Running() {
		if time.Now().After(deadline) {
			t.Fatalf("Running() still true after context cancel")
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("restart after cancel: %v", err)
	}
	defer s.Stop()
	if !s.Running() {
		t.Fatalf("Running() = false after restart")
	}

	before := calls.Load()
	for calls.Load() == before {
		if time.Now().After(deadline) {
			t.Fatalf("no tick fired after restart")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStopWithoutStart(t *testing.T) {
	s, err := NewScheduler(time.Second)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	s.Stop()
}
