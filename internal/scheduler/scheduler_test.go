package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestScheduler_RunsFlushPeriodically(t *testing.T) {
	s := New(time.Second, zerolog.Nop())
	var calls atomic.Int32
	s.SetFlushFunction(func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("store unavailable")
	})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !s.IsRunning() {
		t.Fatalf("expected running scheduler")
	}

	deadline := time.Now().Add(5 * time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	s.Stop()
	if calls.Load() < 2 {
		t.Fatalf("flush ran %d times, a failing job must not stop the schedule", calls.Load())
	}
	if s.IsRunning() {
		t.Fatalf("scheduler still running after Stop")
	}
}

func TestScheduler_StopWaitsForRunningJob(t *testing.T) {
	s := New(time.Second, zerolog.Nop())
	started := make(chan struct{})
	var finished atomic.Bool
	var once atomic.Bool
	s.SetFlushFunction(func(ctx context.Context) error {
		if once.CompareAndSwap(false, true) {
			close(started)
		}
		time.Sleep(300 * time.Millisecond)
		finished.Store(true)
		return nil
	})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatalf("job never started")
	}
	s.Stop()
	if !finished.Load() {
		t.Fatalf("Stop returned before the running flush finished")
	}
}

func TestScheduler_WithoutFunction(t *testing.T) {
	s := New(time.Second, zerolog.Nop())
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.IsRunning() {
		t.Fatalf("scheduler without a job should not report running")
	}
	s.Stop()
}

func TestScheduler_RejectsNonPositiveInterval(t *testing.T) {
	s := New(0, zerolog.Nop())
	s.SetFlushFunction(func(ctx context.Context) error { return nil })
	if err := s.Start(); err == nil {
		t.Fatalf("expected error for zero interval")
	}
}
