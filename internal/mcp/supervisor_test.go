package mcp

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// TestSupervisor_DrainWaitsForTasks verifies that Drain returns only after
// running tasks finish.
func TestSupervisor_DrainWaitsForTasks(t *testing.T) {
	s := NewSupervisor()
	var done atomic.Int32
	release := make(chan struct{})

	for i := 0; i < 3; i++ {
		s.Go("test", func() {
			<-release
			done.Add(1)
		})
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if got := done.Load(); got != 3 {
		t.Errorf("completed tasks = %d, want 3", got)
	}
	if got := s.InFlight(); got != 0 {
		t.Errorf("InFlight after drain = %d, want 0", got)
	}
}

// TestSupervisor_DrainTimeout verifies that Drain gives up when the context
// expires while a task is still running.
func TestSupervisor_DrainTimeout(t *testing.T) {
	s := NewSupervisor()
	release := make(chan struct{})
	defer close(release)

	s.Go("stuck", func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Drain(ctx); err == nil {
		t.Fatal("expected a context error from Drain")
	}
	if got := s.InFlight(); got != 1 {
		t.Errorf("InFlight = %d, want 1 (task still running)", got)
	}
}

// TestSupervisor_PanicDoesNotLeak verifies that a panicking task is counted
// down and does not wedge Drain.
func TestSupervisor_PanicDoesNotLeak(t *testing.T) {
	s := NewSupervisor()
	s.Go("bad", func() { panic("boom") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Drain(ctx); err != nil {
		t.Fatalf("Drain after panic: %v", err)
	}
	if got := s.InFlight(); got != 0 {
		t.Errorf("InFlight = %d, want 0", got)
	}
}
