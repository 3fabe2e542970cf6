package mcp

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Supervisor tracks fire-and-forget goroutines spawned for inbound
// dispatches. Adapters hand envelopes to the router without waiting for the
// reply; the supervisor keeps those dispatches countable and drainable so
// shutdown can wait for in-flight work instead of dropping it.
type Supervisor struct {
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// NewSupervisor creates an empty supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{}
}

// Go runs fn in a supervised goroutine. A panic in fn is recovered and
// logged; it never takes the process down.
func (s *Supervisor) Go(name string, fn func()) {
	s.wg.Add(1)
	s.inFlight.Add(1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("supervised task panicked", "task", name, "panic", r)
			}
			s.inFlight.Add(-1)
			s.wg.Done()
		}()
		fn()
	}()
}

// InFlight reports how many supervised tasks are currently running.
func (s *Supervisor) InFlight() int64 {
	return s.inFlight.Load()
}

// Drain blocks until all supervised tasks finish or ctx expires. Tasks still
// running when ctx expires keep running; Drain only stops waiting for them.
func (s *Supervisor) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		slog.Warn("drain timed out with tasks still running", "in_flight", s.InFlight())
		return ctx.Err()
	}
}
