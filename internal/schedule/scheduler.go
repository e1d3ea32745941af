package schedule

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler drives the Registry/FanOut pair through the fixed-rate tick
// loop: on each due UpdateInterval, merge its StatSet into
// a per-cluster work list, dispatch it, and join before sleeping again.
type Scheduler struct {
	Registry *Registry
	FanOut   *FanOut
	Logger   *slog.Logger

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewScheduler builds a Scheduler ready to Run.
func NewScheduler(registry *Registry, fanOut *FanOut, logger *slog.Logger) *Scheduler {
	return &Scheduler{Registry: registry, FanOut: fanOut, Logger: logger, Now: time.Now}
}

// Run initializes every UpdateInterval to fire immediately, then loops:
// sleep until the next deadline, tick, dispatch, join, repeat. It returns
// when ctx is cancelled, after the in-flight dispatch (if any) has joined.
func (s *Scheduler) Run(ctx context.Context) {
	now := s.Now()
	s.Registry.Init(now)

	for {
		deadline := s.Registry.NextDeadline()
		wait := time.Until(deadline)
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		jobs := s.Registry.Tick(s.Now())
		if len(jobs) == 0 {
			continue
		}
		if s.Logger != nil {
			s.Logger.Debug("tick", "clusters", len(jobs))
		}
		s.FanOut.Dispatch(ctx, jobs)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
