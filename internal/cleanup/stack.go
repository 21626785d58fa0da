package cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/containerd/log"
)

// Func undoes one piece of setup.
type Func func(context.Context) error

type entry struct {
	name string
	fn   Func
}

// Stack collects teardown steps as setup progresses and runs them in
// reverse order. A failing step is reported and the remaining steps still run.
type Stack struct {
	mu      sync.Mutex
	entries []entry

	// OnError is called for every failing step. When nil the failure is
	// logged as a warning.
	OnError func(ctx context.Context, name string, err error)
	// Timeout bounds Run; zero means DefaultTimeout.
	Timeout time.Duration
}

// Push registers fn to run during Run. Later pushes run first.
func (s *Stack) Push(name string, fn Func) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry{name: name, fn: fn})
}

// Len returns the number of pending steps.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Run pops and executes every pending step, newest first, under Do.
// It returns the number of steps that failed.
func (s *Stack) Run(ctx context.Context) int {
	s.mu.Lock()
	entries := s.entries
	s.entries = nil
	s.mu.Unlock()

	var failed int
	err := Do(ctx, s.Timeout, func(ctx context.Context) {
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			if err := e.fn(ctx); err != nil {
				failed++
				if s.OnError != nil {
					s.OnError(ctx, e.name, err)
					continue
				}
				log.G(ctx).WithError(err).WithField("step", e.name).Warn("cleanup step failed")
			}
		}
	})
	if err != nil {
		log.G(ctx).WithError(err).WithField("steps", len(entries)).Warn("teardown ran past its deadline")
	}
	return failed
}
