package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/verdantlabs/pipeline/core"
)

// supervisor run states
const (
	stateRunning int = iota
	stateStopping
	stateStopped
)

// Supervisor is an Agent that tracks child agents. Its readiness aggregates
// its own ready event with every child's; its completion gates on every
// child's completion.
type Supervisor struct {
	*Base

	mu       sync.Mutex
	children []Agent
	state    int
}

// NewSupervisor creates a supervisor with no children
func NewSupervisor(opts ...BaseOption) *Supervisor {
	return &Supervisor{Base: NewBase(opts...)}
}

// Add records a child under supervision. When the supervisor is already
// stopping or stopped the child is stopped immediately; its completion is
// still tracked.
func (s *Supervisor) Add(child Agent) error {
	s.mu.Lock()
	stopping := s.state != stateRunning
	s.children = append(s.children, child)
	s.mu.Unlock()

	if stopping {
		if err := child.Stop(context.Background(), "supervisor stopped"); err != nil {
			return fmt.Errorf("stopping late child: %w", err)
		}
		return fmt.Errorf("child added after stop: %w", core.ErrStopped)
	}
	return nil
}

// ChildCount returns the number of supervised children
func (s *Supervisor) ChildCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.children)
}

// Stopping reports whether a stop has been requested
func (s *Supervisor) Stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != stateRunning
}

func (s *Supervisor) snapshot() []Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Agent{}, s.children...)
}

// AwaitReady blocks until the supervisor's own ready event and every
// child's Ready have resolved. Child faults aggregate into a single
// failure; children added while waiting are included.
func (s *Supervisor) AwaitReady(ctx context.Context) error {
	var faults []error
	if err := s.Base.AwaitReady(ctx); err != nil {
		if core.IsCancellation(err) {
			return err
		}
		faults = append(faults, err)
	}

	seen := 0
	for {
		children := s.snapshot()
		if seen == len(children) {
			break
		}
		for _, child := range children[seen:] {
			if err := child.Ready().Wait(ctx); err != nil {
				if core.IsCancellation(err) && ctx.Err() != nil {
					return err
				}
				faults = append(faults, err)
			}
		}
		seen = len(children)
	}

	if len(faults) > 0 {
		return fmt.Errorf("supervisor %s ready fault: %w: %w",
			s.Name(), errors.Join(faults...), core.ErrNotReady)
	}
	return nil
}

// initiateStop transitions running→stopping, resolving Stopped and
// cancelling a pending Ready. It reports whether this call initiated the
// stop; later phases (stopChildren, finishStop) belong to the initiator.
func (s *Supervisor) initiateStop(reason string) bool {
	s.mu.Lock()
	initiating := s.state == stateRunning
	if initiating {
		s.state = stateStopping
	}
	s.mu.Unlock()

	if initiating {
		s.beginStop(reason)
	}
	return initiating
}

// stopChildren forwards the stop to every child in registration order and
// waits for all child completions
func (s *Supervisor) stopChildren(ctx context.Context, reason string) error {
	var errs []error
	for _, child := range s.snapshot() {
		if err := child.Stop(ctx, reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// finishStop resolves Completed once every drain has finished
func (s *Supervisor) finishStop(ctx context.Context) error {
	s.mu.Lock()
	s.state = stateStopped
	s.mu.Unlock()

	s.Completed().Resolve(nil)
	return s.Completed().Wait(ctx)
}

// Stop forwards the stop to every child in registration order, waits for
// all child completions plus its own drain, and then resolves Completed.
// Repeated calls wait on the same completion.
func (s *Supervisor) Stop(ctx context.Context, reason string) error {
	if !s.initiateStop(reason) {
		return s.Completed().Wait(ctx)
	}

	stopErr := s.stopChildren(ctx, reason)
	if err := s.finishStop(ctx); err != nil {
		return err
	}
	return stopErr
}
