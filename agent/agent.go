package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/verdantlabs/pipeline/core"
)

// Agent is the lifecycle surface of a long-lived resource. Three one-shot
// latches track its progress: Ready resolves when the resource is usable
// (faulting when setup fails), Stopped resolves when a stop was requested,
// and Completed resolves when the resource has fully drained. Completed
// only resolves after Stopped.
type Agent interface {
	// AwaitReady blocks until the agent is usable, returning the ready
	// fault when setup failed
	AwaitReady(ctx context.Context) error

	// Stop requests shutdown and blocks until the agent has drained
	Stop(ctx context.Context, reason string) error

	// Ready is the latch for the usable event
	Ready() *Latch

	// Stopped is the latch for the stop request
	Stopped() *Latch

	// Completed is the latch for the fully-drained event
	Completed() *Latch
}

// Base is the standard Agent implementation. It may be embedded by
// resources that need the three-latch lifecycle.
type Base struct {
	id        string
	name      string
	ready     *Latch
	stopped   *Latch
	completed *Latch
	logger    core.Logger
}

// BaseOption configures a Base agent
type BaseOption func(*Base)

// WithName labels the agent in logs
func WithName(name string) BaseOption {
	return func(b *Base) {
		b.name = name
	}
}

// WithLogger installs the logger receiving lifecycle events
func WithLogger(logger core.Logger) BaseOption {
	return func(b *Base) {
		b.logger = logger
	}
}

// NewBase creates an agent with all three latches pending
func NewBase(opts ...BaseOption) *Base {
	b := &Base{
		id:        uuid.NewString(),
		name:      "agent",
		ready:     NewLatch(),
		stopped:   NewLatch(),
		completed: NewLatch(),
		logger:    &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ID returns the agent's unique identifier
func (b *Base) ID() string { return b.id }

// Name returns the agent's log label
func (b *Base) Name() string { return b.name }

// Ready is the latch for the usable event
func (b *Base) Ready() *Latch { return b.ready }

// Stopped is the latch for the stop request
func (b *Base) Stopped() *Latch { return b.stopped }

// Completed is the latch for the fully-drained event
func (b *Base) Completed() *Latch { return b.completed }

// SetReady resolves Ready as success. Repeated calls are no-ops.
func (b *Base) SetReady() bool {
	resolved := b.ready.Resolve(nil)
	if resolved {
		b.logger.Debug("agent ready", map[string]interface{}{
			"agent": b.name, "id": b.id,
		})
	}
	return resolved
}

// SetNotReady resolves Ready as faulted with the given cause. The agent
// can still be stopped and drained to Completed.
func (b *Base) SetNotReady(cause error) bool {
	if cause == nil {
		cause = core.ErrNotReady
	}
	resolved := b.ready.Resolve(fmt.Errorf("%s: %v: %w", b.name, cause, core.ErrNotReady))
	if resolved {
		b.logger.Warn("agent faulted", map[string]interface{}{
			"agent": b.name, "id": b.id, "error": cause.Error(),
		})
	}
	return resolved
}

// Faulted reports whether Ready resolved as a failure
func (b *Base) Faulted() bool {
	return b.ready.Resolved() && b.ready.Err() != nil
}

// SetCompleted resolves Completed. It fails unless Stopped has resolved:
// an agent never completes before a stop was requested.
func (b *Base) SetCompleted(err error) error {
	if !b.stopped.Resolved() {
		return fmt.Errorf("agent %s completed before stop: %w", b.name, core.ErrNotStopped)
	}
	b.completed.Resolve(err)
	return nil
}

// AwaitReady blocks until Ready resolves, returning its fault if any
func (b *Base) AwaitReady(ctx context.Context) error {
	return b.ready.Wait(ctx)
}

// beginStop resolves Stopped and cancels a still-pending Ready. It reports
// whether this call initiated the stop. Completion is driven separately so
// supervising types can drain before Completed resolves.
func (b *Base) beginStop(reason string) bool {
	if !b.stopped.Resolve(nil) {
		return false
	}
	b.logger.Debug("agent stopping", map[string]interface{}{
		"agent": b.name, "id": b.id, "reason": reason,
	})
	// A ready latch still pending at stop becomes observable as cancelled
	// rather than leaving awaiters hanging
	b.ready.Resolve(fmt.Errorf("%s stopped: %w", b.name, core.ErrContextCanceled))
	return true
}

// Stop resolves Stopped, cancels a still-pending Ready, and blocks until
// Completed resolves. Repeated calls wait on the same completion.
func (b *Base) Stop(ctx context.Context, reason string) error {
	if b.beginStop(reason) {
		b.completed.Resolve(nil)
	}
	return b.completed.Wait(ctx)
}
