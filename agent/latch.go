// Package agent implements the cooperative lifecycle for long-lived
// resources: one-shot lifecycle latches, the Ready/Stopped/Completed state
// machine, hierarchical supervision, and the pipe-context supervisor that
// caches shared contexts across sends.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/verdantlabs/pipeline/core"
)

// Latch is a one-shot completion event consumable by multiple awaiters. It
// transitions from pending to resolved exactly once, carrying an optional
// failure cause. Resolve is idempotent.
type Latch struct {
	mu       sync.Mutex
	done     chan struct{}
	resolved bool
	err      error
}

// NewLatch creates a pending latch
func NewLatch() *Latch {
	return &Latch{done: make(chan struct{})}
}

// Resolve settles the latch, succeeding when err is nil and faulting
// otherwise. Only the first call has effect; it reports whether this call
// settled the latch.
func (l *Latch) Resolve(err error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.resolved {
		return false
	}
	l.resolved = true
	l.err = err
	close(l.done)
	return true
}

// Done returns a channel closed when the latch resolves
func (l *Latch) Done() <-chan struct{} {
	return l.done
}

// Resolved reports whether the latch has settled
func (l *Latch) Resolved() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resolved
}

// Err returns the failure cause, nil while pending or on success
func (l *Latch) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Wait blocks until the latch resolves or ctx is cancelled. It returns the
// latch's failure cause, or the cancellation cause when ctx trips first.
func (l *Latch) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.err
	case <-ctx.Done():
		return fmt.Errorf("wait aborted: %v: %w", ctx.Err(), core.ErrContextCanceled)
	}
}
