package agent

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/verdantlabs/pipeline/pipe"
)

// handle states
const (
	handleActive int32 = iota
	handleDisposing
	handleDisposed
)

// ContextHandle owns one cached pipe context and its lifecycle agent. The
// supervisor holds at most one as the shared context; disposal is
// idempotent and signals the invalidation watcher.
type ContextHandle[T pipe.Context] struct {
	id      string
	ctx     T
	agent   *Base
	invalid *Latch
	state   atomic.Int32

	disposeOnce sync.Once
	disposeErr  error
	onDispose   func()
}

// NewContextHandle wraps a freshly created context. onDispose, when not
// nil, runs after the lifecycle agent has drained (releasing the payload's
// underlying resource).
func NewContextHandle[T pipe.Context](ctx T, a *Base, onDispose func()) *ContextHandle[T] {
	if a == nil {
		a = NewBase(WithName("pipe-context"))
	}
	return &ContextHandle[T]{
		id:        uuid.NewString(),
		ctx:       ctx,
		agent:     a,
		invalid:   NewLatch(),
		onDispose: onDispose,
	}
}

// ID returns the handle's unique identifier
func (h *ContextHandle[T]) ID() string { return h.id }

// Context returns the owned pipe context
func (h *ContextHandle[T]) Context() T { return h.ctx }

// Agent returns the context's lifecycle agent
func (h *ContextHandle[T]) Agent() *Base { return h.agent }

// Invalidate signals that the cached context is no longer usable. The
// owning supervisor disposes the handle and evicts it from the cache;
// sends already in flight complete or fault naturally.
func (h *ContextHandle[T]) Invalidate() {
	h.invalid.Resolve(nil)
}

// Invalidated is the latch resolved when the context was invalidated or
// the handle disposed
func (h *ContextHandle[T]) Invalidated() *Latch { return h.invalid }

// Disposed reports whether disposal has been initiated
func (h *ContextHandle[T]) Disposed() bool {
	return h.state.Load() != handleActive
}

// Dispose stops the context's lifecycle agent and releases the underlying
// resource. It is idempotent; concurrent callers share one disposal.
func (h *ContextHandle[T]) Dispose(ctx context.Context) error {
	h.disposeOnce.Do(func() {
		h.state.Store(handleDisposing)
		h.disposeErr = h.agent.Stop(ctx, "context disposed")
		if h.onDispose != nil {
			h.onDispose()
		}
		h.state.Store(handleDisposed)
		// wake the invalidation watcher so it never outlives the handle
		h.invalid.Resolve(nil)
	})
	return h.disposeErr
}

// ActiveContextHandle owns the per-send context wrapping a shared context
// for the duration of one send
type ActiveContextHandle[T pipe.Context] struct {
	id     string
	ctx    T
	shared *ContextHandle[T]

	disposeOnce sync.Once
	onDispose   func()
}

// NewActiveContextHandle wraps a per-send context derived from shared
func NewActiveContextHandle[T pipe.Context](ctx T, shared *ContextHandle[T], onDispose func()) *ActiveContextHandle[T] {
	return &ActiveContextHandle[T]{
		id:        uuid.NewString(),
		ctx:       ctx,
		shared:    shared,
		onDispose: onDispose,
	}
}

// ID returns the handle's unique identifier
func (h *ActiveContextHandle[T]) ID() string { return h.id }

// Context returns the per-send pipe context
func (h *ActiveContextHandle[T]) Context() T { return h.ctx }

// Shared returns the shared handle this send wraps
func (h *ActiveContextHandle[T]) Shared() *ContextHandle[T] { return h.shared }

// Dispose releases the per-send context. Idempotent.
func (h *ActiveContextHandle[T]) Dispose() {
	h.disposeOnce.Do(func() {
		if h.onDispose != nil {
			h.onDispose()
		}
	})
}
