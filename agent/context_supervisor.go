package agent

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/verdantlabs/pipeline/core"
	"github.com/verdantlabs/pipeline/pipe"
)

// ContextFactory creates the contexts a ContextSupervisor caches. The
// shared context is long-lived and reused across sends; the active context
// wraps it for the duration of one send, carrying that send's cancellation.
type ContextFactory[T pipe.Context] interface {
	// CreateContext produces a fresh shared context with its lifecycle
	// handle. Called lazily on the first send and again after invalidation.
	CreateContext(sup *ContextSupervisor[T]) (*ContextHandle[T], error)

	// CreateActiveContext wraps the shared context for one send
	CreateActiveContext(sup *ContextSupervisor[T], shared *ContextHandle[T], ctx context.Context) (*ActiveContextHandle[T], error)
}

// ContextSupervisor serves sends by routing user pipes through a cached
// context. At most one shared context exists at any moment, and at most one
// creation of it is ever in flight; concurrent senders share the creation.
type ContextSupervisor[T pipe.Context] struct {
	*Supervisor

	factory ContextFactory[T]
	logger  core.Logger

	creation singleflight.Group

	mu     sync.Mutex
	shared *ContextHandle[T]
	active sync.WaitGroup
}

// ContextSupervisorOption configures a ContextSupervisor
type ContextSupervisorOption func(*contextSupervisorOptions)

type contextSupervisorOptions struct {
	name   string
	logger core.Logger
}

// WithSupervisorName labels the supervisor in logs
func WithSupervisorName(name string) ContextSupervisorOption {
	return func(o *contextSupervisorOptions) {
		o.name = name
	}
}

// WithSupervisorLogger installs the logger receiving cache events
func WithSupervisorLogger(logger core.Logger) ContextSupervisorOption {
	return func(o *contextSupervisorOptions) {
		o.logger = logger
	}
}

// NewContextSupervisor creates a supervisor serving sends through contexts
// produced by factory. The supervisor starts ready.
func NewContextSupervisor[T pipe.Context](factory ContextFactory[T], opts ...ContextSupervisorOption) *ContextSupervisor[T] {
	options := &contextSupervisorOptions{
		name:   "context-supervisor",
		logger: &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(options)
	}

	s := &ContextSupervisor[T]{
		Supervisor: NewSupervisor(WithName(options.name), WithLogger(options.logger)),
		factory:    factory,
		logger:     options.logger,
	}
	s.SetReady()
	return s
}

// Send executes the pipe against an active context derived from the cached
// shared context. New sends are refused once a stop was requested;
// outstanding sends have their context cancelled by the stop and drain
// before the shared context is disposed.
func (s *ContextSupervisor[T]) Send(ctx context.Context, p pipe.Pipe[T]) error {
	s.mu.Lock()
	if s.Stopping() {
		s.mu.Unlock()
		return fmt.Errorf("send refused: %w", core.ErrStopped)
	}
	s.active.Add(1)
	s.mu.Unlock()
	defer s.active.Done()

	// A stop requested while this send is in flight cancels its context, so
	// a send suspended in a retry delay aborts instead of holding the drain
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.Stopped().Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	shared, err := s.sharedContext(ctx)
	if err != nil {
		return err
	}

	activeHandle, err := s.factory.CreateActiveContext(s, shared, ctx)
	if err != nil {
		return fmt.Errorf("creating active context: %w", err)
	}
	defer activeHandle.Dispose()

	return p.Send(activeHandle.Context())
}

// Invalidate initiates disposal of the current shared context. The next
// send lazily recreates one.
func (s *ContextSupervisor[T]) Invalidate() {
	s.mu.Lock()
	shared := s.shared
	s.mu.Unlock()

	if shared != nil {
		shared.Invalidate()
	}
}

// SharedID returns the id of the current shared handle, empty when none
// exists. Diagnostic surface.
func (s *ContextSupervisor[T]) SharedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shared == nil {
		return ""
	}
	return s.shared.ID()
}

// usable reports whether a cached handle can still serve sends: present,
// not disposing, and not flagged invalid
func usable[T pipe.Context](h *ContextHandle[T]) bool {
	return h != nil && !h.Disposed() && !h.Invalidated().Resolved()
}

// sharedContext returns the cached shared handle, creating it through a
// single-flight so concurrent senders share one in-flight creation. A
// failed creation leaves the slot empty for the next send to retry.
func (s *ContextSupervisor[T]) sharedContext(ctx context.Context) (*ContextHandle[T], error) {
	s.mu.Lock()
	if usable(s.shared) {
		shared := s.shared
		s.mu.Unlock()
		return shared, nil
	}
	s.mu.Unlock()

	v, err, _ := s.creation.Do("shared", func() (interface{}, error) {
		s.mu.Lock()
		if usable(s.shared) {
			shared := s.shared
			s.mu.Unlock()
			return shared, nil
		}
		s.mu.Unlock()

		handle, err := s.factory.CreateContext(s)
		if err != nil {
			return nil, fmt.Errorf("creating shared context: %w", err)
		}

		s.mu.Lock()
		s.shared = handle
		s.mu.Unlock()

		s.logger.Debug("shared context created", map[string]interface{}{
			"supervisor": s.Name(), "context_id": handle.ID(),
		})

		// The supervisor owns the invalidation watch for the lifetime of
		// the shared handle
		go s.watchInvalidation(handle)

		return handle, nil
	})
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("send cancelled: %w", ctx.Err())
	}
	return v.(*ContextHandle[T]), nil
}

// watchInvalidation evicts and disposes the shared handle when it signals
// invalid. Disposal also resolves the latch, so the watcher never outlives
// its handle.
func (s *ContextSupervisor[T]) watchInvalidation(handle *ContextHandle[T]) {
	<-handle.Invalidated().Done()

	s.mu.Lock()
	if s.shared == handle {
		s.shared = nil
	}
	s.mu.Unlock()

	s.logger.Debug("shared context invalidated", map[string]interface{}{
		"supervisor": s.Name(), "context_id": handle.ID(),
	})

	if err := handle.Dispose(context.Background()); err != nil {
		s.logger.Warn("shared context disposal failed", map[string]interface{}{
			"supervisor": s.Name(), "context_id": handle.ID(), "error": err.Error(),
		})
	}
}

// Stop refuses new sends, drains outstanding active contexts, disposes the
// shared context, stops supervised children, and then completes the
// supervisor lifecycle. All active sends drain before the shared context is
// disposed.
func (s *ContextSupervisor[T]) Stop(ctx context.Context, reason string) error {
	// The state transition happens under the send mutex: a send either
	// registered with the drain group before this, or observes stopping
	s.mu.Lock()
	initiating := s.initiateStop(reason)
	s.mu.Unlock()

	if !initiating {
		return s.Completed().Wait(ctx)
	}

	drained := make(chan struct{})
	go func() {
		s.active.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		return fmt.Errorf("stop aborted while draining sends: %w", ctx.Err())
	}

	s.mu.Lock()
	shared := s.shared
	s.shared = nil
	s.mu.Unlock()

	if shared != nil {
		if err := shared.Dispose(ctx); err != nil {
			s.logger.Warn("shared context disposal failed", map[string]interface{}{
				"supervisor": s.Name(), "error": err.Error(),
			})
		}
	}

	stopErr := s.stopChildren(ctx, reason)
	if err := s.finishStop(ctx); err != nil {
		return err
	}
	return stopErr
}
