// Package connect provides a mutation-safe handler registry with
// handle-based disconnection. It backs every broadcast surface in the
// framework (filter observers, retry observers, invalidation sinks).
package connect

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// slot pairs a registration id with its handler so a snapshot can be
// disconnected precisely even when the same handler connects twice.
type slot[H any] struct {
	id      uint64
	handler H
}

// Registry is a thread-safe set of handlers. Connect returns a Handle that
// removes exactly that registration. Broadcast iteration observes a
// consistent snapshot even as concurrent connect/disconnect occurs.
type Registry[H any] struct {
	mu       sync.Mutex
	nextID   uint64
	snapshot atomic.Pointer[[]slot[H]]
}

// NewRegistry creates an empty registry
func NewRegistry[H any]() *Registry[H] {
	r := &Registry[H]{}
	empty := make([]slot[H], 0)
	r.snapshot.Store(&empty)
	return r
}

// Handle represents one registration. Disconnect is idempotent.
type Handle struct {
	id   uint64
	once sync.Once
	drop func(id uint64)
}

// Disconnect removes the registration from its registry. After Disconnect
// returns, subsequent broadcasts do not invoke the handler.
func (h *Handle) Disconnect() {
	h.once.Do(func() {
		h.drop(h.id)
	})
}

// Connect adds a handler and returns its Handle
func (r *Registry[H]) Connect(handler H) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID

	current := *r.snapshot.Load()
	next := make([]slot[H], len(current), len(current)+1)
	copy(next, current)
	next = append(next, slot[H]{id: id, handler: handler})
	r.snapshot.Store(&next)

	return &Handle{id: id, drop: r.disconnect}
}

func (r *Registry[H]) disconnect(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.snapshot.Load()
	next := make([]slot[H], 0, len(current))
	for _, s := range current {
		if s.id != id {
			next = append(next, s)
		}
	}
	r.snapshot.Store(&next)
}

// Count returns the number of live registrations
func (r *Registry[H]) Count() int {
	return len(*r.snapshot.Load())
}

// Snapshot returns the current handler set in connection order
func (r *Registry[H]) Snapshot() []H {
	slots := *r.snapshot.Load()
	handlers := make([]H, len(slots))
	for i, s := range slots {
		handlers[i] = s.handler
	}
	return handlers
}

// ForEach invokes action for every handler in the current snapshot
func (r *Registry[H]) ForEach(action func(H)) {
	for _, s := range *r.snapshot.Load() {
		action(s.handler)
	}
}

// ForEachAsync invokes action for every handler in the current snapshot
// concurrently and waits for all of them. Every handler runs regardless of
// individual failures; the failures are aggregated into the returned error.
func (r *Registry[H]) ForEachAsync(ctx context.Context, action func(H) error) error {
	slots := *r.snapshot.Load()
	if len(slots) == 0 {
		return nil
	}

	errs := make([]error, len(slots))
	var wg sync.WaitGroup
	for i, s := range slots {
		wg.Add(1)
		go func(i int, h H) {
			defer wg.Done()
			errs[i] = action(h)
		}(i, s.handler)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	return errors.Join(errs...)
}
