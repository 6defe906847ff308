// Package pipe implements the typed middleware pipeline: contexts carrying a
// payload bag flow through ordered filter chains compiled by a builder.
package pipe

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/verdantlabs/pipeline/core"
)

// Context is the request-scoped carrier flowing through a pipe. It embeds
// context.Context for cancellation and deadline propagation and adds a
// payload bag keyed by the payload's concrete type. At most one payload
// exists per type; payloads are supplied additively and only replaced
// through AddOrUpdatePayload.
type Context interface {
	context.Context

	// HasPayload reports whether a payload of the given type is present
	HasPayload(t reflect.Type) bool

	// GetPayload returns the payload stored under the given type
	GetPayload(t reflect.Type) (interface{}, bool)

	// GetOrAddPayload returns the existing payload or stores the factory
	// result. The factory runs at most once per type per context.
	GetOrAddPayload(t reflect.Type, factory func() (interface{}, error)) (interface{}, error)

	// AddOrUpdatePayload stores the add result when no payload exists, or
	// replaces the current payload with the update result.
	AddOrUpdatePayload(t reflect.Type, add func() (interface{}, error), update func(interface{}) (interface{}, error)) (interface{}, error)
}

// BasePipeContext is the standard Context implementation: a mutex-guarded
// type-keyed payload map layered over a context.Context.
type BasePipeContext struct {
	context.Context

	mu       sync.Mutex
	payloads map[reflect.Type]interface{}
}

// NewContext creates a pipe context wrapping the given cancellation context
func NewContext(ctx context.Context) *BasePipeContext {
	return &BasePipeContext{
		Context:  ctx,
		payloads: make(map[reflect.Type]interface{}),
	}
}

// HasPayload reports whether a payload of the given type is present
func (c *BasePipeContext) HasPayload(t reflect.Type) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.payloads[t]
	return ok
}

// GetPayload returns the payload stored under the given type
func (c *BasePipeContext) GetPayload(t reflect.Type) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.payloads[t]
	return v, ok
}

// GetOrAddPayload returns the existing payload or stores the factory result.
// The lock is held across the factory call so the factory runs at most once
// per type per context.
func (c *BasePipeContext) GetOrAddPayload(t reflect.Type, factory func() (interface{}, error)) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.payloads[t]; ok {
		return v, nil
	}

	v, err := factory()
	if err != nil {
		return nil, fmt.Errorf("payload %s: %v: %w", t, err, core.ErrPayloadFactory)
	}
	c.payloads[t] = v
	return v, nil
}

// AddOrUpdatePayload stores the add result when no payload exists, or
// replaces the current payload with the update result
func (c *BasePipeContext) AddOrUpdatePayload(t reflect.Type, add func() (interface{}, error), update func(interface{}) (interface{}, error)) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.payloads[t]
	var (
		v   interface{}
		err error
	)
	if ok {
		v, err = update(current)
	} else {
		v, err = add()
	}
	if err != nil {
		return nil, fmt.Errorf("payload %s: %v: %w", t, err, core.ErrPayloadFactory)
	}
	c.payloads[t] = v
	return v, nil
}

// ProxyPipeContext layers a local payload bag over a wrapped Context. Reads
// fall through to the wrapped context when the local bag misses; writes stay
// local. Active per-send contexts wrap long-lived shared contexts this way.
type ProxyPipeContext struct {
	context.Context

	parent Context
	local  *BasePipeContext
}

// NewProxy creates a proxy context. ctx supplies cancellation for this send;
// parent supplies fall-through payloads.
func NewProxy(parent Context, ctx context.Context) *ProxyPipeContext {
	return &ProxyPipeContext{
		Context: ctx,
		parent:  parent,
		local:   NewContext(ctx),
	}
}

// Parent returns the wrapped context
func (c *ProxyPipeContext) Parent() Context {
	return c.parent
}

// HasPayload reports whether the payload exists locally or in the parent
func (c *ProxyPipeContext) HasPayload(t reflect.Type) bool {
	return c.local.HasPayload(t) || c.parent.HasPayload(t)
}

// GetPayload reads locally first, then from the parent
func (c *ProxyPipeContext) GetPayload(t reflect.Type) (interface{}, bool) {
	if v, ok := c.local.GetPayload(t); ok {
		return v, true
	}
	return c.parent.GetPayload(t)
}

// GetOrAddPayload reads through to the parent, adding locally on a miss
func (c *ProxyPipeContext) GetOrAddPayload(t reflect.Type, factory func() (interface{}, error)) (interface{}, error) {
	if v, ok := c.parent.GetPayload(t); ok {
		return v, nil
	}
	return c.local.GetOrAddPayload(t, factory)
}

// AddOrUpdatePayload updates the local bag, seeding the update path from the
// parent when only the parent holds the payload
func (c *ProxyPipeContext) AddOrUpdatePayload(t reflect.Type, add func() (interface{}, error), update func(interface{}) (interface{}, error)) (interface{}, error) {
	seededAdd := func() (interface{}, error) {
		if v, ok := c.parent.GetPayload(t); ok {
			return update(v)
		}
		return add()
	}
	return c.local.AddOrUpdatePayload(t, seededAdd, update)
}

// HasPayload reports whether the context holds a payload of type P
func HasPayload[P any](ctx Context) bool {
	return ctx.HasPayload(reflect.TypeFor[P]())
}

// TryGetPayload returns the payload of type P when present
func TryGetPayload[P any](ctx Context) (P, bool) {
	v, ok := ctx.GetPayload(reflect.TypeFor[P]())
	if !ok {
		var zero P
		return zero, false
	}
	return v.(P), true
}

// GetOrAddPayload returns the payload of type P, invoking factory at most
// once per context to create it
func GetOrAddPayload[P any](ctx Context, factory func() (P, error)) (P, error) {
	v, err := ctx.GetOrAddPayload(reflect.TypeFor[P](), func() (interface{}, error) {
		return factory()
	})
	if err != nil {
		var zero P
		return zero, err
	}
	return v.(P), nil
}

// AddOrUpdatePayload adds the payload of type P when absent or transforms
// the current value when present
func AddOrUpdatePayload[P any](ctx Context, add func() (P, error), update func(P) (P, error)) (P, error) {
	v, err := ctx.AddOrUpdatePayload(reflect.TypeFor[P](),
		func() (interface{}, error) {
			return add()
		},
		func(current interface{}) (interface{}, error) {
			return update(current.(P))
		})
	if err != nil {
		var zero P
		return zero, err
	}
	return v.(P), nil
}
