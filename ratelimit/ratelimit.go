// Package ratelimit implements a token-bucket rate-limiting filter for
// pipes.
package ratelimit

import (
	"fmt"

	"golang.org/x/time/rate"

	"github.com/verdantlabs/pipeline/core"
	"github.com/verdantlabs/pipeline/pipe"
)

// Mode selects the behavior when no token is available
type Mode int

const (
	// ModeWait suspends the send until a token is available, honoring the
	// context's cancellation
	ModeWait Mode = iota
	// ModeReject fails the send immediately
	ModeReject
)

// limitFilter gates the downstream pipe behind a token bucket
type limitFilter[T pipe.Context] struct {
	limiter *rate.Limiter
	mode    Mode
}

func (f *limitFilter[T]) Send(ctx T, next pipe.Pipe[T]) error {
	switch f.mode {
	case ModeReject:
		if !f.limiter.Allow() {
			return fmt.Errorf("send rejected: %w", core.ErrRateLimited)
		}
	default:
		if err := f.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait aborted: %w", err)
		}
	}
	return next.Send(ctx)
}

func (f *limitFilter[T]) Probe(sink pipe.ProbeSink) {
	scope := sink.Scope("filter")
	scope.Add("filter", "rateLimit")
	scope.Add("limit", float64(f.limiter.Limit()))
	scope.Add("burst", f.limiter.Burst())
}

// NewFilter creates a rate-limiting filter allowing limit events per
// second with the given burst
func NewFilter[T pipe.Context](limit rate.Limit, burst int, mode Mode) pipe.Filter[T] {
	return &limitFilter[T]{limiter: rate.NewLimiter(limit, burst), mode: mode}
}

// Spec wraps a rate-limiting filter as a pipe specification
type Spec[T pipe.Context] struct {
	limit rate.Limit
	burst int
	mode  Mode
}

// UseRateLimit creates a specification installing a rate-limiting filter
func UseRateLimit[T pipe.Context](limit rate.Limit, burst int, mode Mode) *Spec[T] {
	return &Spec[T]{limit: limit, burst: burst, mode: mode}
}

// Apply contributes the filter to the builder
func (s *Spec[T]) Apply(b *pipe.Builder[T]) {
	b.AddFilter(NewFilter[T](s.limit, s.burst, s.mode))
}

// Validate checks the limiter configuration
func (s *Spec[T]) Validate() []pipe.ValidationResult {
	if s.limit <= 0 {
		return []pipe.ValidationResult{pipe.Failure("ratelimit", "limit must be positive")}
	}
	if s.burst < 1 {
		return []pipe.ValidationResult{pipe.Failure("ratelimit", "burst must be at least 1")}
	}
	return nil
}
