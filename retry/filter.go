package retry

import (
	"fmt"
	"time"

	"github.com/verdantlabs/pipeline/connect"
	"github.com/verdantlabs/pipeline/core"
	"github.com/verdantlabs/pipeline/pipe"
)

// ExhaustedError is raised when every permitted attempt has failed. Primary
// is the most recent failure; Prior holds the failures from the earlier
// attempts in order.
type ExhaustedError struct {
	Primary error
	Prior   []error
}

// Error returns the string representation of the error
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry attempts exhausted after %d failures: %v: %v",
		len(e.Prior)+1, e.Primary, core.ErrRetriesExhausted)
}

// Unwrap exposes the primary failure and the exhaustion sentinel
func (e *ExhaustedError) Unwrap() []error {
	return []error{e.Primary, core.ErrRetriesExhausted}
}

// Observer receives retry lifecycle notifications as side metadata
type Observer interface {
	// PostFault fires when a retryable failure is classified
	PostFault(rctx *Context)

	// PreRetry fires before the downstream pipe is re-invoked
	PreRetry(rctx *Context)

	// RetryComplete fires when a re-invocation succeeds
	RetryComplete(rctx *Context)

	// RetryFault fires when the attempts are exhausted
	RetryFault(rctx *Context)
}

// ObserverConnector is implemented by retry filters
type ObserverConnector interface {
	ConnectRetryObserver(observer Observer) *connect.Handle
}

// Resettable contexts carry per-send retry state that must clear between
// attempts. The retry filter resets it before every re-invocation.
type Resettable interface {
	ResetRetryState()
}

// retryFilter applies a policy around the downstream pipe
type retryFilter[T pipe.Context] struct {
	policy    Policy
	observers *connect.Registry[Observer]
	logger    core.Logger
}

// FilterOption configures a retry filter
type FilterOption func(*filterOptions)

type filterOptions struct {
	logger core.Logger
}

// WithLogger installs the logger receiving retry attempt events
func WithLogger(logger core.Logger) FilterOption {
	return func(o *filterOptions) {
		o.logger = logger
	}
}

// NewFilter creates a pipe filter that retries the downstream chain
// according to the policy. The filter is stateless across sends and safe
// for concurrent use.
func NewFilter[T pipe.Context](policy Policy, opts ...FilterOption) pipe.Filter[T] {
	options := &filterOptions{logger: &core.NoOpLogger{}}
	for _, opt := range opts {
		opt(options)
	}
	return &retryFilter[T]{
		policy:    policy,
		observers: connect.NewRegistry[Observer](),
		logger:    options.logger,
	}
}

// ConnectRetryObserver attaches an observer for retry lifecycle events
func (f *retryFilter[T]) ConnectRetryObserver(observer Observer) *connect.Handle {
	return f.observers.Connect(observer)
}

// Send invokes the downstream pipe, retrying classified failures until
// success, exhaustion, or cancellation
func (f *retryFilter[T]) Send(ctx T, next pipe.Pipe[T]) error {
	err := next.Send(ctx)
	if err == nil {
		return nil
	}
	if core.IsCancellation(err) {
		return err
	}

	rctx, ok := f.policy.CanRetry(err)
	if !ok {
		return err
	}

	for rctx.CanRetry() {
		f.observers.ForEach(func(o Observer) { o.PostFault(rctx) })

		// Suspend for the current context's delay, aborting with the
		// cancellation cause when the token trips
		if delay := rctx.Delay(); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry aborted by cancellation: %w", ctx.Err())
			case <-timer.C:
			}
		} else {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry aborted by cancellation: %w", ctx.Err())
			default:
			}
		}

		if r, ok := any(ctx).(Resettable); ok {
			r.ResetRetryState()
		}

		f.observers.ForEach(func(o Observer) { o.PreRetry(rctx) })
		f.logger.Debug("retrying pipe send", map[string]interface{}{
			"attempt": rctx.Attempt(),
			"delay":   rctx.Delay().String(),
			"error":   rctx.Err().Error(),
		})

		err = next.Send(ctx)
		if err == nil {
			f.observers.ForEach(func(o Observer) { o.RetryComplete(rctx) })
			return nil
		}
		if core.IsCancellation(err) {
			return err
		}

		rctx = rctx.Next(err)
	}

	f.observers.ForEach(func(o Observer) { o.RetryFault(rctx) })
	f.logger.Warn("retry attempts exhausted", map[string]interface{}{
		"attempts": rctx.Attempt() + 1,
		"error":    rctx.Err().Error(),
	})
	return &ExhaustedError{Primary: rctx.Err(), Prior: rctx.PriorErrors()}
}

// Probe contributes the policy metadata
func (f *retryFilter[T]) Probe(sink pipe.ProbeSink) {
	scope := sink.Scope("filter")
	scope.Add("filter", "retry")
	f.policy.Probe(scope)
}

// Spec wraps a retry filter as a pipe specification, validating the policy
// configuration at build time
type Spec[T pipe.Context] struct {
	policy Policy
	opts   []FilterOption
}

// UseRetry creates a specification installing a retry filter built from the
// given options:
//
//	p, err := pipe.New(
//	    retry.UseRetry[*pipe.BasePipeContext](retry.Immediate(3)),
//	    pipe.ExecuteSpec("work", doWork),
//	)
func UseRetry[T pipe.Context](opts ...Option) *Spec[T] {
	return UsePolicy[T](NewPolicy(opts...))
}

// UsePolicy creates a specification installing a retry filter for a
// pre-built policy
func UsePolicy[T pipe.Context](policy Policy, opts ...FilterOption) *Spec[T] {
	return &Spec[T]{policy: policy, opts: opts}
}

// Apply contributes the retry filter to the builder
func (s *Spec[T]) Apply(b *pipe.Builder[T]) {
	b.AddFilter(NewFilter[T](s.policy, s.opts...))
}

// Validate checks the policy configuration
func (s *Spec[T]) Validate() []pipe.ValidationResult {
	if s.policy == nil {
		return []pipe.ValidationResult{pipe.Failure("retry", "policy must not be nil")}
	}
	if s.policy.Limit() < 0 {
		return []pipe.ValidationResult{pipe.Failure("retry", "retry limit cannot be negative")}
	}
	if s.policy.Limit() == 0 {
		if _, ok := s.policy.(nonePolicy); !ok {
			return []pipe.ValidationResult{pipe.Warning("retry", "retry policy has a zero limit and will never retry")}
		}
	}
	return nil
}
