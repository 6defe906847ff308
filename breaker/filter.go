package breaker

import (
	"fmt"

	"github.com/verdantlabs/pipeline/core"
	"github.com/verdantlabs/pipeline/pipe"
)

// breakerFilter gates the downstream pipe behind a circuit breaker
type breakerFilter[T pipe.Context] struct {
	cb *CircuitBreaker
}

func (f *breakerFilter[T]) Send(ctx T, next pipe.Pipe[T]) error {
	if !f.cb.CanExecute() {
		f.cb.config.Metrics.RecordRejection(f.cb.config.Name)
		return fmt.Errorf("circuit breaker %q rejected send: %w", f.cb.config.Name, core.ErrBreakerOpen)
	}

	err := next.Send(ctx)
	if err != nil {
		f.cb.RecordFailure(err)
		return err
	}
	f.cb.RecordSuccess()
	return nil
}

func (f *breakerFilter[T]) Probe(sink pipe.ProbeSink) {
	scope := sink.Scope("filter")
	scope.Add("filter", "circuitBreaker")
	scope.Add("name", f.cb.config.Name)
	scope.Add("state", f.cb.GetState().String())
	scope.Add("errorThreshold", f.cb.config.ErrorThreshold)
	scope.Add("volumeThreshold", f.cb.config.VolumeThreshold)
	scope.Add("sleepWindow", f.cb.config.SleepWindow)
}

// NewFilter creates a pipe filter protected by the given breaker
func NewFilter[T pipe.Context](cb *CircuitBreaker) pipe.Filter[T] {
	return &breakerFilter[T]{cb: cb}
}

// Spec wraps a breaker filter as a pipe specification
type Spec[T pipe.Context] struct {
	config *Config
}

// UseBreaker creates a specification installing a circuit-breaker filter
func UseBreaker[T pipe.Context](config *Config) *Spec[T] {
	return &Spec[T]{config: config}
}

// Apply contributes the breaker filter to the builder
func (s *Spec[T]) Apply(b *pipe.Builder[T]) {
	cb, err := New(s.config)
	if err != nil {
		// Validate already rejected this configuration before Apply runs
		return
	}
	b.AddFilter(NewFilter[T](cb))
}

// Validate checks the breaker configuration
func (s *Spec[T]) Validate() []pipe.ValidationResult {
	config := s.config
	if config == nil {
		return nil
	}
	if err := config.Validate(); err != nil {
		return []pipe.ValidationResult{pipe.Failure("breaker", err.Error())}
	}
	return nil
}
