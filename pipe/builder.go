package pipe

import (
	"errors"
	"fmt"

	"github.com/verdantlabs/pipeline/connect"
	"github.com/verdantlabs/pipeline/core"
)

// Severity classifies a specification validation result
type Severity int

const (
	// SeverityWarning is reported but does not abort the build
	SeverityWarning Severity = iota
	// SeverityFailure aborts the build
	SeverityFailure
)

// String returns the string representation of the severity
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// ValidationResult is one finding produced by a specification's Validate
type ValidationResult struct {
	Severity Severity
	Key      string
	Message  string
}

// Error renders the result as text
func (r ValidationResult) Error() string {
	if r.Key != "" {
		return fmt.Sprintf("%s: %s: %s", r.Severity, r.Key, r.Message)
	}
	return fmt.Sprintf("%s: %s", r.Severity, r.Message)
}

// Warning creates a warning-severity result
func Warning(key, message string) ValidationResult {
	return ValidationResult{Severity: SeverityWarning, Key: key, Message: message}
}

// Failure creates a failure-severity result
func Failure(key, message string) ValidationResult {
	return ValidationResult{Severity: SeverityFailure, Key: key, Message: message}
}

// Specification is a build-time fragment: it may inject filters into the
// builder and validate the configuration it carries
type Specification[T Context] interface {
	// Apply contributes zero or more filters to the builder
	Apply(b *Builder[T])

	// Validate reports configuration findings; any failure aborts the build
	Validate() []ValidationResult
}

// Builder assembles an ordered filter chain from specifications and
// compiles it into an immutable Pipe
type Builder[T Context] struct {
	specs   []Specification[T]
	filters []Filter[T]
	logger  core.Logger
}

// BuilderOption configures a Builder
type BuilderOption[T Context] func(*Builder[T])

// WithLogger installs the logger that receives specification warnings
func WithLogger[T Context](logger core.Logger) BuilderOption[T] {
	return func(b *Builder[T]) {
		b.logger = logger
	}
}

// NewBuilder creates an empty pipe builder
func NewBuilder[T Context](opts ...BuilderOption[T]) *Builder[T] {
	b := &Builder[T]{logger: &core.NoOpLogger{}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddSpecification queues specifications for the build
func (b *Builder[T]) AddSpecification(specs ...Specification[T]) *Builder[T] {
	b.specs = append(b.specs, specs...)
	return b
}

// AddFilter appends a filter to the chain. Called by specifications during
// Apply, or directly for pre-built filters.
func (b *Builder[T]) AddFilter(filters ...Filter[T]) *Builder[T] {
	b.filters = append(b.filters, filters...)
	return b
}

// PrependFilter inserts a filter ahead of the current chain
func (b *Builder[T]) PrependFilter(filter Filter[T]) *Builder[T] {
	b.filters = append([]Filter[T]{filter}, b.filters...)
	return b
}

// Build validates every specification, applies them in order, and compiles
// the filter chain. Any failure-severity validation result aborts the build
// with a configuration error carrying the aggregated findings; warnings are
// logged and the build proceeds.
func (b *Builder[T]) Build() (Pipe[T], error) {
	var failures []error
	for _, spec := range b.specs {
		for _, result := range spec.Validate() {
			switch result.Severity {
			case SeverityFailure:
				failures = append(failures, result)
			default:
				b.logger.Warn("pipe specification warning", map[string]interface{}{
					"key":     result.Key,
					"message": result.Message,
				})
			}
		}
	}
	if len(failures) > 0 {
		return nil, fmt.Errorf("pipe build failed: %w: %w",
			errors.Join(failures...), core.ErrConfiguration)
	}

	for _, spec := range b.specs {
		spec.Apply(b)
	}

	observers := connect.NewRegistry[Observer[T]]()
	var head Pipe[T] = endPipe[T]{}
	for i := len(b.filters) - 1; i >= 0; i-- {
		head = &node[T]{filter: b.filters[i], next: head, observers: observers}
	}

	return &pipeline[T]{head: head, observers: observers, filters: len(b.filters)}, nil
}

// filterSpec is the trivial specification wrapping pre-built filters
type filterSpec[T Context] struct {
	filters []Filter[T]
}

func (s *filterSpec[T]) Apply(b *Builder[T]) {
	b.AddFilter(s.filters...)
}

func (s *filterSpec[T]) Validate() []ValidationResult {
	for i, f := range s.filters {
		if f == nil {
			return []ValidationResult{Failure("filter", fmt.Sprintf("filter %d is nil", i))}
		}
	}
	return nil
}

// FilterSpec wraps pre-built filters as a specification
func FilterSpec[T Context](filters ...Filter[T]) Specification[T] {
	return &filterSpec[T]{filters: filters}
}

// New compiles a pipe directly from specifications, the common path when no
// builder customization is needed
func New[T Context](specs ...Specification[T]) (Pipe[T], error) {
	return NewBuilder[T]().AddSpecification(specs...).Build()
}
