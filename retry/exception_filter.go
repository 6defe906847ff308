// Package retry implements retry policies, the failure classification that
// decides which errors are retryable, and the pipe filter that re-invokes a
// downstream chain until success or exhaustion.
package retry

import "errors"

// ExceptionFilter classifies which failures a policy may retry
type ExceptionFilter interface {
	Match(err error) bool
}

// Matcher reports whether an error belongs to one error type. Build one
// with Type for concrete error types or Sentinel for errors.Is targets.
type Matcher func(err error) bool

// Type creates a matcher for a concrete error type, honoring wrapping via
// errors.As. Use the pointer form for pointer-receiver error types:
//
//	retry.Type[*net.OpError]()
func Type[E error]() Matcher {
	return func(err error) bool {
		var target E
		return errors.As(err, &target)
	}
}

// Sentinel creates a matcher for a sentinel error value via errors.Is
func Sentinel(target error) Matcher {
	return func(err error) bool {
		return errors.Is(err, target)
	}
}

// allFilter matches every error
type allFilter struct{}

func (allFilter) Match(err error) bool { return err != nil }

// All creates a filter matching every failure
func All() ExceptionFilter { return allFilter{} }

// selectedFilter matches errors belonging to any of its matchers
type selectedFilter struct {
	matchers []Matcher
}

func (f *selectedFilter) Match(err error) bool {
	if err == nil {
		return false
	}
	for _, m := range f.matchers {
		if m(err) {
			return true
		}
	}
	return false
}

// Selected creates a filter matching only the given error types
func Selected(matchers ...Matcher) ExceptionFilter {
	return &selectedFilter{matchers: matchers}
}

// exceptFilter matches errors belonging to none of its matchers
type exceptFilter struct {
	matchers []Matcher
}

func (f *exceptFilter) Match(err error) bool {
	if err == nil {
		return false
	}
	for _, m := range f.matchers {
		if m(err) {
			return false
		}
	}
	return true
}

// Except creates a filter matching every failure except the given types
func Except(matchers ...Matcher) ExceptionFilter {
	return &exceptFilter{matchers: matchers}
}

// typedFilter narrows the error to E and applies a predicate
type typedFilter[E error] struct {
	pred func(E) bool
}

func (f *typedFilter[E]) Match(err error) bool {
	var target E
	if !errors.As(err, &target) {
		return false
	}
	return f.pred(target)
}

// Filter creates a filter that matches when the error narrows to E and the
// predicate accepts it
func Filter[E error](pred func(E) bool) ExceptionFilter {
	return &typedFilter[E]{pred: pred}
}
