package retry

import "time"

// Option configures a retry policy. Policy-kind options (None, Immediate,
// Intervals, Incremental, Exponential) select the schedule — the last one
// wins — while filter options (AllFailures, ExceptFor, SelectedFor, MatchFilter)
// choose which failures the schedule applies to.
type Option func(*configurator)

type configurator struct {
	build  func(filter ExceptionFilter) Policy
	filter ExceptionFilter
}

// NewPolicy builds a policy from options:
//
//	policy := retry.NewPolicy(
//	    retry.Intervals(100*time.Millisecond, 200*time.Millisecond),
//	    retry.SelectedFor(retry.Sentinel(io.ErrUnexpectedEOF)),
//	)
//
// With no policy-kind option the result never retries.
func NewPolicy(opts ...Option) Policy {
	cfg := &configurator{
		build:  func(ExceptionFilter) Policy { return nonePolicy{} },
		filter: All(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg.build(cfg.filter)
}

// None installs the never-retry policy
func None() Option {
	return func(c *configurator) {
		c.build = func(ExceptionFilter) Policy { return nonePolicy{} }
	}
}

// Immediate retries up to limit times with zero delay
func Immediate(limit int) Option {
	return func(c *configurator) {
		c.build = func(f ExceptionFilter) Policy {
			return &immediatePolicy{limit: limit, filter: f}
		}
	}
}

// Intervals retries once per duration, in order
func Intervals(intervals ...time.Duration) Option {
	return func(c *configurator) {
		c.build = func(f ExceptionFilter) Policy {
			return &intervalPolicy{
				intervals: append([]time.Duration{}, intervals...),
				filter:    f,
			}
		}
	}
}

// Interval retries count times with a fixed interval
func Interval(count int, interval time.Duration) Option {
	intervals := make([]time.Duration, count)
	for i := range intervals {
		intervals[i] = interval
	}
	return Intervals(intervals...)
}

// IntervalsMillis retries once per interval, given in milliseconds
func IntervalsMillis(ms ...int) Option {
	intervals := make([]time.Duration, len(ms))
	for i, m := range ms {
		intervals[i] = time.Duration(m) * time.Millisecond
	}
	return Intervals(intervals...)
}

// Incremental retries up to limit times, the delay growing by step from
// initial on every attempt
func Incremental(limit int, initial, step time.Duration) Option {
	return func(c *configurator) {
		c.build = func(f ExceptionFilter) Policy {
			return &incrementalPolicy{limit: limit, initial: initial, step: step, filter: f}
		}
	}
}

// Exponential retries up to limit times with exponentially growing delays
// clamped to [min, max]
func Exponential(limit int, min, max, delta time.Duration) Option {
	return func(c *configurator) {
		c.build = func(f ExceptionFilter) Policy {
			return &exponentialPolicy{limit: limit, min: min, max: max, delta: delta, filter: f}
		}
	}
}

// AllFailures retries every failure (the default)
func AllFailures() Option {
	return func(c *configurator) {
		c.filter = All()
	}
}

// ExceptFor retries every failure except the given error types
func ExceptFor(matchers ...Matcher) Option {
	return func(c *configurator) {
		c.filter = Except(matchers...)
	}
}

// SelectedFor retries only the given error types
func SelectedFor(matchers ...Matcher) Option {
	return func(c *configurator) {
		c.filter = Selected(matchers...)
	}
}

// MatchFilter installs a pre-built exception filter
func MatchFilter(filter ExceptionFilter) Option {
	return func(c *configurator) {
		c.filter = filter
	}
}
