package retry

import (
	"math"
	"time"

	"github.com/verdantlabs/pipeline/pipe"
)

// Policy decides whether a failure is retryable and produces the per-attempt
// delay schedule. Policies are immutable after construction and safe for
// concurrent use.
type Policy interface {
	// CanRetry classifies the first failure of a send. When the policy's
	// exception filter matches it returns the initial RetryContext.
	CanRetry(err error) (*Context, bool)

	// Delay returns the suspension before retry attempt number attempt
	Delay(attempt int) time.Duration

	// Limit returns the maximum number of retries
	Limit() int

	// Probe contributes the policy's diagnostic metadata
	Probe(sink pipe.ProbeSink)
}

// Context is an immutable per-attempt snapshot: the attempt index, the
// failure that triggered it, the computed delay, and the failures from
// earlier attempts. The attempt index is monotonically non-decreasing
// across successive contexts of one send, and len(PriorErrors()) always
// equals Attempt().
type Context struct {
	policy  Policy
	attempt int
	err     error
	delay   time.Duration
	prior   []error
}

// Attempt returns the zero-based retry attempt index
func (c *Context) Attempt() int { return c.attempt }

// Err returns the failure that produced this context
func (c *Context) Err() error { return c.err }

// Delay returns the suspension to observe before the next invocation
func (c *Context) Delay() time.Duration { return c.delay }

// PriorErrors returns the failures from earlier attempts
func (c *Context) PriorErrors() []error { return c.prior }

// AllErrors returns the prior failures plus the current one
func (c *Context) AllErrors() []error {
	return append(append([]error{}, c.prior...), c.err)
}

// CanRetry reports whether another attempt is permitted
func (c *Context) CanRetry() bool {
	return c.attempt < c.policy.Limit()
}

// Next derives the context for the following attempt: the attempt index
// advances, the current failure joins the prior list, and the delay is
// recomputed from the policy.
func (c *Context) Next(err error) *Context {
	prior := make([]error, 0, len(c.prior)+1)
	prior = append(prior, c.prior...)
	prior = append(prior, c.err)

	attempt := c.attempt + 1
	return &Context{
		policy:  c.policy,
		attempt: attempt,
		err:     err,
		delay:   c.policy.Delay(attempt),
		prior:   prior,
	}
}

func initialContext(p Policy, err error) *Context {
	return &Context{policy: p, err: err, delay: p.Delay(0)}
}

// nonePolicy never retries
type nonePolicy struct{}

func (nonePolicy) CanRetry(err error) (*Context, bool) { return nil, false }
func (nonePolicy) Delay(attempt int) time.Duration     { return 0 }
func (nonePolicy) Limit() int                          { return 0 }

func (nonePolicy) Probe(sink pipe.ProbeSink) {
	scope := sink.Scope("retryPolicy")
	scope.Add("policy", "None")
	scope.Add("limit", 0)
}

// immediatePolicy retries with zero delay up to its limit
type immediatePolicy struct {
	limit  int
	filter ExceptionFilter
}

func (p *immediatePolicy) CanRetry(err error) (*Context, bool) {
	if !p.filter.Match(err) {
		return nil, false
	}
	return initialContext(p, err), true
}

func (p *immediatePolicy) Delay(attempt int) time.Duration { return 0 }
func (p *immediatePolicy) Limit() int                      { return p.limit }

func (p *immediatePolicy) Probe(sink pipe.ProbeSink) {
	scope := sink.Scope("retryPolicy")
	scope.Add("policy", "Immediate")
	scope.Add("limit", p.limit)
}

// intervalPolicy retries once per configured interval
type intervalPolicy struct {
	intervals []time.Duration
	filter    ExceptionFilter
}

func (p *intervalPolicy) CanRetry(err error) (*Context, bool) {
	if !p.filter.Match(err) {
		return nil, false
	}
	return initialContext(p, err), true
}

func (p *intervalPolicy) Delay(attempt int) time.Duration {
	if attempt >= len(p.intervals) {
		return p.intervals[len(p.intervals)-1]
	}
	return p.intervals[attempt]
}

func (p *intervalPolicy) Limit() int { return len(p.intervals) }

func (p *intervalPolicy) Probe(sink pipe.ProbeSink) {
	scope := sink.Scope("retryPolicy")
	scope.Add("policy", "Interval")
	scope.Add("limit", len(p.intervals))
	scope.Add("intervals", append([]time.Duration{}, p.intervals...))
}

// incrementalPolicy adds a fixed step to the delay on every attempt
type incrementalPolicy struct {
	limit   int
	initial time.Duration
	step    time.Duration
	filter  ExceptionFilter
}

func (p *incrementalPolicy) CanRetry(err error) (*Context, bool) {
	if !p.filter.Match(err) {
		return nil, false
	}
	return initialContext(p, err), true
}

func (p *incrementalPolicy) Delay(attempt int) time.Duration {
	// initial + attempt*step, saturating instead of wrapping
	step := time.Duration(attempt) * p.step
	if p.step > 0 && attempt > 0 && step/time.Duration(attempt) != p.step {
		return math.MaxInt64
	}
	delay := p.initial + step
	if delay < p.initial {
		return math.MaxInt64
	}
	return delay
}

func (p *incrementalPolicy) Limit() int { return p.limit }

func (p *incrementalPolicy) Probe(sink pipe.ProbeSink) {
	scope := sink.Scope("retryPolicy")
	scope.Add("policy", "Incremental")
	scope.Add("limit", p.limit)
	scope.Add("initial", p.initial)
	scope.Add("step", p.step)
}

// exponentialPolicy doubles the accrued delay every attempt, clamped to
// [min, max]
type exponentialPolicy struct {
	limit  int
	min    time.Duration
	max    time.Duration
	delta  time.Duration
	filter ExceptionFilter
}

func (p *exponentialPolicy) CanRetry(err error) (*Context, bool) {
	if !p.filter.Match(err) {
		return nil, false
	}
	return initialContext(p, err), true
}

// Delay computes (2^attempt - 1)*delta clamped to [min, max], returning
// max whenever the intermediate math would overflow
func (p *exponentialPolicy) Delay(attempt int) time.Duration {
	if attempt >= 62 {
		return p.max
	}
	factor := (int64(1) << uint(attempt)) - 1
	if factor > 0 && int64(p.delta) > math.MaxInt64/factor {
		return p.max
	}
	delay := time.Duration(factor * int64(p.delta))
	if delay < p.min {
		return p.min
	}
	if delay > p.max {
		return p.max
	}
	return delay
}

func (p *exponentialPolicy) Limit() int { return p.limit }

func (p *exponentialPolicy) Probe(sink pipe.ProbeSink) {
	scope := sink.Scope("retryPolicy")
	scope.Add("policy", "Exponential")
	scope.Add("limit", p.limit)
	scope.Add("min", p.min)
	scope.Add("max", p.max)
	scope.Add("delta", p.delta)
}
