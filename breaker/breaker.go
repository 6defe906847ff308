// Package breaker implements a circuit-breaker filter for pipes. The
// breaker trips open when the recent error rate crosses a threshold,
// rejects sends while open, and probes the downstream with a limited number
// of requests before closing again.
package breaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/verdantlabs/pipeline/core"
)

// State represents the state of the circuit breaker
type State int

const (
	// StateClosed allows all sends through
	StateClosed State = iota
	// StateOpen rejects all sends
	StateOpen
	// StateHalfOpen allows limited sends for testing recovery
	StateHalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MetricsCollector receives circuit breaker events for monitoring
type MetricsCollector interface {
	RecordSuccess(name string)
	RecordFailure(name string, errorType string)
	RecordStateChange(name string, from, to string)
	RecordRejection(name string)
}

// noopMetrics is a no-op metrics implementation
type noopMetrics struct{}

func (n *noopMetrics) RecordSuccess(name string)                      {}
func (n *noopMetrics) RecordFailure(name string, errorType string)    {}
func (n *noopMetrics) RecordStateChange(name string, from, to string) {}
func (n *noopMetrics) RecordRejection(name string)                    {}

// ErrorClassifier determines which errors count toward breaker thresholds
type ErrorClassifier func(error) bool

// DefaultErrorClassifier counts everything except cancellations,
// configuration mistakes, and flow-control rejections from other filters
func DefaultErrorClassifier(err error) bool {
	if err == nil {
		return false
	}
	if core.IsCancellation(err) {
		return false
	}
	if core.IsConfigurationError(err) {
		return false
	}
	if core.IsRejection(err) {
		return false
	}
	return true
}

// Config holds configuration for the circuit breaker
type Config struct {
	// Name identifies the breaker in logs and metrics
	Name string

	// ErrorThreshold is the error rate (0.0 to 1.0) that trips the breaker
	ErrorThreshold float64

	// VolumeThreshold is the minimum number of sends before evaluation
	VolumeThreshold int

	// SleepWindow is how long to stay open before probing
	SleepWindow time.Duration

	// HalfOpenRequests is the number of probe sends allowed half-open
	HalfOpenRequests int

	// SuccessThreshold is the success rate needed to close from half-open
	SuccessThreshold float64

	// WindowSize is the duration over which error rates are measured
	WindowSize time.Duration

	// ErrorClassifier determines which errors count as failures
	ErrorClassifier ErrorClassifier

	// Logger for breaker events
	Logger core.Logger

	// Metrics collector for monitoring
	Metrics MetricsCollector
}

// DefaultConfig returns a production-ready default configuration
func DefaultConfig() *Config {
	return &Config{
		Name:             "default",
		ErrorThreshold:   0.5,
		VolumeThreshold:  10,
		SleepWindow:      30 * time.Second,
		HalfOpenRequests: 5,
		SuccessThreshold: 0.6,
		WindowSize:       60 * time.Second,
		ErrorClassifier:  DefaultErrorClassifier,
		Logger:           &core.NoOpLogger{},
		Metrics:          &noopMetrics{},
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.ErrorThreshold < 0 || c.ErrorThreshold > 1 {
		return fmt.Errorf("error threshold must be within [0, 1]: %w", core.ErrConfiguration)
	}
	if c.SuccessThreshold < 0 || c.SuccessThreshold > 1 {
		return fmt.Errorf("success threshold must be within [0, 1]: %w", core.ErrConfiguration)
	}
	if c.VolumeThreshold < 0 {
		return fmt.Errorf("volume threshold cannot be negative: %w", core.ErrConfiguration)
	}
	if c.HalfOpenRequests < 1 {
		return fmt.Errorf("half-open requests must be positive: %w", core.ErrConfiguration)
	}
	return nil
}

// CircuitBreaker tracks send outcomes over a counting window and gates
// execution by state
type CircuitBreaker struct {
	config *Config

	mu             sync.Mutex
	state          State
	stateChangedAt time.Time

	// counting window, reset when WindowSize elapses
	windowStart time.Time
	successes   int
	failures    int

	// half-open probe accounting
	halfOpenAllowed   int
	halfOpenSuccesses int
	halfOpenFailures  int
}

// New creates a circuit breaker, applying defaults for zero-valued settings
func New(config *Config) (*CircuitBreaker, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit breaker config: %w", err)
	}

	if config.WindowSize == 0 {
		config.WindowSize = 60 * time.Second
	}
	if config.SleepWindow == 0 {
		config.SleepWindow = 30 * time.Second
	}
	if config.ErrorClassifier == nil {
		config.ErrorClassifier = DefaultErrorClassifier
	}
	if config.Logger == nil {
		config.Logger = &core.NoOpLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &noopMetrics{}
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 0.6
	}
	if config.HalfOpenRequests == 0 {
		config.HalfOpenRequests = 5
	}

	now := time.Now()
	return &CircuitBreaker{
		config:         config,
		state:          StateClosed,
		stateChangedAt: now,
		windowStart:    now,
	}, nil
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// CanExecute reports whether a send may proceed, accounting for the sleep
// window and the half-open probe quota
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.stateChangedAt) < cb.config.SleepWindow {
			return false
		}
		cb.transition(StateHalfOpen)
		cb.halfOpenAllowed = 1
		return true
	case StateHalfOpen:
		if cb.halfOpenAllowed >= cb.config.HalfOpenRequests {
			return false
		}
		cb.halfOpenAllowed++
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful send
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.config.Metrics.RecordSuccess(cb.config.Name)

	switch cb.state {
	case StateHalfOpen:
		cb.halfOpenSuccesses++
		cb.evaluateHalfOpen()
	default:
		cb.rotateWindow()
		cb.successes++
	}
}

// RecordFailure records a failed send. Errors the classifier rejects do
// not count toward the thresholds.
func (cb *CircuitBreaker) RecordFailure(err error) {
	if !cb.config.ErrorClassifier(err) {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.config.Metrics.RecordFailure(cb.config.Name, fmt.Sprintf("%T", err))

	switch cb.state {
	case StateHalfOpen:
		cb.halfOpenFailures++
		cb.evaluateHalfOpen()
	case StateClosed:
		cb.rotateWindow()
		cb.failures++
		cb.evaluateClosed()
	}
}

// rotateWindow resets the counting window when its duration has elapsed.
// Caller holds the lock.
func (cb *CircuitBreaker) rotateWindow() {
	if time.Since(cb.windowStart) >= cb.config.WindowSize {
		cb.windowStart = time.Now()
		cb.successes = 0
		cb.failures = 0
	}
}

// evaluateClosed trips the breaker open when the windowed error rate
// crosses the threshold. Caller holds the lock.
func (cb *CircuitBreaker) evaluateClosed() {
	total := cb.successes + cb.failures
	if total < cb.config.VolumeThreshold {
		return
	}
	if float64(cb.failures)/float64(total) >= cb.config.ErrorThreshold {
		cb.transition(StateOpen)
	}
}

// evaluateHalfOpen decides recovery once every probe has completed.
// Caller holds the lock.
func (cb *CircuitBreaker) evaluateHalfOpen() {
	completed := cb.halfOpenSuccesses + cb.halfOpenFailures
	if completed < cb.config.HalfOpenRequests {
		return
	}
	if float64(cb.halfOpenSuccesses)/float64(completed) >= cb.config.SuccessThreshold {
		cb.transition(StateClosed)
	} else {
		cb.transition(StateOpen)
	}
}

// transition moves to a new state, resetting the accounting that belongs
// to it. Caller holds the lock.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.stateChangedAt = time.Now()

	switch to {
	case StateClosed:
		cb.windowStart = time.Now()
		cb.successes = 0
		cb.failures = 0
	case StateHalfOpen:
		cb.halfOpenAllowed = 0
		cb.halfOpenSuccesses = 0
		cb.halfOpenFailures = 0
	}

	cb.config.Metrics.RecordStateChange(cb.config.Name, from.String(), to.String())
	cb.config.Logger.Info("circuit breaker state changed", map[string]interface{}{
		"operation": "breaker_state_change",
		"name":      cb.config.Name,
		"from":      from.String(),
		"to":        to.String(),
	})
}
