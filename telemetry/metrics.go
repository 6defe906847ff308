package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/verdantlabs/pipeline/retry"
)

// Metrics holds the pipeline's metric instruments
type Metrics struct {
	retryAttempts  metric.Int64Counter
	retrySuccesses metric.Int64Counter
	retryFailures  metric.Int64Counter

	breakerStateChanges metric.Int64Counter
	breakerRejections   metric.Int64Counter
	breakerOutcomes     metric.Int64Counter
}

// NewMetrics creates the instrument set on the given meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.retryAttempts, err = meter.Int64Counter("pipeline.retry.attempts",
		metric.WithDescription("Total retry attempts")); err != nil {
		return nil, fmt.Errorf("creating retry attempts counter: %w", err)
	}
	if m.retrySuccesses, err = meter.Int64Counter("pipeline.retry.success",
		metric.WithDescription("Sends that succeeded after retrying")); err != nil {
		return nil, fmt.Errorf("creating retry success counter: %w", err)
	}
	if m.retryFailures, err = meter.Int64Counter("pipeline.retry.failures",
		metric.WithDescription("Sends that exhausted their retries")); err != nil {
		return nil, fmt.Errorf("creating retry failures counter: %w", err)
	}
	if m.breakerStateChanges, err = meter.Int64Counter("pipeline.breaker.state_changes",
		metric.WithDescription("Circuit breaker state transitions")); err != nil {
		return nil, fmt.Errorf("creating breaker state counter: %w", err)
	}
	if m.breakerRejections, err = meter.Int64Counter("pipeline.breaker.rejected",
		metric.WithDescription("Sends rejected by an open circuit")); err != nil {
		return nil, fmt.Errorf("creating breaker rejection counter: %w", err)
	}
	if m.breakerOutcomes, err = meter.Int64Counter("pipeline.breaker.calls",
		metric.WithDescription("Circuit breaker call outcomes")); err != nil {
		return nil, fmt.Errorf("creating breaker call counter: %w", err)
	}

	return m, nil
}

// RetryObserver adapts the metrics to the retry filter's observer surface.
// Connect it with the filter's ConnectRetryObserver.
type RetryObserver struct {
	metrics   *Metrics
	operation string
}

// NewRetryObserver creates a retry observer labeling metrics with the
// operation name
func (m *Metrics) NewRetryObserver(operation string) *RetryObserver {
	return &RetryObserver{metrics: m, operation: operation}
}

// PostFault records nothing; attempts are counted in PreRetry
func (o *RetryObserver) PostFault(rctx *retry.Context) {}

// PreRetry counts the attempt about to run
func (o *RetryObserver) PreRetry(rctx *retry.Context) {
	o.metrics.retryAttempts.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("operation", o.operation),
		attribute.Int("attempt", rctx.Attempt()),
	))
}

// RetryComplete counts a send that recovered
func (o *RetryObserver) RetryComplete(rctx *retry.Context) {
	o.metrics.retrySuccesses.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("operation", o.operation),
		attribute.Int("final_attempt", rctx.Attempt()),
	))
}

// RetryFault counts a send that exhausted its retries
func (o *RetryObserver) RetryFault(rctx *retry.Context) {
	o.metrics.retryFailures.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("operation", o.operation),
	))
}

// BreakerCollector adapts the metrics to the breaker's MetricsCollector
// surface
type BreakerCollector struct {
	metrics *Metrics
}

// NewBreakerCollector creates the breaker metrics adapter
func (m *Metrics) NewBreakerCollector() *BreakerCollector {
	return &BreakerCollector{metrics: m}
}

// RecordSuccess counts a successful protected send
func (c *BreakerCollector) RecordSuccess(name string) {
	c.metrics.breakerOutcomes.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("name", name),
		attribute.String("status", "success"),
	))
}

// RecordFailure counts a failed protected send
func (c *BreakerCollector) RecordFailure(name string, errorType string) {
	c.metrics.breakerOutcomes.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("name", name),
		attribute.String("status", "failure"),
		attribute.String("error_type", errorType),
	))
}

// RecordStateChange counts a breaker state transition
func (c *BreakerCollector) RecordStateChange(name string, from, to string) {
	c.metrics.breakerStateChanges.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("name", name),
		attribute.String("from_state", from),
		attribute.String("to_state", to),
	))
}

// RecordRejection counts a send rejected by the open circuit
func (c *BreakerCollector) RecordRejection(name string) {
	c.metrics.breakerRejections.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("name", name),
	))
}
