package telemetry

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/verdantlabs/pipeline/pipe"
	"github.com/verdantlabs/pipeline/retry"
)

// TestTracingObserverRecordsSpans tests a span is recorded per filter
// invocation with the outcome status
func TestTracingObserverRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	p, err := pipe.New(
		pipe.ExecuteSpec("validate", func(ctx *pipe.BasePipeContext) error { return nil }),
		pipe.ExecuteSpec("persist", func(ctx *pipe.BasePipeContext) error { return nil }),
	)
	if err != nil {
		t.Fatalf("building pipe: %v", err)
	}

	pipe.ConnectObserver[*pipe.BasePipeContext](p, NewTracingObserver[*pipe.BasePipeContext](tracer, "orders"))

	if err := p.Send(pipe.NewContext(context.Background())); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	for _, s := range spans {
		if s.Name() != "orders.send" {
			t.Errorf("unexpected span name %q", s.Name())
		}
	}
}

// TestTracingObserverRecordsFault tests a failing filter produces a span
// carrying the error
func TestTracingObserverRecordsFault(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	boom := errors.New("persist failed")
	p, err := pipe.New(
		pipe.ExecuteSpec("persist", func(ctx *pipe.BasePipeContext) error { return boom }),
	)
	if err != nil {
		t.Fatalf("building pipe: %v", err)
	}

	pipe.ConnectObserver[*pipe.BasePipeContext](p, NewTracingObserver[*pipe.BasePipeContext](tracer, "orders"))

	if sendErr := p.Send(pipe.NewContext(context.Background())); !errors.Is(sendErr, boom) {
		t.Fatalf("expected downstream failure, got %v", sendErr)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	events := spans[0].Events()
	if len(events) == 0 {
		t.Error("expected the failure recorded as a span event")
	}
}

// TestRetryMetricsCounters tests the retry observer feeds the attempt and
// completion counters
func TestRetryMetricsCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := NewMetrics(provider.Meter("test"))
	if err != nil {
		t.Fatalf("creating metrics: %v", err)
	}

	policy := retry.NewPolicy(retry.Immediate(3))
	rctx, ok := policy.CanRetry(errors.New("flaky"))
	if !ok {
		t.Fatal("expected retryable classification")
	}

	obs := metrics.NewRetryObserver("orders")
	obs.PreRetry(rctx)
	obs.PreRetry(rctx.Next(errors.New("flaky again")))
	obs.RetryComplete(rctx)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collecting metrics: %v", err)
	}

	found := map[string]bool{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			found[m.Name] = true
		}
	}
	if !found["pipeline.retry.attempts"] {
		t.Error("expected retry attempts counter")
	}
	if !found["pipeline.retry.success"] {
		t.Error("expected retry success counter")
	}
}

// TestBreakerCollectorCounters tests the breaker adapter feeds the
// transition and rejection counters
func TestBreakerCollectorCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := NewMetrics(provider.Meter("test"))
	if err != nil {
		t.Fatalf("creating metrics: %v", err)
	}

	collector := metrics.NewBreakerCollector()
	collector.RecordStateChange("orders", "closed", "open")
	collector.RecordRejection("orders")
	collector.RecordSuccess("orders")
	collector.RecordFailure("orders", "*errors.errorString")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collecting metrics: %v", err)
	}

	found := map[string]bool{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			found[m.Name] = true
		}
	}
	for _, name := range []string{
		"pipeline.breaker.state_changes",
		"pipeline.breaker.rejected",
		"pipeline.breaker.calls",
	} {
		if !found[name] {
			t.Errorf("expected %s to be recorded", name)
		}
	}
}
