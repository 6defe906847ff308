// Package telemetry integrates the pipeline with OpenTelemetry: a provider
// bundling tracer and meter setup, a filter observer emitting a span per
// filter invocation, and metric collectors for the retry and breaker
// filters.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/verdantlabs/pipeline/core"
)

// Provider bundles the tracer and meter used by the pipeline's
// observability surface. Spans export via OTLP/gRPC or stdout depending on
// configuration; metric readers are supplied by the caller.
type Provider struct {
	tracer         trace.Tracer
	meter          metric.Meter
	traceProvider  *sdktrace.TracerProvider
	metricProvider *sdkmetric.MeterProvider
	shutdownOnce   sync.Once
	shutdownErr    error
}

// ProviderOption customizes provider construction
type ProviderOption func(*providerOptions)

type providerOptions struct {
	logger        core.Logger
	metricOptions []sdkmetric.Option
}

// WithLogger installs the logger receiving provider lifecycle events
func WithLogger(logger core.Logger) ProviderOption {
	return func(o *providerOptions) {
		o.logger = logger
	}
}

// WithMetricOptions forwards options (typically readers) to the meter
// provider
func WithMetricOptions(opts ...sdkmetric.Option) ProviderOption {
	return func(o *providerOptions) {
		o.metricOptions = append(o.metricOptions, opts...)
	}
}

// NewProvider creates the telemetry provider for a service. With
// cfg.Stdout set, spans print to stdout; otherwise they export to the
// configured OTLP/gRPC endpoint.
func NewProvider(ctx context.Context, serviceName string, cfg core.TelemetryConfig, opts ...ProviderOption) (*Provider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("service name cannot be empty: %w", core.ErrMissingConfiguration)
	}

	options := &providerOptions{logger: &core.NoOpLogger{}}
	for _, opt := range opts {
		opt(options)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating telemetry resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	if cfg.Stdout {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	} else {
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("creating span exporter: %w", err)
	}

	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	metricOptions := append([]sdkmetric.Option{sdkmetric.WithResource(res)}, options.metricOptions...)
	metricProvider := sdkmetric.NewMeterProvider(metricOptions...)

	otel.SetTracerProvider(traceProvider)
	otel.SetMeterProvider(metricProvider)

	options.logger.Info("telemetry provider created", map[string]interface{}{
		"service":  serviceName,
		"endpoint": cfg.Endpoint,
		"stdout":   cfg.Stdout,
	})

	return &Provider{
		tracer:         traceProvider.Tracer(serviceName),
		meter:          metricProvider.Meter(serviceName),
		traceProvider:  traceProvider,
		metricProvider: metricProvider,
	}, nil
}

// Tracer returns the provider's tracer
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Meter returns the provider's meter
func (p *Provider) Meter() metric.Meter { return p.meter }

// Shutdown flushes and stops the exporters. Idempotent.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.shutdownOnce.Do(func() {
		traceErr := p.traceProvider.Shutdown(ctx)
		metricErr := p.metricProvider.Shutdown(ctx)
		if traceErr != nil {
			p.shutdownErr = fmt.Errorf("shutting down trace provider: %w", traceErr)
			return
		}
		if metricErr != nil {
			p.shutdownErr = fmt.Errorf("shutting down metric provider: %w", metricErr)
		}
	})
	return p.shutdownErr
}
