package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/verdantlabs/pipeline/pipe"
)

// spanStack carries the open filter spans of one send through the payload
// bag. Filters nest, so spans close in reverse order of opening.
type spanStack struct {
	mu    sync.Mutex
	spans []trace.Span
}

func (s *spanStack) push(span trace.Span) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spans = append(s.spans, span)
}

func (s *spanStack) pop() (trace.Span, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.spans) == 0 {
		return nil, false
	}
	span := s.spans[len(s.spans)-1]
	s.spans = s.spans[:len(s.spans)-1]
	return span, true
}

// TracingObserver emits a span per filter invocation. Attach it to a
// compiled pipe with pipe.ConnectObserver.
type TracingObserver[T pipe.Context] struct {
	tracer trace.Tracer
	name   string
}

// NewTracingObserver creates an observer emitting spans named after the
// pipe
func NewTracingObserver[T pipe.Context](tracer trace.Tracer, pipeName string) *TracingObserver[T] {
	return &TracingObserver[T]{tracer: tracer, name: pipeName}
}

// PreSend opens a span for the filter invocation
func (o *TracingObserver[T]) PreSend(ctx T) error {
	stack, err := pipe.GetOrAddPayload[*spanStack](ctx, func() (*spanStack, error) {
		return &spanStack{}, nil
	})
	if err != nil {
		return err
	}

	_, span := o.tracer.Start(ctx, o.name+".send",
		trace.WithAttributes(attribute.String("pipe", o.name)))
	stack.push(span)
	return nil
}

// PostSend closes the innermost open span as success
func (o *TracingObserver[T]) PostSend(ctx T) error {
	stack, ok := pipe.TryGetPayload[*spanStack](ctx)
	if !ok {
		return nil
	}
	if span, ok := stack.pop(); ok {
		span.SetStatus(codes.Ok, "")
		span.End()
	}
	return nil
}

// SendFault closes the innermost open span recording the failure
func (o *TracingObserver[T]) SendFault(ctx T, err error) error {
	stack, ok := pipe.TryGetPayload[*spanStack](ctx)
	if !ok {
		return nil
	}
	if span, ok := stack.pop(); ok {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
	}
	return nil
}
