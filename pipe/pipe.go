package pipe

import (
	"errors"

	"github.com/verdantlabs/pipeline/connect"
)

// Filter is one unit of processing in a pipe chain. Given a context and the
// remainder of the chain it may forward, short-circuit, transform, or fail.
// Filters must be safe for concurrent invocation across independent sends:
// per-send state belongs on the context, never on the filter.
type Filter[T Context] interface {
	// Send processes the context and chooses whether to advance the chain
	// by calling next.Send
	Send(ctx T, next Pipe[T]) error

	// Probe contributes structured diagnostic metadata
	Probe(sink ProbeSink)
}

// Pipe is a compiled, immutable ordered filter chain over a context type
type Pipe[T Context] interface {
	// Send drives the first filter, which advances the chain
	Send(ctx T) error

	// Probe walks the chain contributing hierarchical metadata
	Probe(sink ProbeSink)
}

// Observer receives side-channel notifications around each filter
// invocation. Callback errors never mask the pipeline outcome; they are
// folded into the result as secondary errors.
type Observer[T Context] interface {
	// PreSend fires before the filter runs
	PreSend(ctx T) error

	// PostSend fires after the filter returns successfully
	PostSend(ctx T) error

	// SendFault fires after the filter fails, before the error propagates
	SendFault(ctx T, err error) error
}

// ObserverConnector is implemented by pipes that support attaching
// observers after compilation
type ObserverConnector[T Context] interface {
	ConnectObserver(observer Observer[T]) *connect.Handle
}

// ConnectObserver attaches an observer to a compiled pipe. It returns nil
// when the pipe does not support observation.
func ConnectObserver[T Context](p Pipe[T], observer Observer[T]) *connect.Handle {
	if c, ok := p.(ObserverConnector[T]); ok {
		return c.ConnectObserver(observer)
	}
	return nil
}

// endPipe terminates every compiled chain with a no-op
type endPipe[T Context] struct{}

func (endPipe[T]) Send(ctx T) error    { return nil }
func (endPipe[T]) Probe(sink ProbeSink) {}

// node links one filter to the remainder of the chain and dispatches the
// observer callbacks around the filter invocation
type node[T Context] struct {
	filter    Filter[T]
	next      Pipe[T]
	observers *connect.Registry[Observer[T]]
}

func (n *node[T]) Send(ctx T) error {
	observers := n.observers.Snapshot()
	if len(observers) == 0 {
		return n.filter.Send(ctx, n.next)
	}

	var secondary []error
	for _, o := range observers {
		if err := o.PreSend(ctx); err != nil {
			secondary = append(secondary, err)
		}
	}

	err := n.filter.Send(ctx, n.next)

	if err == nil {
		for _, o := range observers {
			if oerr := o.PostSend(ctx); oerr != nil {
				secondary = append(secondary, oerr)
			}
		}
	} else {
		for _, o := range observers {
			if oerr := o.SendFault(ctx, err); oerr != nil {
				secondary = append(secondary, oerr)
			}
		}
	}

	if len(secondary) == 0 {
		return err
	}
	if err == nil {
		return errors.Join(secondary...)
	}
	return errors.Join(append([]error{err}, secondary...)...)
}

func (n *node[T]) Probe(sink ProbeSink) {
	n.filter.Probe(sink)
	n.next.Probe(sink)
}

// pipeline is the compiled pipe: the head of the node chain plus the
// observer registry shared by every node
type pipeline[T Context] struct {
	head      Pipe[T]
	observers *connect.Registry[Observer[T]]
	filters   int
}

func (p *pipeline[T]) Send(ctx T) error {
	return p.head.Send(ctx)
}

func (p *pipeline[T]) Probe(sink ProbeSink) {
	scope := sink.Scope("pipe")
	scope.Add("filters", p.filters)
	p.head.Probe(scope)
}

// ConnectObserver attaches an observer fired around every filter in the pipe
func (p *pipeline[T]) ConnectObserver(observer Observer[T]) *connect.Handle {
	return p.observers.Connect(observer)
}
