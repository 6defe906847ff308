package pipe

// executeFilter runs a function against the context and forwards to the
// remainder of the chain when it succeeds
type executeFilter[T Context] struct {
	name string
	fn   func(ctx T) error
}

func (f *executeFilter[T]) Send(ctx T, next Pipe[T]) error {
	if err := f.fn(ctx); err != nil {
		return err
	}
	return next.Send(ctx)
}

func (f *executeFilter[T]) Probe(sink ProbeSink) {
	scope := sink.Scope("filter")
	scope.Add("filter", "execute")
	scope.Add("name", f.name)
}

// Execute creates a filter from a function. The function observes or
// mutates the context; returning an error short-circuits the chain.
func Execute[T Context](name string, fn func(ctx T) error) Filter[T] {
	return &executeFilter[T]{name: name, fn: fn}
}

// ExecuteSpec wraps Execute as a specification
func ExecuteSpec[T Context](name string, fn func(ctx T) error) Specification[T] {
	return FilterSpec[T](Execute[T](name, fn))
}
