package bulk

// Lifecycle observes every dispatch of an Operator.
//
// BeforeDispatch runs on the flushing goroutine after a permit has been
// acquired. Exactly one of AfterDispatch or AfterDispatchFailure runs for
// each dispatch, on the dispatch goroutine, after the permit is released.
// Hooks may call back into the Operator, for example to Add actions.
type Lifecycle interface {
	BeforeDispatch(executionID int64, op *Operator, batch *Batch)
	AfterDispatch(executionID int64, op *Operator, batch *Batch, resp *Response)
	AfterDispatchFailure(executionID int64, op *Operator, batch *Batch, err error)
}

// NoopLifecycle ignores every event. Embed it to implement only some hooks.
type NoopLifecycle struct{}

// BeforeDispatch does nothing.
func (NoopLifecycle) BeforeDispatch(int64, *Operator, *Batch) {}

// AfterDispatch does nothing.
func (NoopLifecycle) AfterDispatch(int64, *Operator, *Batch, *Response) {}

// AfterDispatchFailure does nothing.
func (NoopLifecycle) AfterDispatchFailure(int64, *Operator, *Batch, error) {}

// Chain returns a Lifecycle that calls each non-nil lifecycle in order.
func Chain(lifecycles ...Lifecycle) Lifecycle {
	c := make(chain, 0, len(lifecycles))
	for _, l := range lifecycles {
		if l != nil {
			c = append(c, l)
		}
	}
	return c
}

type chain []Lifecycle

func (c chain) BeforeDispatch(id int64, op *Operator, b *Batch) {
	for _, l := range c {
		l.BeforeDispatch(id, op, b)
	}
}

func (c chain) AfterDispatch(id int64, op *Operator, b *Batch, resp *Response) {
	for _, l := range c {
		l.AfterDispatch(id, op, b, resp)
	}
}

func (c chain) AfterDispatchFailure(id int64, op *Operator, b *Batch, err error) {
	for _, l := range c {
		l.AfterDispatchFailure(id, op, b, err)
	}
}
