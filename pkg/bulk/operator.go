package bulk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/bft-labs/bulkship/pkg/log"
)

// Operator buffers Actions and dispatches them in batches through a
// Transport. A batch is dispatched when the pending count reaches the
// configured maximum, when the interval timer fires, or on Flush.
//
// At most the configured concurrency of dispatches hold a permit at any
// time. Flush blocks while no permit is available; that is the only
// backpressure producers see.
//
// All methods are safe for concurrent use.
type Operator struct {
	opts      options
	transport Transport
	permits   *semaphore.Weighted

	mu      sync.Mutex
	pending *BatchBuilder
	current int
	closed  bool

	// inflight counts detached batches whose dispatch has not finished.
	inflight int
	idle     *sync.Cond

	stopTimer chan struct{}
}

// New returns an open Operator that dispatches through transport, which
// must not be nil. When an interval is configured the timer starts
// immediately.
func New(transport Transport, opts ...Option) *Operator {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	op := &Operator{
		opts:      o,
		transport: transport,
		permits:   semaphore.NewWeighted(int64(o.concurrency)),
		pending:   NewBatchBuilder(),
	}
	op.idle = sync.NewCond(&op.mu)

	if o.interval > 0 {
		op.stopTimer = make(chan struct{})
		go op.runTimer()
	}

	o.logger.Debug("bulk operator started",
		log.String("operator", o.name),
		log.Int("concurrency", o.concurrency),
		log.Int("max_actions", o.maxActions),
		log.Duration("interval", o.interval),
	)
	return op
}

// Name returns the operator name.
func (op *Operator) Name() string {
	return op.opts.name
}

// Add buffers actions in order. If the pending count reaches the maximum,
// the buffered batch is dispatched before Add returns, which may block
// until a permit is free.
//
// Add returns ErrClosed after Close, and a *ValidationError if an action
// has no operation; in both cases nothing is buffered.
func (op *Operator) Add(actions ...Action) error {
	for _, a := range actions {
		if a.operation == "" {
			return &ValidationError{Field: "operation"}
		}
	}

	op.mu.Lock()
	if op.closed {
		op.mu.Unlock()
		return ErrClosed
	}
	if len(actions) == 0 {
		op.mu.Unlock()
		return nil
	}

	op.pending.AddActions(actions...)
	op.current += len(actions)

	var batch *Batch
	if op.opts.maxActions > 0 && op.current >= op.opts.maxActions {
		batch = op.detachLocked()
	}
	op.mu.Unlock()

	if batch != nil {
		op.dispatch(batch)
	}
	return nil
}

// Flush dispatches all pending actions as one batch. It does nothing when
// the operator is closed or nothing is pending.
func (op *Operator) Flush() {
	op.mu.Lock()
	if op.closed || op.current == 0 {
		op.mu.Unlock()
		return
	}
	batch := op.detachLocked()
	op.mu.Unlock()

	op.dispatch(batch)
}

// Close stops the interval timer and rejects further Adds. Pending actions
// are not flushed and in-flight dispatches keep running; call Flush and
// Wait first to drain. Close is idempotent and always returns nil.
func (op *Operator) Close() error {
	op.mu.Lock()
	if op.closed {
		op.mu.Unlock()
		return nil
	}
	op.closed = true
	dropped := op.current
	op.mu.Unlock()

	if op.stopTimer != nil {
		close(op.stopTimer)
	}

	op.opts.logger.Debug("bulk operator closed",
		log.String("operator", op.opts.name),
		log.Int("pending", dropped),
	)
	return nil
}

// Wait blocks until no dispatch is in flight, including batches still
// waiting for a permit and their after-dispatch hooks. Dispatches started
// while Wait blocks are waited for too.
func (op *Operator) Wait() {
	op.mu.Lock()
	for op.inflight > 0 {
		op.idle.Wait()
	}
	op.mu.Unlock()
}

// Pending returns the number of buffered actions.
func (op *Operator) Pending() int {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.current
}

// Closed reports whether Close has been called.
func (op *Operator) Closed() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.closed
}

// detachLocked swaps the pending builder for a fresh one. op.mu must be held.
func (op *Operator) detachLocked() *Batch {
	batch := op.pending.Build()
	op.pending = NewBatchBuilder()
	op.current = 0
	op.inflight++
	return batch
}

func (op *Operator) runTimer() {
	t := time.NewTimer(op.opts.interval)
	defer t.Stop()

	for {
		select {
		case <-op.stopTimer:
			return
		case <-t.C:
			op.Flush()
			t.Reset(op.opts.interval)
		}
	}
}

// dispatch acquires a permit and hands the batch to a dispatch goroutine.
func (op *Operator) dispatch(batch *Batch) {
	// Acquire only fails on context cancellation.
	_ = op.permits.Acquire(context.Background(), 1)

	id := op.opts.sequence.Next()

	op.opts.logger.Debug("dispatching batch",
		log.String("operator", op.opts.name),
		log.Int64("execution_id", id),
		log.Int("actions", batch.Count()),
		log.Int("bytes", batch.EstimatedSizeBytes()),
	)

	op.runHook("before_dispatch", id, func() {
		op.opts.lifecycle.BeforeDispatch(id, op, batch)
	})

	go op.execute(id, batch)
}

func (op *Operator) execute(id int64, batch *Batch) {
	defer op.done()

	var once sync.Once
	release := func() { once.Do(func() { op.permits.Release(1) }) }
	defer release()

	start := time.Now()
	resp, err := op.roundTrip(id, batch)
	release()

	if err != nil {
		op.opts.logger.Debug("dispatch failed",
			log.String("operator", op.opts.name),
			log.Int64("execution_id", id),
			log.Duration("elapsed", time.Since(start)),
			log.Err(err),
		)
		op.runHook("after_dispatch_failure", id, func() {
			op.opts.lifecycle.AfterDispatchFailure(id, op, batch, err)
		})
		return
	}

	op.opts.logger.Debug("dispatch completed",
		log.String("operator", op.opts.name),
		log.Int64("execution_id", id),
		log.Duration("elapsed", time.Since(start)),
		log.Bool("errors", resp.Errors),
	)
	op.runHook("after_dispatch", id, func() {
		op.opts.lifecycle.AfterDispatch(id, op, batch, resp)
	})
}

// done marks one dispatch finished and wakes Wait callers once none remain.
func (op *Operator) done() {
	op.mu.Lock()
	op.inflight--
	if op.inflight == 0 {
		op.idle.Broadcast()
	}
	op.mu.Unlock()
}

// roundTrip calls the transport, turning a panic into an error.
func (op *Operator) roundTrip(id int64, batch *Batch) (resp *Response, err error) {
	ctx := context.Background()
	if op.opts.dispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, op.opts.dispatchTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("bulk: transport panic: %v", r)
		}
	}()

	resp, err = op.transport.Bulk(ctx, Request{
		Operator:    op.opts.name,
		ExecutionID: id,
		Endpoint:    op.opts.endpoint,
		ContentType: ContentType,
		Payload:     batch.payload,
	})
	if err == nil && resp == nil {
		resp = &Response{}
	}
	return resp, err
}

func (op *Operator) runHook(name string, id int64, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			op.opts.logger.Error("lifecycle hook panicked",
				log.String("operator", op.opts.name),
				log.String("hook", name),
				log.Int64("execution_id", id),
				log.Any("panic", r),
			)
		}
	}()
	fn()
}
