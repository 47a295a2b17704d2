package app

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bft-labs/bulkship/internal/spool"
	"github.com/bft-labs/bulkship/pkg/log"
)

// DefaultDrainTimeout bounds how long Drain waits for in-flight dispatches.
const DefaultDrainTimeout = 30 * time.Second

// Operator is the part of *bulk.Operator the Runner drives.
type Operator interface {
	Sink
	Flush()
	Wait()
	Close() error
}

// Runner ships inputs through an Operator, either once over a list of
// files or continuously from a spool directory.
type Runner struct {
	op           Operator
	shipper      *Shipper
	tracker      *DeliveryTracker
	logger       log.Logger
	drainTimeout time.Duration

	state   *stateMachine
	mu      sync.Mutex
	cancel  context.CancelFunc
	workers sync.WaitGroup
	done    chan struct{}
}

// NewRunner creates a Runner. tracker must be part of op's lifecycle for
// spool files to be marked failed when a dispatch fails; it may be nil
// when only ShipAll is used. A non-positive drainTimeout uses
// DefaultDrainTimeout.
func NewRunner(op Operator, shipper *Shipper, tracker *DeliveryTracker, logger log.Logger, drainTimeout time.Duration) *Runner {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	if drainTimeout <= 0 {
		drainTimeout = DefaultDrainTimeout
	}
	return &Runner{
		op:           op,
		shipper:      shipper,
		tracker:      tracker,
		logger:       logger,
		drainTimeout: drainTimeout,
		state:        newStateMachine(logger),
	}
}

// State returns the current run state.
func (r *Runner) State() State {
	return r.state.State()
}

// ShipAll ships each input file in order, or stdin when there are none,
// then drains the operator. It stops at the first input error.
func (r *Runner) ShipAll(ctx context.Context, inputs []string, stdin io.Reader) (Stats, error) {
	var total Stats
	var firstErr error

	if len(inputs) == 0 {
		st, err := r.shipper.ShipReader(ctx, "stdin", stdin)
		total.add(st)
		firstErr = err
	}
	for _, path := range inputs {
		st, err := r.shipper.ShipFile(ctx, path)
		total.add(st)
		if err != nil {
			firstErr = err
			break
		}
	}

	if err := r.Drain(); err != nil && firstErr == nil {
		firstErr = err
	}
	return total, firstErr
}

// Start ships every file that appears in the watcher's directory until
// Stop is called. Watcher failures are retried with backoff.
func (r *Runner) Start(ctx context.Context, w *spool.Watcher) error {
	if err := r.state.transition(StateStarting, "start requested", StateStopped); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.mu.Lock()
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	r.workers.Add(1)
	go func() {
		defer r.workers.Done()
		defer close(done)
		r.watch(runCtx, w)
	}()

	return r.state.transition(StateRunning, "watcher started", StateStarting)
}

// Done is closed once the watcher goroutine exits. It is nil before Start.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

func (r *Runner) watch(ctx context.Context, w *spool.Watcher) {
	b := newBackoff(DefaultBackoffInitial, DefaultBackoffMax)
	for {
		err := w.Run(ctx, r.shipSpoolFile)
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("spool watcher stopped, restarting", log.Err(err))
		if !b.Wait(ctx) {
			return
		}
	}
}

// shipSpoolFile ships one file, flushes and waits for every dispatch to
// finish. It fails if any dispatch failed meanwhile, so the file is only
// marked done once its actions were delivered.
func (r *Runner) shipSpoolFile(ctx context.Context, path string) error {
	var before int64
	if r.tracker != nil {
		before = r.tracker.Failures()
	}

	_, err := r.shipper.ShipFile(ctx, path)
	r.op.Flush()
	r.op.Wait()
	if err != nil {
		return err
	}

	if r.tracker != nil {
		if n := r.tracker.Failures() - before; n > 0 {
			return fmt.Errorf("%d of the file's dispatches failed", n)
		}
	}
	return nil
}

// Stop cancels the watcher and drains the operator.
func (r *Runner) Stop() error {
	if err := r.state.transition(StateStopping, "stop requested", StateRunning); err != nil {
		return err
	}

	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	err := r.waitWorkers()
	if derr := r.Drain(); err == nil {
		err = derr
	}

	if terr := r.state.transition(StateStopped, "drained", StateStopping); err == nil {
		err = terr
	}
	return err
}

func (r *Runner) waitWorkers() error {
	done := make(chan struct{})
	go func() {
		r.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(r.drainTimeout):
		r.logger.Warn("watcher did not stop in time", log.Duration("timeout", r.drainTimeout))
		return ErrShutdownTimeout
	}
}

// Drain flushes pending actions, waits up to the drain timeout for
// in-flight dispatches and closes the operator.
func (r *Runner) Drain() error {
	r.op.Flush()

	done := make(chan struct{})
	go func() {
		r.op.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(r.drainTimeout):
		r.logger.Warn("dispatches still in flight at shutdown", log.Duration("timeout", r.drainTimeout))
		err = ErrShutdownTimeout
	}

	if cerr := r.op.Close(); err == nil {
		err = cerr
	}
	return err
}
