package bulk

import (
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/bulkship/pkg/log"
)

// Option configures an Operator.
type Option func(*options)

type options struct {
	name            string
	concurrency     int
	interval        time.Duration
	maxActions      int
	endpoint        string
	dispatchTimeout time.Duration
	lifecycle       Lifecycle
	sequence        Sequence
	logger          log.Logger
}

func defaultOptions() options {
	return options{
		name:        uuid.NewString(),
		concurrency: 1,
		endpoint:    DefaultEndpoint,
		lifecycle:   NoopLifecycle{},
		sequence:    processSequence,
		logger:      log.NewNoopLogger(),
	}
}

// WithName sets the operator name used in logs and request metadata.
// Defaults to a random UUID.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithConcurrency bounds the number of dispatches in flight.
// Values below 1 are treated as 1.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = 1
		}
		o.concurrency = n
	}
}

// WithInterval flushes pending actions on a fixed delay. The next delay
// starts once the previous flush returns. Zero disables the timer.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d < 0 {
			d = 0
		}
		o.interval = d
	}
}

// WithMaxActions flushes as soon as this many actions are pending.
// Zero means no count threshold.
func WithMaxActions(n int) Option {
	return func(o *options) {
		if n < 0 {
			n = 0
		}
		o.maxActions = n
	}
}

// WithEndpoint sets the request path passed to the Transport.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		if endpoint != "" {
			o.endpoint = endpoint
		}
	}
}

// WithDispatchTimeout bounds each transport round trip. Zero means none.
func WithDispatchTimeout(d time.Duration) Option {
	return func(o *options) {
		o.dispatchTimeout = d
	}
}

// WithLifecycle installs dispatch hooks. A nil lifecycle restores the no-op.
func WithLifecycle(l Lifecycle) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLifecycle{}
		}
		o.lifecycle = l
	}
}

// WithSequence replaces the process-wide execution id sequence.
func WithSequence(s Sequence) Option {
	return func(o *options) {
		if s != nil {
			o.sequence = s
		}
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
