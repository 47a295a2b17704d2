package observe

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/bulkship/pkg/bulk"
)

// Dispatch outcomes used as the "outcome" label.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// Action outcomes used as the "outcome" label of actions_total.
const (
	ActionSucceeded = "succeeded"
	ActionFailed    = "failed"
	ActionUnsent    = "unsent"
)

// MetricsLifecycle exports Prometheus metrics per operator.
type MetricsLifecycle struct {
	dispatches *prometheus.CounterVec
	actions    *prometheus.CounterVec
	bytes      *prometheus.HistogramVec
	duration   *prometheus.HistogramVec
	inFlight   *prometheus.GaugeVec

	starts sync.Map // dispatchKey -> time.Time
}

type dispatchKey struct {
	operator string
	id       int64
}

// NewMetricsLifecycle registers the bulkship collectors on reg. Collectors
// already registered by another MetricsLifecycle are reused.
func NewMetricsLifecycle(reg prometheus.Registerer) (*MetricsLifecycle, error) {
	m := &MetricsLifecycle{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bulkship",
			Name:      "dispatches_total",
			Help:      "Bulk requests by outcome.",
		}, []string{"operator", "outcome"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bulkship",
			Name:      "actions_total",
			Help:      "Dispatched actions by outcome.",
		}, []string{"operator", "outcome"}),
		bytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bulkship",
			Name:      "batch_size_bytes",
			Help:      "Bulk payload size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}, []string{"operator"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bulkship",
			Name:      "dispatch_duration_seconds",
			Help:      "Bulk request round trip in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operator", "outcome"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bulkship",
			Name:      "dispatches_in_flight",
			Help:      "Bulk requests awaiting a reply.",
		}, []string{"operator"}),
	}

	if err := registerOrReuse(reg, &m.dispatches); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.actions); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.bytes); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.duration); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.inFlight); err != nil {
		return nil, err
	}
	return m, nil
}

func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(T)
			if !ok {
				return fmt.Errorf("observe: metric already registered with incompatible type: %T", are.ExistingCollector)
			}
			*c = existing
			return nil
		}
		return fmt.Errorf("observe: register metric: %w", err)
	}
	return nil
}

// BeforeDispatch records the batch size and marks the dispatch in flight.
func (m *MetricsLifecycle) BeforeDispatch(id int64, op *bulk.Operator, b *bulk.Batch) {
	m.starts.Store(dispatchKey{op.Name(), id}, time.Now())
	m.inFlight.WithLabelValues(op.Name()).Inc()
	m.bytes.WithLabelValues(op.Name()).Observe(float64(b.EstimatedSizeBytes()))
}

// AfterDispatch counts the dispatch and its per-action outcomes.
func (m *MetricsLifecycle) AfterDispatch(id int64, op *bulk.Operator, b *bulk.Batch, resp *bulk.Response) {
	failed := resp.FailedCount()
	outcome := OutcomeOK
	if failed > 0 {
		outcome = OutcomePartial
	}

	succeeded := b.Count() - failed
	if succeeded < 0 {
		succeeded = 0
	}

	m.finish(id, op.Name(), outcome)
	m.actions.WithLabelValues(op.Name(), ActionSucceeded).Add(float64(succeeded))
	m.actions.WithLabelValues(op.Name(), ActionFailed).Add(float64(failed))
}

// AfterDispatchFailure counts a failed dispatch and its unsent actions.
func (m *MetricsLifecycle) AfterDispatchFailure(id int64, op *bulk.Operator, b *bulk.Batch, err error) {
	m.finish(id, op.Name(), OutcomeFailed)
	m.actions.WithLabelValues(op.Name(), ActionUnsent).Add(float64(b.Count()))
}

func (m *MetricsLifecycle) finish(id int64, operator, outcome string) {
	m.dispatches.WithLabelValues(operator, outcome).Inc()
	m.inFlight.WithLabelValues(operator).Dec()
	if v, ok := m.starts.LoadAndDelete(dispatchKey{operator, id}); ok {
		m.duration.WithLabelValues(operator, outcome).Observe(time.Since(v.(time.Time)).Seconds())
	}
}
