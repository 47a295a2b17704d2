package app

import (
	"sync/atomic"

	"github.com/bft-labs/bulkship/pkg/bulk"
)

// DeliveryTracker counts dispatches whose round trip failed. The Runner
// reads it around each spool file to decide whether the file was
// delivered. Install it in the operator's lifecycle chain.
type DeliveryTracker struct {
	bulk.NoopLifecycle

	failures atomic.Int64
}

// NewDeliveryTracker returns a tracker with no failures recorded.
func NewDeliveryTracker() *DeliveryTracker {
	return &DeliveryTracker{}
}

// AfterDispatchFailure records one failed dispatch.
func (t *DeliveryTracker) AfterDispatchFailure(int64, *bulk.Operator, *bulk.Batch, error) {
	t.failures.Add(1)
}

// Failures returns the number of failed dispatches so far.
func (t *DeliveryTracker) Failures() int64 {
	return t.failures.Load()
}
