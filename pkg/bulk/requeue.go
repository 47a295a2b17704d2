package bulk

import (
	"github.com/bft-labs/bulkship/pkg/log"
)

// RequeueLifecycle resubmits every action whose response item failed
// (status >= 400) to the same Operator. Items are matched to actions by
// position. There is no backoff and no retry limit, so an action that
// always fails is resubmitted with every batch it lands in.
type RequeueLifecycle struct {
	NoopLifecycle

	logger log.Logger
}

// NewRequeueLifecycle returns a RequeueLifecycle. A nil logger discards output.
func NewRequeueLifecycle(logger log.Logger) *RequeueLifecycle {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &RequeueLifecycle{logger: logger}
}

// AfterDispatch re-adds the failed actions of batch to op.
func (r *RequeueLifecycle) AfterDispatch(executionID int64, op *Operator, batch *Batch, resp *Response) {
	if resp == nil || !resp.Errors {
		return
	}

	logger := r.logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	if len(resp.Items) != batch.Count() {
		logger.Error("cannot correlate response items with actions, nothing requeued",
			log.String("operator", op.Name()),
			log.Int64("execution_id", executionID),
			log.Int("actions", batch.Count()),
			log.Int("items", len(resp.Items)),
		)
		return
	}

	requeued := 0
	for i, item := range resp.Items {
		if !item.Failed() {
			continue
		}

		action := batch.Action(i)
		if item.Operation != "" && item.Operation != action.Operation() {
			logger.Warn("response item operation does not match action, skipped",
				log.String("operator", op.Name()),
				log.Int64("execution_id", executionID),
				log.Int("position", i),
				log.String("action_operation", action.Operation()),
				log.String("item_operation", item.Operation),
			)
			continue
		}

		if err := op.Add(action); err != nil {
			logger.Warn("requeue stopped",
				log.String("operator", op.Name()),
				log.Int64("execution_id", executionID),
				log.Int("requeued", requeued),
				log.Err(err),
			)
			return
		}
		requeued++
	}

	if requeued > 0 {
		logger.Debug("requeued failed actions",
			log.String("operator", op.Name()),
			log.Int64("execution_id", executionID),
			log.Int("requeued", requeued),
		)
	}
}
