package observe

import (
	"github.com/bft-labs/bulkship/pkg/bulk"
	"github.com/bft-labs/bulkship/pkg/log"
)

// maxLoggedFailures caps how many failed items are detailed per batch.
const maxLoggedFailures = 5

// LoggingLifecycle logs each dispatch and its outcome.
type LoggingLifecycle struct {
	logger log.Logger
}

// NewLoggingLifecycle returns a LoggingLifecycle. A nil logger discards output.
func NewLoggingLifecycle(logger log.Logger) *LoggingLifecycle {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &LoggingLifecycle{logger: logger}
}

// BeforeDispatch logs the batch about to be sent.
func (l *LoggingLifecycle) BeforeDispatch(id int64, op *bulk.Operator, b *bulk.Batch) {
	l.logger.Debug("sending bulk request",
		log.String("operator", op.Name()),
		log.Int64("execution_id", id),
		log.Int("actions", b.Count()),
		log.Int("bytes", b.EstimatedSizeBytes()),
	)
}

// AfterDispatch logs the outcome and the first failed items.
func (l *LoggingLifecycle) AfterDispatch(id int64, op *bulk.Operator, b *bulk.Batch, resp *bulk.Response) {
	failed := resp.FailedCount()
	l.logger.Info("bulk request completed",
		log.String("operator", op.Name()),
		log.Int64("execution_id", id),
		log.Int("actions", b.Count()),
		log.Int("failed", failed),
		log.Int64("took_ms", resp.Took),
	)
	if failed == 0 {
		return
	}

	logged := 0
	for i, it := range resp.Items {
		if !it.Failed() {
			continue
		}
		if logged == maxLoggedFailures {
			break
		}
		logged++

		fields := []log.Field{
			log.String("operator", op.Name()),
			log.Int64("execution_id", id),
			log.Int("position", i),
			log.String("operation", it.Operation),
			log.String("index", it.Index),
			log.String("id", it.ID),
			log.Int("status", it.Status),
		}
		if it.Error != nil {
			fields = append(fields, log.String("reason", it.Error.Error()))
		}
		l.logger.Warn("bulk item failed", fields...)
	}
}

// AfterDispatchFailure logs a failed round trip.
func (l *LoggingLifecycle) AfterDispatchFailure(id int64, op *bulk.Operator, b *bulk.Batch, err error) {
	l.logger.Error("bulk request failed",
		log.String("operator", op.Name()),
		log.Int64("execution_id", id),
		log.Int("actions", b.Count()),
		log.Err(err),
	)
}
