package audit

import (
	"context"
	"log/slog"
)

// Worker drains the trail outbox and ships entries to a sink. Sink failures
// are logged and dropped; shipping is best-effort by contract.
type Worker struct {
	sink   Sink
	inbox  <-chan Entry
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Entry, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry := <-w.inbox:
			if err := w.sink.Publish(ctx, entry); err != nil {
				w.logger.WarnContext(ctx, "audit shipping failed",
					"entry_id", entry.ID.String(),
					"action", string(entry.Action),
					"error", err,
				)
			}
		}
	}
}
