package audit

import (
	"context"
	"log/slog"
)

// Worker consumes audit and error entries from the publisher's channels and
// persists them. It keeps background processing testable without wiring queue
// implementations into services.
type Worker struct {
	store  *Store
	inbox  <-chan Entry
	errs   <-chan ErrorEntry
	sink   Sink
	logger *slog.Logger
}

// Sink mirrors entries to an external system (Kafka). Never authoritative:
// sink failures are logged and the ring store still gets the entry.
type Sink interface {
	Publish(ctx context.Context, entry Entry) error
}

func NewWorker(store *Store, pub *ChannelPublisher, sink Sink, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: pub.Inbox(), errs: pub.ErrorInbox(), sink: sink, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry := <-w.inbox:
			if err := w.store.Append(ctx, entry); err != nil {
				w.logger.Error("failed to persist audit entry", "error", err, "event_type", entry.EventType)
			}
			if w.sink != nil {
				if err := w.sink.Publish(ctx, entry); err != nil {
					w.logger.Warn("audit sink publish failed", "error", err)
				}
			}
		case entry := <-w.errs:
			if err := w.store.AppendError(ctx, entry); err != nil {
				w.logger.Error("failed to persist error entry", "error", err, "error_type", entry.ErrorType)
			}
		}
	}
}
