package audit

import (
	"context"
	"log/slog"

	"avinilabs/pkg/requestcontext"
)

// Publisher accepts entries from domain services. Implementations must not
// block request handling: an audit fault is logged, never propagated.
type Publisher interface {
	Emit(ctx context.Context, entry Entry) error
	EmitError(ctx context.Context, entry ErrorEntry) error
}

// ChannelPublisher pushes entries onto bounded channels consumed by the
// Worker. When a channel is full the entry is dropped with a warning; the
// audit trail is best-effort by design, the authoritative state lives in the
// domain collections.
type ChannelPublisher struct {
	entries chan Entry
	errs    chan ErrorEntry
	logger  *slog.Logger
}

func NewChannelPublisher(buffer int, logger *slog.Logger) *ChannelPublisher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &ChannelPublisher{
		entries: make(chan Entry, buffer),
		errs:    make(chan ErrorEntry, buffer),
		logger:  logger,
	}
}

func (p *ChannelPublisher) Emit(ctx context.Context, entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	select {
	case p.entries <- entry:
	default:
		p.logger.Warn("audit inbox full, dropping entry", "event_type", entry.EventType)
	}
	return nil
}

func (p *ChannelPublisher) EmitError(ctx context.Context, entry ErrorEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	select {
	case p.errs <- entry:
	default:
		p.logger.Warn("error inbox full, dropping entry", "error_type", entry.ErrorType)
	}
	return nil
}

// Inbox exposes the entry channel to the Worker.
func (p *ChannelPublisher) Inbox() <-chan Entry { return p.entries }

// ErrorInbox exposes the error channel to the Worker.
func (p *ChannelPublisher) ErrorInbox() <-chan ErrorEntry { return p.errs }

// NopPublisher discards everything; used when a service is constructed
// without audit wiring (tests mostly).
type NopPublisher struct{}

func (NopPublisher) Emit(ctx context.Context, entry Entry) error           { return nil }
func (NopPublisher) EmitError(ctx context.Context, entry ErrorEntry) error { return nil }
