package notification

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"avinilabs/internal/audit"
	"avinilabs/internal/platform/metrics"
	redisclient "avinilabs/internal/platform/redis"
	dErrors "avinilabs/pkg/domain-errors"
	"avinilabs/pkg/platform/sentinel"
	"avinilabs/pkg/requestcontext"
)

// Queue mirrors persisted notifications to an external consumer. Mirroring
// is best-effort: a queue fault never fails the originating operation.
type Queue interface {
	Publish(ctx context.Context, n Notification) error
}

// NopQueue drops everything; the default when no Redis is configured.
type NopQueue struct{}

func (NopQueue) Publish(context.Context, Notification) error { return nil }

// RedisQueue pushes notifications onto a Redis list.
type RedisQueue struct {
	client *redisclient.Client
	key    string
}

func NewRedisQueue(client *redisclient.Client, key string) *RedisQueue {
	if key == "" {
		key = "avini:notifications"
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Publish(ctx context.Context, n Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, q.key, raw).Err()
}

// Service persists notifications and mirrors them to the queue.
type Service struct {
	store          *Store
	queue          Queue
	logger         *slog.Logger
	auditPublisher audit.Publisher
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithQueue(queue Queue) Option {
	return func(s *Service) { s.queue = queue }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store *Store, opts ...Option) *Service {
	s := &Service{
		store:          store,
		queue:          NopQueue{},
		logger:         slog.Default(),
		auditPublisher: audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send persists the notification and mirrors it. A queue fault is logged and
// recorded in the error log but never surfaced to the caller.
func (s *Service) Send(ctx context.Context, n Notification) error {
	if n.RecipientID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "recipient_id is required")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = requestcontext.Now(ctx)
	}
	if err := s.store.Append(ctx, &n); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist notification")
	}
	if s.metrics != nil {
		s.metrics.NotificationsSent.Inc()
	}

	if err := s.queue.Publish(ctx, n); err != nil {
		s.logger.Error("notification queue publish failed",
			"notification_id", n.ID, "recipient_id", n.RecipientID, "error", err)
		_ = s.auditPublisher.EmitError(ctx, audit.ErrorEntry{
			ErrorType: "notification_failure",
			Severity:  audit.SeverityError,
			UserID:    n.SenderID,
			Details:   map[string]any{"notification_id": n.ID, "error": err.Error()},
		})
	}
	return nil
}

// ListForUser returns the caller's notifications, newest first.
func (s *Service) ListForUser(ctx context.Context) ([]Notification, error) {
	user := requestcontext.User(ctx)
	out, err := s.store.ListForRecipient(ctx, user.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list notifications")
	}
	return out, nil
}

// MarkRead flags one of the caller's notifications as read. Idempotent.
func (s *Service) MarkRead(ctx context.Context, id string) (*Notification, error) {
	user := requestcontext.User(ctx)
	n, err := s.store.MarkRead(ctx, id, user.ID, requestcontext.Now(ctx))
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "notification not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.New(dErrors.CodeAccessDenied, "only the recipient may mark a notification read")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark notification read")
	}
	return n, nil
}
