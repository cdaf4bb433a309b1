// Package notification delivers in-app notifications to routing
// participants. Persistence is the collection store; an optional Redis list
// mirrors every notification for external consumers.
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"

	"avinilabs/internal/jsonstore"
	"avinilabs/pkg/platform/sentinel"
)

// Collection is the logical collection name for notifications.
const Collection = "notifications"

// Priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Notification is one in-app message for a user.
type Notification struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	RecipientID int        `json:"recipient_id"`
	SenderID    int        `json:"sender_id,omitempty"`
	RoutingID   int        `json:"routing_id,omitempty"`
	Priority    string     `json:"priority"`
	IsRead      bool       `json:"is_read"`
	CreatedAt   time.Time  `json:"created_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// Store is the collection-backed notification store.
type Store struct {
	notifications jsonstore.Collection
}

func NewStore(store jsonstore.Store) *Store {
	return &Store{notifications: store.Collection(Collection)}
}

// Append persists a notification, assigning a UUID when absent.
func (s *Store) Append(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}
	return s.notifications.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		doc, err := jsonstore.EncodeOne(*n)
		if err != nil {
			return nil, err
		}
		return append(docs, doc), nil
	})
}

// ListForRecipient returns a user's notifications, newest first.
func (s *Store) ListForRecipient(ctx context.Context, recipientID int) ([]Notification, error) {
	docs, err := s.notifications.Read(ctx)
	if err != nil {
		return nil, err
	}
	all, err := jsonstore.Decode[Notification](docs)
	if err != nil {
		return nil, err
	}
	out := make([]Notification, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].RecipientID == recipientID {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// MarkRead flags a notification as read. Idempotent: re-reading an already
// read notification keeps the original read_at.
func (s *Store) MarkRead(ctx context.Context, id string, recipientID int, at time.Time) (*Notification, error) {
	var updated *Notification
	err := s.notifications.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		for i, doc := range docs {
			n, err := jsonstore.DecodeOne[Notification](doc)
			if err != nil {
				return nil, err
			}
			if n.ID != id {
				continue
			}
			if n.RecipientID != recipientID {
				return nil, sentinel.ErrInvalidState
			}
			if !n.IsRead {
				n.IsRead = true
				n.ReadAt = &at
				encoded, err := jsonstore.EncodeOne(n)
				if err != nil {
					return nil, err
				}
				docs[i] = encoded
			}
			updated = &n
			return docs, nil
		}
		return nil, sentinel.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
