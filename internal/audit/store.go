package audit

import (
	"context"

	"avinilabs/internal/jsonstore"
)

// Collection names.
const (
	AuditCollection = "audit_log"
	ErrorCollection = "error_log"
)

// Store persists audit and error entries with ring-buffer retention.
type Store struct {
	audits jsonstore.Collection
	errors jsonstore.Collection
}

func NewStore(store jsonstore.Store) *Store {
	return &Store{
		audits: store.Collection(AuditCollection),
		errors: store.Collection(ErrorCollection),
	}
}

// Append adds an audit entry, truncating the oldest entries past the cap.
func (s *Store) Append(ctx context.Context, entry Entry) error {
	return s.audits.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		entry.ID = jsonstore.NextID(docs)
		doc, err := jsonstore.EncodeOne(entry)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
		if len(docs) > AuditRetention {
			docs = docs[len(docs)-AuditRetention:]
		}
		return docs, nil
	})
}

// AppendError adds an error entry, truncating past its cap.
func (s *Store) AppendError(ctx context.Context, entry ErrorEntry) error {
	return s.errors.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		entry.ID = jsonstore.NextID(docs)
		doc, err := jsonstore.EncodeOne(entry)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
		if len(docs) > ErrorRetention {
			docs = docs[len(docs)-ErrorRetention:]
		}
		return docs, nil
	})
}

// Recent returns up to limit audit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	docs, err := s.audits.Read(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := jsonstore.Decode[Entry](docs)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
