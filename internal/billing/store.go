package billing

import (
	"context"
	"fmt"

	"avinilabs/internal/jsonstore"
	"avinilabs/pkg/platform/sentinel"
)

// Store is the collection-backed billing store.
type Store struct {
	billings jsonstore.Collection
}

func NewStore(store jsonstore.Store) *Store {
	return &Store{billings: store.Collection(Collection)}
}

// List returns all billings in collection order.
func (s *Store) List(ctx context.Context) ([]Billing, error) {
	docs, err := s.billings.Read(ctx)
	if err != nil {
		return nil, err
	}
	return jsonstore.Decode[Billing](docs)
}

// FindByID returns a billing or sentinel.ErrNotFound.
func (s *Store) FindByID(ctx context.Context, id int) (*Billing, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// Create appends the billing, assigning the next id and the derived invoice
// number, and rejects a duplicate sid under the collection write lock.
func (s *Store) Create(ctx context.Context, b *Billing) error {
	return s.billings.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		existing, err := jsonstore.Decode[Billing](docs)
		if err != nil {
			return nil, err
		}
		for _, other := range existing {
			if other.SIDNumber != "" && other.SIDNumber == b.SIDNumber {
				return nil, sentinel.ErrConflict
			}
		}
		b.ID = jsonstore.NextID(docs)
		b.InvoiceNumber = fmt.Sprintf("INV%05d", b.ID)
		doc, err := jsonstore.EncodeOne(*b)
		if err != nil {
			return nil, err
		}
		return append(docs, doc), nil
	})
}

// Save replaces the stored billing with the same id.
func (s *Store) Save(ctx context.Context, b *Billing) error {
	found := false
	err := s.billings.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		for i, doc := range docs {
			existing, err := jsonstore.DecodeOne[Billing](doc)
			if err != nil {
				return nil, err
			}
			if existing.ID == b.ID {
				updated, err := jsonstore.EncodeOne(*b)
				if err != nil {
					return nil, err
				}
				docs[i] = updated
				found = true
				return docs, nil
			}
		}
		return nil, sentinel.ErrNotFound
	})
	if err != nil {
		return err
	}
	if !found {
		return sentinel.ErrNotFound
	}
	return nil
}
