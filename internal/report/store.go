package report

import (
	"context"
	"strings"

	"avinilabs/internal/jsonstore"
	"avinilabs/pkg/platform/sentinel"
)

// Store is the collection-backed report store.
type Store struct {
	reports jsonstore.Collection
}

func NewStore(store jsonstore.Store) *Store {
	return &Store{reports: store.Collection(Collection)}
}

// List returns all reports in collection order.
func (s *Store) List(ctx context.Context) ([]BillingReport, error) {
	docs, err := s.reports.Read(ctx)
	if err != nil {
		return nil, err
	}
	return jsonstore.Decode[BillingReport](docs)
}

// FindByID returns a report or sentinel.ErrNotFound.
func (s *Store) FindByID(ctx context.Context, id int) (*BillingReport, error) {
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

// FindBySID returns a report by exact, case-insensitive sid.
func (s *Store) FindBySID(ctx context.Context, sid string) (*BillingReport, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if strings.EqualFold(all[i].SIDNumber, sid) {
			return &all[i], nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// Create appends the report, assigning the next id and rejecting a duplicate
// sid under the collection write lock.
func (s *Store) Create(ctx context.Context, r *BillingReport) error {
	return s.reports.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		existing, err := jsonstore.Decode[BillingReport](docs)
		if err != nil {
			return nil, err
		}
		for _, other := range existing {
			if other.SIDNumber != "" && other.SIDNumber == r.SIDNumber {
				return nil, sentinel.ErrConflict
			}
		}
		r.ID = jsonstore.NextID(docs)
		doc, err := jsonstore.EncodeOne(*r)
		if err != nil {
			return nil, err
		}
		return append(docs, doc), nil
	})
}

// Save replaces the stored report with the same id.
func (s *Store) Save(ctx context.Context, r *BillingReport) error {
	found := false
	err := s.reports.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		for i, doc := range docs {
			existing, err := jsonstore.DecodeOne[BillingReport](doc)
			if err != nil {
				return nil, err
			}
			if existing.ID == r.ID {
				updated, err := jsonstore.EncodeOne(*r)
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
