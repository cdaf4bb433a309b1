// Package sample tracks physical specimens: collection, status progression
// and the references billing and routing operations need.
package sample

import (
	"context"
	"errors"
	"fmt"
	"time"

	"avinilabs/internal/access"
	"avinilabs/internal/jsonstore"
	dErrors "avinilabs/pkg/domain-errors"
	"avinilabs/pkg/platform/sentinel"
	"avinilabs/pkg/requestcontext"
)

// Collection is the logical collection name for samples.
const Collection = "samples"

// Sample status progression.
const (
	StatusCollected = "Collected"
	StatusInTransit = "In Transit"
	StatusReceived  = "Received"
	StatusProcessed = "Processed"
	StatusCompleted = "Completed"
)

var validStatuses = map[string]bool{
	StatusCollected: true,
	StatusInTransit: true,
	StatusReceived:  true,
	StatusProcessed: true,
	StatusCompleted: true,
}

// Sample is one physical specimen.
type Sample struct {
	ID           int       `json:"id"`
	DisplayID    string    `json:"display_id"`
	PatientID    int       `json:"patient_id"`
	SampleTypeID int       `json:"sample_type_id,omitempty"`
	ContainerID  int       `json:"container_id,omitempty"`
	Status       string    `json:"status"`
	TenantID     int       `json:"tenant_id"`
	CollectedAt  time.Time `json:"collected_at,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s *Sample) Validate() error {
	if s.PatientID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "patient_id is required")
	}
	if s.TenantID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "tenant_id is required")
	}
	if !validStatuses[s.Status] {
		return dErrors.Newf(dErrors.CodeValidation, "invalid sample status %q", s.Status)
	}
	return nil
}

// Store is the collection-backed sample store.
type Store struct {
	samples jsonstore.Collection
}

func NewStore(store jsonstore.Store) *Store {
	return &Store{samples: store.Collection(Collection)}
}

func (s *Store) List(ctx context.Context) ([]Sample, error) {
	docs, err := s.samples.Read(ctx)
	if err != nil {
		return nil, err
	}
	return jsonstore.Decode[Sample](docs)
}

func (s *Store) FindByID(ctx context.Context, id int) (*Sample, error) {
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

func (s *Store) Create(ctx context.Context, sm *Sample) error {
	return s.samples.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		sm.ID = jsonstore.NextID(docs)
		sm.DisplayID = fmt.Sprintf("S%05d", sm.ID)
		doc, err := jsonstore.EncodeOne(*sm)
		if err != nil {
			return nil, err
		}
		return append(docs, doc), nil
	})
}

func (s *Store) Save(ctx context.Context, sm *Sample) error {
	found := false
	err := s.samples.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		for i, doc := range docs {
			existing, err := jsonstore.DecodeOne[Sample](doc)
			if err != nil {
				return nil, err
			}
			if existing.ID == sm.ID {
				updated, err := jsonstore.EncodeOne(*sm)
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

// Service applies access scoping over the store.
type Service struct {
	store     *Store
	evaluator *access.Evaluator
}

func NewService(store *Store, evaluator *access.Evaluator) *Service {
	return &Service{store: store, evaluator: evaluator}
}

func (s *Service) Create(ctx context.Context, sm Sample) (*Sample, error) {
	user := requestcontext.User(ctx)
	if sm.TenantID == 0 {
		sm.TenantID = user.TenantID
	}
	if sm.Status == "" {
		sm.Status = StatusCollected
	}
	now := requestcontext.Now(ctx)
	if sm.CollectedAt.IsZero() {
		sm.CollectedAt = now
	}
	sm.CreatedAt = now
	sm.UpdatedAt = now
	if err := sm.Validate(); err != nil {
		return nil, err
	}
	if err := s.evaluator.RequireModule(ctx, access.ModuleSamples); err != nil {
		return nil, err
	}
	scope, err := s.evaluator.ScopeFor(ctx)
	if err != nil {
		return nil, err
	}
	if err := access.CheckTarget(scope, sm.TenantID); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, &sm); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create sample")
	}
	return &sm, nil
}

func (s *Service) Get(ctx context.Context, id int) (*Sample, error) {
	sm, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "sample not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load sample")
	}
	scope, err := s.evaluator.ScopeFor(ctx)
	if err != nil {
		return nil, err
	}
	if err := access.CheckTarget(scope, sm.TenantID); err != nil {
		return nil, err
	}
	return sm, nil
}

func (s *Service) List(ctx context.Context, patientID int) ([]Sample, error) {
	scope, err := s.evaluator.ScopeFor(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list samples")
	}
	out := make([]Sample, 0, len(all))
	for _, sm := range all {
		if !scope.Allows(sm.TenantID) {
			continue
		}
		if patientID != 0 && sm.PatientID != patientID {
			continue
		}
		out = append(out, sm)
	}
	return out, nil
}

// UpdateStatus moves a sample along its status progression.
func (s *Service) UpdateStatus(ctx context.Context, id int, status string) (*Sample, error) {
	if !validStatuses[status] {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid sample status %q", status)
	}
	sm, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sm.Status = status
	sm.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Save(ctx, sm); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update sample")
	}
	return sm, nil
}
