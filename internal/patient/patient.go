// Package patient is the shallow patient registry: enough demographics to
// print on reports and reference from billings.
package patient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"avinilabs/internal/access"
	"avinilabs/internal/jsonstore"
	dErrors "avinilabs/pkg/domain-errors"
	"avinilabs/pkg/platform/sentinel"
	"avinilabs/pkg/requestcontext"
)

// Collection is the logical collection name for patients.
const Collection = "patients"

// Patient is one registered patient.
type Patient struct {
	ID        int       `json:"id"`
	DisplayID string    `json:"display_id"`
	FullName  string    `json:"full_name"`
	Gender    string    `json:"gender,omitempty"`
	Age       int       `json:"age,omitempty"`
	Mobile    string    `json:"mobile,omitempty"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	TenantID  int       `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Patient) Validate() error {
	if strings.TrimSpace(p.FullName) == "" {
		return dErrors.New(dErrors.CodeValidation, "full_name is required")
	}
	if p.TenantID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "tenant_id is required")
	}
	return nil
}

// Store is the collection-backed patient store.
type Store struct {
	patients jsonstore.Collection
}

func NewStore(store jsonstore.Store) *Store {
	return &Store{patients: store.Collection(Collection)}
}

func (s *Store) List(ctx context.Context) ([]Patient, error) {
	docs, err := s.patients.Read(ctx)
	if err != nil {
		return nil, err
	}
	return jsonstore.Decode[Patient](docs)
}

func (s *Store) FindByID(ctx context.Context, id int) (*Patient, error) {
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

// Create appends the patient, assigning the next id and the display id.
func (s *Store) Create(ctx context.Context, p *Patient) error {
	return s.patients.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		p.ID = jsonstore.NextID(docs)
		p.DisplayID = fmt.Sprintf("P%05d", p.ID)
		doc, err := jsonstore.EncodeOne(*p)
		if err != nil {
			return nil, err
		}
		return append(docs, doc), nil
	})
}

func (s *Store) Save(ctx context.Context, p *Patient) error {
	found := false
	err := s.patients.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		for i, doc := range docs {
			existing, err := jsonstore.DecodeOne[Patient](doc)
			if err != nil {
				return nil, err
			}
			if existing.ID == p.ID {
				updated, err := jsonstore.EncodeOne(*p)
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
	logger    *slog.Logger
}

func NewService(store *Store, evaluator *access.Evaluator, logger *slog.Logger) *Service {
	return &Service{store: store, evaluator: evaluator, logger: logger}
}

func (s *Service) Create(ctx context.Context, p Patient) (*Patient, error) {
	user := requestcontext.User(ctx)
	if p.TenantID == 0 {
		p.TenantID = user.TenantID
	}
	now := requestcontext.Now(ctx)
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.evaluator.RequireModule(ctx, access.ModulePatients); err != nil {
		return nil, err
	}
	scope, err := s.evaluator.ScopeFor(ctx)
	if err != nil {
		return nil, err
	}
	if err := access.CheckTarget(scope, p.TenantID); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, &p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create patient")
	}
	return &p, nil
}

func (s *Service) Get(ctx context.Context, id int) (*Patient, error) {
	p, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "patient not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load patient")
	}
	scope, err := s.evaluator.ScopeFor(ctx)
	if err != nil {
		return nil, err
	}
	if err := access.CheckTarget(scope, p.TenantID); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns patients visible to the caller, optionally filtered by a
// case-insensitive name or mobile substring.
func (s *Service) List(ctx context.Context, query string) ([]Patient, error) {
	scope, err := s.evaluator.ScopeFor(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list patients")
	}
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]Patient, 0, len(all))
	for _, p := range all {
		if !scope.Allows(p.TenantID) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(p.FullName), query) &&
			!strings.Contains(p.Mobile, query) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, id int, patch Patient) (*Patient, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.FullName != "" {
		existing.FullName = strings.TrimSpace(patch.FullName)
	}
	if patch.Gender != "" {
		existing.Gender = patch.Gender
	}
	if patch.Age != 0 {
		existing.Age = patch.Age
	}
	if patch.Mobile != "" {
		existing.Mobile = patch.Mobile
	}
	if patch.Email != "" {
		existing.Email = patch.Email
	}
	if patch.Address != "" {
		existing.Address = patch.Address
	}
	existing.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Save(ctx, existing); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update patient")
	}
	return existing, nil
}
