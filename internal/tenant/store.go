package tenant

import (
	"context"
	"strings"

	"avinilabs/internal/jsonstore"
	"avinilabs/pkg/platform/sentinel"
)

// Collection is the logical collection name for tenants.
const Collection = "tenants"

// ModulesCollection is the logical collection name for modules.
const ModulesCollection = "modules"

// Store is the collection-backed tenant store.
type Store struct {
	tenants jsonstore.Collection
	modules jsonstore.Collection
}

func NewStore(store jsonstore.Store) *Store {
	return &Store{
		tenants: store.Collection(Collection),
		modules: store.Collection(ModulesCollection),
	}
}

// List returns all tenants in collection order.
func (s *Store) List(ctx context.Context) ([]Tenant, error) {
	docs, err := s.tenants.Read(ctx)
	if err != nil {
		return nil, err
	}
	return jsonstore.Decode[Tenant](docs)
}

// FindByID returns a tenant or sentinel.ErrNotFound.
func (s *Store) FindByID(ctx context.Context, id int) (*Tenant, error) {
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

// CreateIfSiteCodeAvailable appends the tenant, assigning the next id, unless
// an active tenant already holds the site code (case-insensitive).
func (s *Store) CreateIfSiteCodeAvailable(ctx context.Context, t *Tenant) error {
	return s.tenants.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		existing, err := jsonstore.Decode[Tenant](docs)
		if err != nil {
			return nil, err
		}
		for _, other := range existing {
			if other.IsActive && strings.EqualFold(other.SiteCode, t.SiteCode) {
				return nil, sentinel.ErrConflict
			}
		}
		t.ID = jsonstore.NextID(docs)
		doc, err := jsonstore.EncodeOne(*t)
		if err != nil {
			return nil, err
		}
		return append(docs, doc), nil
	})
}

// Save replaces the stored tenant with the same id.
func (s *Store) Save(ctx context.Context, t *Tenant) error {
	found := false
	err := s.tenants.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		for i, doc := range docs {
			existing, err := jsonstore.DecodeOne[Tenant](doc)
			if err != nil {
				return nil, err
			}
			if existing.ID == t.ID {
				updated, err := jsonstore.EncodeOne(*t)
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

// ListModules returns the module catalog.
func (s *Store) ListModules(ctx context.Context) ([]Module, error) {
	docs, err := s.modules.Read(ctx)
	if err != nil {
		return nil, err
	}
	return jsonstore.Decode[Module](docs)
}

// ReplaceModules overwrites the module catalog.
func (s *Store) ReplaceModules(ctx context.Context, modules []Module) error {
	docs, err := jsonstore.Encode(modules)
	if err != nil {
		return err
	}
	return s.modules.Write(ctx, docs)
}

// ModuleExists reports whether a module id is defined.
func (s *Store) ModuleExists(ctx context.Context, moduleID int) (bool, error) {
	modules, err := s.ListModules(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range modules {
		if m.ID == moduleID {
			return true, nil
		}
	}
	return false, nil
}
