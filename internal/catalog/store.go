package catalog

import (
	"context"
	"strings"

	"avinilabs/internal/jsonstore"
	"avinilabs/pkg/platform/sentinel"
)

// Store is the collection-backed catalog store.
type Store struct {
	tests    jsonstore.Collection
	enhanced jsonstore.Collection
	profiles jsonstore.Collection
}

func NewStore(store jsonstore.Store) *Store {
	return &Store{
		tests:    store.Collection(TestMasterCollection),
		enhanced: store.Collection(EnhancedCollection),
		profiles: store.Collection(ProfilesCollection),
	}
}

// Tests returns the full test master.
func (s *Store) Tests(ctx context.Context) ([]Test, error) {
	docs, err := s.tests.Read(ctx)
	if err != nil {
		return nil, err
	}
	return jsonstore.Decode[Test](docs)
}

// EnhancedTests returns the enhanced fallback superset.
func (s *Store) EnhancedTests(ctx context.Context) ([]Test, error) {
	docs, err := s.enhanced.Read(ctx)
	if err != nil {
		return nil, err
	}
	return jsonstore.Decode[Test](docs)
}

// Profiles returns all profiles.
func (s *Store) Profiles(ctx context.Context) ([]Profile, error) {
	docs, err := s.profiles.Read(ctx)
	if err != nil {
		return nil, err
	}
	return jsonstore.Decode[Profile](docs)
}

// FindTestByID looks up the test master first, then the enhanced superset.
func (s *Store) FindTestByID(ctx context.Context, id int) (*Test, error) {
	tests, err := s.Tests(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tests {
		if tests[i].ID == id {
			return &tests[i], nil
		}
	}
	enhanced, err := s.EnhancedTests(ctx)
	if err != nil {
		return nil, err
	}
	for i := range enhanced {
		if enhanced[i].ID == id {
			return &enhanced[i], nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// FindTestByName searches both catalogs by exact case-insensitive name.
func (s *Store) FindTestByName(ctx context.Context, name string) (*Test, error) {
	tests, err := s.Tests(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tests {
		if strings.EqualFold(tests[i].TestName, name) {
			return &tests[i], nil
		}
	}
	enhanced, err := s.EnhancedTests(ctx)
	if err != nil {
		return nil, err
	}
	for i := range enhanced {
		if strings.EqualFold(enhanced[i].TestName, name) {
			return &enhanced[i], nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// FindProfile returns a profile by its UUID.
func (s *Store) FindProfile(ctx context.Context, id string) (*Profile, error) {
	profiles, err := s.Profiles(ctx)
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		if profiles[i].ID == id {
			return &profiles[i], nil
		}
	}
	return nil, sentinel.ErrNotFound
}
