package jsonstore

import (
	"context"
	"sync"
)

// MemoryStore is the in-memory collection store used by unit tests and as a
// scratch backend. Semantics match the file store: whole-collection replace,
// per-collection write lock, snapshot reads.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Document
	locks       *lockTable
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string][]Document),
		locks:       newLockTable(),
	}
}

func (s *MemoryStore) Collection(name string) Collection {
	return &memoryCollection{store: s, name: name, lock: s.locks.ForName(name)}
}

func (s *MemoryStore) Exclusive(ctx context.Context, fn func(ctx context.Context) error, names ...string) error {
	return s.locks.exclusive(ctx, fn, names...)
}

// Seed replaces a collection's contents directly; test setup helper.
func (s *MemoryStore) Seed(name string, docs []Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[name] = cloneDocs(docs)
}

type memoryCollection struct {
	store *MemoryStore
	name  string
	lock  *sync.Mutex
}

func (c *memoryCollection) Name() string { return c.name }

func (c *memoryCollection) Read(ctx context.Context) ([]Document, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	return cloneDocs(c.store.collections[c.name]), nil
}

func (c *memoryCollection) Write(ctx context.Context, docs []Document) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.replace(docs)
	return nil
}

func (c *memoryCollection) Update(ctx context.Context, fn func(docs []Document) ([]Document, error)) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	docs, _ := c.Read(ctx)
	updated, err := fn(docs)
	if err != nil {
		return err
	}
	c.replace(updated)
	return nil
}

func (c *memoryCollection) replace(docs []Document) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.collections[c.name] = cloneDocs(docs)
}

// cloneDocs round-trips documents through a shallow copy per document so
// callers cannot mutate the stored snapshot. Nested values are shared;
// services treat decoded documents as read-only inputs.
func cloneDocs(docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, d := range docs {
		cp := make(Document, len(d))
		for k, v := range d {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}
