// Package jsonstore implements the collection store: whole-collection reads
// and writes keyed by logical collection name. The file backend keeps one
// JSON array per collection under the data directory; a memory backend serves
// tests and a Postgres backend offers the same contract over jsonb.
package jsonstore

import (
	"context"
	"sort"
	"sync"
)

// Document is a schemaless record as stored on disk. Typed models round-trip
// through Encode/Decode.
type Document = map[string]any

// Collection is a named ordered sequence of documents. Write replaces the
// whole collection; Update runs a read-modify-write under the collection's
// exclusive write lock. Reads are lock-free and may observe an older
// snapshot, never a torn document.
type Collection interface {
	Name() string
	Read(ctx context.Context) ([]Document, error)
	Write(ctx context.Context, docs []Document) error
	Update(ctx context.Context, fn func(docs []Document) ([]Document, error)) error
}

// Store resolves collections by name and coordinates multi-collection
// critical sections.
type Store interface {
	Collection(name string) Collection
	// Exclusive runs fn while holding the write locks of the named
	// collections. Locks are acquired in lexicographic order so concurrent
	// callers cannot deadlock. fn must not call Write or Update on the
	// locked collections; reads are fine.
	Exclusive(ctx context.Context, fn func(ctx context.Context) error, names ...string) error
}

// lockTable hands out one mutex per collection name, shared by all backends.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *lockTable) ForName(name string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok := t.locks[name]; ok {
		return l
	}
	l := &sync.Mutex{}
	t.locks[name] = l
	return l
}

func (t *lockTable) exclusive(ctx context.Context, fn func(ctx context.Context) error, names ...string) error {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	for _, name := range sorted {
		t.ForName(name).Lock()
	}
	defer func() {
		for i := len(sorted) - 1; i >= 0; i-- {
			t.ForName(sorted[i]).Unlock()
		}
	}()
	return fn(ctx)
}

// NextID returns max(id)+1 across docs, starting at 1 for an empty
// collection. Non-numeric ids are ignored.
func NextID(docs []Document) int {
	next := 1
	for _, d := range docs {
		if id, ok := asInt(d["id"]); ok && id >= next {
			next = id + 1
		}
	}
	return next
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
