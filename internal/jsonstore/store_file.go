package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps one <name>.json file per collection under a data directory.
// Each file holds a top-level JSON array of documents. Writes go through a
// temp file and rename so readers never observe a torn document.
type FileStore struct {
	dir   string
	locks *lockTable
}

// NewFileStore creates the data directory if needed and returns a store over it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{dir: dir, locks: newLockTable()}, nil
}

func (s *FileStore) Collection(name string) Collection {
	return &fileCollection{store: s, name: name, lock: s.locks.ForName(name)}
}

func (s *FileStore) Exclusive(ctx context.Context, fn func(ctx context.Context) error, names ...string) error {
	return s.locks.exclusive(ctx, fn, names...)
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

type fileCollection struct {
	store *FileStore
	name  string
	lock  interface {
		Lock()
		Unlock()
	}
}

func (c *fileCollection) Name() string { return c.name }

func (c *fileCollection) Read(ctx context.Context) ([]Document, error) {
	raw, err := os.ReadFile(c.store.path(c.name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Document{}, nil
		}
		return nil, fmt.Errorf("read collection %s: %w", c.name, err)
	}
	var docs []Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("decode collection %s: %w", c.name, err)
	}
	return docs, nil
}

func (c *fileCollection) Write(ctx context.Context, docs []Document) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.writeLocked(docs)
}

func (c *fileCollection) Update(ctx context.Context, fn func(docs []Document) ([]Document, error)) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	docs, err := c.Read(ctx)
	if err != nil {
		return err
	}
	updated, err := fn(docs)
	if err != nil {
		return err
	}
	return c.writeLocked(updated)
}

func (c *fileCollection) writeLocked(docs []Document) error {
	if docs == nil {
		docs = []Document{}
	}
	raw, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", c.name, err)
	}
	tmp, err := os.CreateTemp(c.store.dir, c.name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("write collection %s: %w", c.name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write collection %s: %w", c.name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write collection %s: %w", c.name, err)
	}
	if err := os.Rename(tmpName, c.store.path(c.name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace collection %s: %w", c.name, err)
	}
	return nil
}
