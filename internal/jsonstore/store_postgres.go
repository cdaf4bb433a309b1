package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps each collection as a single jsonb array in a
// collections table, preserving the whole-collection read/write contract so
// the file backend can be swapped out without touching services.
type PostgresStore struct {
	pool  *pgxpool.Pool
	locks *lockTable
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS collections (
    name TEXT PRIMARY KEY,
    docs JSONB NOT NULL DEFAULT '[]'::jsonb,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// NewPostgresStore connects, ensures the schema, and returns the store.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure collections table: %w", err)
	}
	return &PostgresStore{pool: pool, locks: newLockTable()}, nil
}

func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) Collection(name string) Collection {
	return &postgresCollection{store: s, name: name}
}

func (s *PostgresStore) Exclusive(ctx context.Context, fn func(ctx context.Context) error, names ...string) error {
	return s.locks.exclusive(ctx, fn, names...)
}

type postgresCollection struct {
	store *PostgresStore
	name  string
}

func (c *postgresCollection) Name() string { return c.name }

func (c *postgresCollection) Read(ctx context.Context) ([]Document, error) {
	var raw []byte
	err := c.store.pool.QueryRow(ctx,
		`SELECT docs FROM collections WHERE name = $1`, c.name).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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

func (c *postgresCollection) Write(ctx context.Context, docs []Document) error {
	lock := c.store.locks.ForName(c.name)
	lock.Lock()
	defer lock.Unlock()
	return c.writeLocked(ctx, docs)
}

func (c *postgresCollection) Update(ctx context.Context, fn func(docs []Document) ([]Document, error)) error {
	lock := c.store.locks.ForName(c.name)
	lock.Lock()
	defer lock.Unlock()
	docs, err := c.Read(ctx)
	if err != nil {
		return err
	}
	updated, err := fn(docs)
	if err != nil {
		return err
	}
	return c.writeLocked(ctx, updated)
}

func (c *postgresCollection) writeLocked(ctx context.Context, docs []Document) error {
	if docs == nil {
		docs = []Document{}
	}
	raw, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", c.name, err)
	}
	_, err = c.store.pool.Exec(ctx, `
		INSERT INTO collections (name, docs, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET docs = EXCLUDED.docs, updated_at = now()`,
		c.name, raw)
	if err != nil {
		return fmt.Errorf("write collection %s: %w", c.name, err)
	}
	return nil
}
