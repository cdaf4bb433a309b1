package jsonstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
)

type FileStoreSuite struct {
	suite.Suite
	store *FileStore
	dir   string
	ctx   context.Context
}

func TestFileStoreSuite(t *testing.T) {
	suite.Run(t, new(FileStoreSuite))
}

func (s *FileStoreSuite) SetupTest() {
	s.dir = s.T().TempDir()
	store, err := NewFileStore(s.dir)
	s.Require().NoError(err)
	s.store = store
	s.ctx = context.Background()
}

func (s *FileStoreSuite) TestReadMissingCollectionIsEmpty() {
	docs, err := s.store.Collection("billings").Read(s.ctx)
	s.Require().NoError(err)
	s.Empty(docs)
}

func (s *FileStoreSuite) TestWriteThenRead() {
	col := s.store.Collection("billings")
	s.Require().NoError(col.Write(s.ctx, []Document{
		{"id": 1, "sid_number": "MYD001"},
		{"id": 2, "sid_number": "MYD002"},
	}))

	docs, err := col.Read(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(docs, 2)
	s.Equal("MYD001", docs[0]["sid_number"])

	// On-disk layout is a top-level JSON array.
	raw, err := os.ReadFile(filepath.Join(s.dir, "billings.json"))
	s.Require().NoError(err)
	var arr []map[string]any
	s.Require().NoError(json.Unmarshal(raw, &arr))
	s.Len(arr, 2)
}

func (s *FileStoreSuite) TestWriteReplacesWholeCollection() {
	col := s.store.Collection("tenants")
	s.Require().NoError(col.Write(s.ctx, []Document{{"id": 1}, {"id": 2}}))
	s.Require().NoError(col.Write(s.ctx, []Document{{"id": 3}}))

	docs, err := col.Read(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(docs, 1)
}

func (s *FileStoreSuite) TestUpdateHoldsLockAcrossReadModifyWrite() {
	col := s.store.Collection("counters")
	s.Require().NoError(col.Write(s.ctx, []Document{}))

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := col.Update(s.ctx, func(docs []Document) ([]Document, error) {
				return append(docs, Document{"id": NextID(docs)}), nil
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	docs, err := col.Read(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(docs, 20)

	seen := make(map[int]bool)
	for _, d := range docs {
		id, ok := asInt(d["id"])
		s.Require().True(ok)
		s.False(seen[id], "duplicate id %d handed out under concurrency", id)
		seen[id] = true
	}
}

func (s *FileStoreSuite) TestUpdateErrorLeavesCollectionUntouched() {
	col := s.store.Collection("billings")
	s.Require().NoError(col.Write(s.ctx, []Document{{"id": 1}}))

	err := col.Update(s.ctx, func(docs []Document) ([]Document, error) {
		return nil, os.ErrInvalid
	})
	s.Require().Error(err)

	docs, err := col.Read(s.ctx)
	s.Require().NoError(err)
	s.Len(docs, 1)
}

func (s *FileStoreSuite) TestExclusiveSerializesAgainstWriters() {
	done := make(chan struct{})
	err := s.store.Exclusive(s.ctx, func(ctx context.Context) error {
		go func() {
			// Writer must block until Exclusive releases the lock.
			_ = s.store.Collection("billings").Write(context.Background(), []Document{{"id": 9}})
			close(done)
		}()
		select {
		case <-done:
			s.Fail("write completed while exclusive section held the lock")
		default:
		}
		return nil
	}, "billings", "billing_reports")
	s.Require().NoError(err)
	<-done
}

func TestNextID(t *testing.T) {
	if got := NextID(nil); got != 1 {
		t.Fatalf("empty collection should start at 1, got %d", got)
	}
	docs := []Document{{"id": float64(3)}, {"id": 7}, {"name": "no id"}}
	if got := NextID(docs); got != 8 {
		t.Fatalf("expected 8, got %d", got)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	type billing struct {
		ID        int     `json:"id"`
		SIDNumber string  `json:"sid_number"`
		Total     float64 `json:"total_amount"`
	}
	docs, err := Encode([]billing{{ID: 4, SIDNumber: "TNJ017", Total: 944}})
	if err != nil {
		t.Fatal(err)
	}
	out, err := Decode[billing](docs)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].SIDNumber != "TNJ017" || out[0].Total != 944 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}
