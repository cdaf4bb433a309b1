package audit

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"avinilabs/internal/jsonstore"
)

type AuditStoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func TestAuditStoreSuite(t *testing.T) {
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupTest() {
	s.store = NewStore(jsonstore.NewMemoryStore())
	s.ctx = context.Background()
}

func (s *AuditStoreSuite) TestAppendAndRecent() {
	for i := range 3 {
		err := s.store.Append(s.ctx, Entry{
			Timestamp: time.Date(2026, 1, 1, 0, i, 0, 0, time.UTC),
			EventType: EventBillingCreated,
			Severity:  SeverityInfo,
			UserID:    4,
			TenantID:  2,
			Success:   true,
		})
		s.Require().NoError(err)
	}

	entries, err := s.store.Recent(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	// Newest first.
	s.Equal(3, entries[0].ID)
	s.Equal(2, entries[1].ID)
	s.True(entries[0].Success)
}

func (s *AuditStoreSuite) TestRingTruncationKeepsNewest() {
	backing := jsonstore.NewMemoryStore()
	docs := make([]jsonstore.Document, 0, AuditRetention)
	for i := 1; i <= AuditRetention; i++ {
		docs = append(docs, jsonstore.Document{"id": i, "event_type": EventRoutingCreated})
	}
	backing.Seed(AuditCollection, docs)
	store := NewStore(backing)

	s.Require().NoError(store.Append(s.ctx, Entry{EventType: EventRoutingTransition}))

	all, err := store.Recent(s.ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(all, AuditRetention)
	s.Equal(EventRoutingTransition, all[0].EventType)
	// The oldest entry fell off the ring.
	s.Equal(2, all[len(all)-1].ID)
}

func (s *AuditStoreSuite) TestErrorLogCap() {
	backing := jsonstore.NewMemoryStore()
	docs := make([]jsonstore.Document, 0, ErrorRetention)
	for i := 1; i <= ErrorRetention; i++ {
		docs = append(docs, jsonstore.Document{"id": i, "error_type": "infrastructure"})
	}
	backing.Seed(ErrorCollection, docs)
	store := NewStore(backing)

	s.Require().NoError(store.AppendError(s.ctx, ErrorEntry{ErrorType: "notification_failure"}))

	raw, err := backing.Collection(ErrorCollection).Read(s.ctx)
	s.Require().NoError(err)
	s.Len(raw, ErrorRetention)
}

func TestWorkerPersistsPublishedEntries(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	store := NewStore(jsonstore.NewMemoryStore())
	pub := NewChannelPublisher(8, logger)
	worker := NewWorker(store, pub, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	if err := pub.Emit(ctx, Entry{EventType: EventReportGeneration, Success: true}); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		entries, err := store.Recent(context.Background(), 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("worker did not persist the entry in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done
}
