//go:build integration

package jsonstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"avinilabs/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
	ctx   context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	store, err := NewPostgresStore(s.ctx, s.pg.URL)
	s.Require().NoError(err)
	s.store = store
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.store != nil {
		s.store.Close()
	}
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.pg.Pool.Exec(s.ctx, `TRUNCATE collections`)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestWholeCollectionContract() {
	col := s.store.Collection("billings")

	docs, err := col.Read(s.ctx)
	s.Require().NoError(err)
	s.Empty(docs)

	s.Require().NoError(col.Write(s.ctx, []Document{{"id": 1, "sid_number": "MYD001"}}))
	s.Require().NoError(col.Write(s.ctx, []Document{{"id": 2}, {"id": 3}}))

	docs, err = col.Read(s.ctx)
	s.Require().NoError(err)
	s.Len(docs, 2)
}

func (s *PostgresStoreSuite) TestUpdateAppends() {
	col := s.store.Collection("billing_reports")
	for range 5 {
		err := col.Update(s.ctx, func(docs []Document) ([]Document, error) {
			return append(docs, Document{"id": NextID(docs)}), nil
		})
		s.Require().NoError(err)
	}
	docs, err := col.Read(s.ctx)
	s.Require().NoError(err)
	s.Len(docs, 5)
}
