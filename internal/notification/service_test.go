package notification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"avinilabs/internal/jsonstore"
	dErrors "avinilabs/pkg/domain-errors"
	"avinilabs/pkg/requestcontext"
)

type failingQueue struct{}

func (failingQueue) Publish(context.Context, Notification) error {
	return errors.New("broker down")
}

type NotificationSuite struct {
	suite.Suite
	store   *Store
	service *Service
}

func TestNotificationSuite(t *testing.T) {
	suite.Run(t, new(NotificationSuite))
}

func (s *NotificationSuite) SetupTest() {
	s.store = NewStore(jsonstore.NewMemoryStore())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = NewService(s.store, WithLogger(logger))
}

func (s *NotificationSuite) asUser(id int) context.Context {
	ctx := requestcontext.WithUser(context.Background(), requestcontext.AuthUser{ID: id})
	return requestcontext.WithTime(ctx, time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
}

func (s *NotificationSuite) TestSendAndList() {
	ctx := s.asUser(7)
	err := s.service.Send(ctx, Notification{
		Type: "routing_created", Title: "New routing", Message: "Sample inbound",
		RecipientID: 7, SenderID: 2, RoutingID: 11,
	})
	s.Require().NoError(err)
	err = s.service.Send(ctx, Notification{
		Type: "routing_approved", Title: "Approved", RecipientID: 7,
	})
	s.Require().NoError(err)

	list, err := s.service.ListForUser(ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	// Newest first.
	s.Equal("routing_approved", list[0].Type)
	s.NotEmpty(list[0].ID)
	s.Equal(PriorityMedium, list[0].Priority)

	// Other users see nothing.
	other, err := s.service.ListForUser(s.asUser(8))
	s.Require().NoError(err)
	s.Empty(other)
}

func (s *NotificationSuite) TestSendRequiresRecipient() {
	err := s.service.Send(s.asUser(7), Notification{Title: "orphan"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *NotificationSuite) TestQueueFailureDoesNotFailSend() {
	service := NewService(s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithQueue(failingQueue{}))

	err := service.Send(s.asUser(7), Notification{RecipientID: 7, Title: "still delivered"})
	s.Require().NoError(err)

	list, err := service.ListForUser(s.asUser(7))
	s.Require().NoError(err)
	s.Len(list, 1)
}

func (s *NotificationSuite) TestMarkReadIsIdempotentAndRecipientOnly() {
	ctx := s.asUser(7)
	s.Require().NoError(s.service.Send(ctx, Notification{RecipientID: 7, Title: "hello"}))
	list, err := s.service.ListForUser(ctx)
	s.Require().NoError(err)
	id := list[0].ID

	read, err := s.service.MarkRead(ctx, id)
	s.Require().NoError(err)
	s.True(read.IsRead)
	s.Require().NotNil(read.ReadAt)
	firstReadAt := *read.ReadAt

	// Second call succeeds and keeps the original read time.
	again, err := s.service.MarkRead(ctx, id)
	s.Require().NoError(err)
	s.True(again.IsRead)
	s.Equal(firstReadAt, *again.ReadAt)

	// A non-recipient may not mark it.
	_, err = s.service.MarkRead(s.asUser(8), id)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAccessDenied))

	_, err = s.service.MarkRead(ctx, "missing-id")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
