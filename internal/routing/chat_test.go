package routing

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"avinilabs/internal/access"
	"avinilabs/internal/jsonstore"
	"avinilabs/internal/platform/crypt"
	"avinilabs/internal/tenant"
	"avinilabs/internal/user"
	dErrors "avinilabs/pkg/domain-errors"
	"avinilabs/pkg/requestcontext"
)

type ChatServiceSuite struct {
	suite.Suite
	backing *jsonstore.MemoryStore
	chat    *ChatService
	routing *SampleRouting
}

func TestChatServiceSuite(t *testing.T) {
	suite.Run(t, new(ChatServiceSuite))
}

func (s *ChatServiceSuite) SetupTest() {
	s.backing = jsonstore.NewMemoryStore()
	s.backing.Seed(tenant.Collection, []jsonstore.Document{
		{"id": 3, "name": "Thanjavur", "site_code": "TNJ", "is_active": true,
			"use_site_code_prefix": true, "module_permissions": []any{1, 2, 3}},
		{"id": 4, "name": "Kumbakonam", "site_code": "KMB", "is_active": true,
			"use_site_code_prefix": true, "module_permissions": []any{1, 2, 3}},
		{"id": 5, "name": "Madurai", "site_code": "MDU", "is_active": true,
			"use_site_code_prefix": true, "module_permissions": []any{1, 2, 3}},
	})
	s.backing.Seed(user.Collection, []jsonstore.Document{
		{"id": 21, "username": "priya", "role": access.RoleFranchiseAdmin, "tenant_id": 3, "is_active": true},
		{"id": 31, "username": "arun", "role": access.RoleFranchiseAdmin, "tenant_id": 4, "is_active": true},
		{"id": 77, "username": "mala", "role": access.RoleFranchiseAdmin, "tenant_id": 5, "is_active": true},
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := NewStore(s.backing)
	users := user.NewStore(s.backing)
	evaluator := access.NewEvaluator(tenant.NewStore(s.backing))
	routings := NewService(store, users, evaluator, NewInvoiceCoordinator(store, WithLogger(logger)), WithLogger(logger))
	s.chat = NewChatService(store, routings, users, crypt.NewPairBox("test-master-secret"), WithLogger(logger))

	created, err := routings.Create(s.asUser(21, 3), SampleRouting{
		SampleID: 5, FromTenantID: 3, ToTenantID: 4, Reason: "No CBC analyzer on site",
	})
	s.Require().NoError(err)
	s.routing = created
}

func (s *ChatServiceSuite) asUser(id, tenantID int) context.Context {
	ctx := requestcontext.WithUser(context.Background(), requestcontext.AuthUser{
		ID: id, Username: "someone", Role: access.RoleFranchiseAdmin, TenantID: tenantID,
	})
	return requestcontext.WithTime(ctx, time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC))
}

func (s *ChatServiceSuite) TestMessageRoundTrip() {
	posted, err := s.chat.Post(s.asUser(21, 3), s.routing.ID, "Sample leaves with the 3pm courier.")
	s.Require().NoError(err)
	s.Equal("Sample leaves with the 3pm courier.", posted.Content)
	s.Equal(31, posted.RecipientID)

	// Plaintext must not be in the persisted document.
	stored, err := NewStore(s.backing).Messages(context.Background(), s.routing.ID)
	s.Require().NoError(err)
	s.Require().Len(stored, 1)
	s.True(stored[0].IsEncrypted)
	s.NotContains(stored[0].EncryptedContent, "courier")

	// Both parties read the thread.
	for _, view := range []context.Context{s.asUser(21, 3), s.asUser(31, 4)} {
		listed, err := s.chat.List(view, s.routing.ID)
		s.Require().NoError(err)
		s.Require().Len(listed, 1)
		s.Equal("Sample leaves with the 3pm courier.", listed[0].Content)
	}
}

func (s *ChatServiceSuite) TestEmptyMessageRejected() {
	_, err := s.chat.Post(s.asUser(21, 3), s.routing.ID, "   ")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ChatServiceSuite) TestNonParticipantDenied() {
	outsider := s.asUser(77, 5)
	_, err := s.chat.Post(outsider, s.routing.ID, "let me in")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAccessDenied))

	_, err = s.chat.List(outsider, s.routing.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAccessDenied))
}

func (s *ChatServiceSuite) TestUndecryptableMessageSkipped() {
	_, err := s.chat.Post(s.asUser(21, 3), s.routing.ID, "readable")
	s.Require().NoError(err)

	// A message sealed under a different master secret cannot be opened.
	foreign := crypt.NewPairBox("other-secret")
	sealed, err := foreign.Seal(21, 31, []byte("garbled"))
	s.Require().NoError(err)
	s.Require().NoError(NewStore(s.backing).AppendMessage(context.Background(), &RoutingMessage{
		ID: "broken", RoutingID: s.routing.ID, SenderID: 21, RecipientID: 31,
		EncryptedContent: sealed, IsEncrypted: true,
	}))

	listed, err := s.chat.List(s.asUser(31, 4), s.routing.ID)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal("readable", listed[0].Content)
}

func (s *ChatServiceSuite) TestMarkReadRecipientOnly() {
	posted, err := s.chat.Post(s.asUser(21, 3), s.routing.ID, "please confirm receipt")
	s.Require().NoError(err)

	// The sender cannot mark their own message read.
	err = s.chat.MarkRead(s.asUser(21, 3), posted.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAccessDenied))

	s.Require().NoError(s.chat.MarkRead(s.asUser(31, 4), posted.ID))
	// Idempotent.
	s.Require().NoError(s.chat.MarkRead(s.asUser(31, 4), posted.ID))

	listed, err := s.chat.List(s.asUser(31, 4), s.routing.ID)
	s.Require().NoError(err)
	s.True(listed[0].IsRead)
}

func (s *ChatServiceSuite) TestFileRoundTrip() {
	content := []byte("%PDF-1.4 fake report body")
	uploaded, err := s.chat.Upload(s.asUser(21, 3), s.routing.ID, "report.pdf", "application/pdf", content)
	s.Require().NoError(err)
	s.Equal("report.pdf", uploaded.Filename)
	s.Equal(len(content), uploaded.FileSize)
	s.Empty(uploaded.EncryptedContent)

	download, err := s.chat.Download(s.asUser(31, 4), uploaded.ID)
	s.Require().NoError(err)
	s.Equal("report.pdf", download.Filename)
	s.Equal("application/pdf", download.ContentType)
	s.True(bytes.Equal(content, download.Content))
}

func (s *ChatServiceSuite) TestFileSizeCap() {
	tooBig := make([]byte, maxFileSize+1)
	_, err := s.chat.Upload(s.asUser(21, 3), s.routing.ID, "huge.pdf", "application/pdf", tooBig)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ChatServiceSuite) TestFileExtensionWhitelist() {
	_, err := s.chat.Upload(s.asUser(21, 3), s.routing.ID, "payload.exe", "application/octet-stream", []byte{0x4d, 0x5a})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ChatServiceSuite) TestFileDeleteUploaderOrAdmin() {
	uploaded, err := s.chat.Upload(s.asUser(21, 3), s.routing.ID, "report.pdf", "application/pdf", []byte("x"))
	s.Require().NoError(err)

	err = s.chat.Delete(s.asUser(31, 4), uploaded.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAccessDenied))

	admin := requestcontext.WithUser(context.Background(), requestcontext.AuthUser{
		ID: 99, Role: access.RoleAdmin, TenantID: 1,
	})
	s.Require().NoError(s.chat.Delete(admin, uploaded.ID))
}
