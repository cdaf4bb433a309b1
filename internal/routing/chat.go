package routing

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"avinilabs/internal/access"
	"avinilabs/internal/audit"
	"avinilabs/internal/platform/crypt"
	"avinilabs/internal/user"
	dErrors "avinilabs/pkg/domain-errors"
	"avinilabs/pkg/platform/sentinel"
	"avinilabs/pkg/requestcontext"
)

const maxFileSize = 10 << 20 // 10 MiB

var allowedExtensions = map[string]struct{}{
	".pdf": {}, ".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {},
	".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".csv": {}, ".txt": {},
}

// Message is a decrypted chat message as returned to a caller. The persisted
// form only ever holds ciphertext.
type Message struct {
	ID          string `json:"id"`
	RoutingID   int    `json:"routing_id"`
	SenderID    int    `json:"sender_id"`
	RecipientID int    `json:"recipient_id"`
	Content     string `json:"content"`
	IsRead      bool   `json:"is_read"`
	CreatedAt   string `json:"created_at"`
}

// FileDownload is a decrypted attachment ready to stream.
type FileDownload struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ChatService is the encrypted two-party channel attached to each routing.
// Each payload is sealed for one recipient, chosen as the first active user
// in the counterpart franchise.
type ChatService struct {
	store          *Store
	routings       *Service
	users          *user.Store
	encryptor      crypt.Encryptor
	logger         *slog.Logger
	auditPublisher audit.Publisher
}

func NewChatService(store *Store, routings *Service, users *user.Store, encryptor crypt.Encryptor, opts ...Option) *ChatService {
	c := &ChatService{
		store:          store,
		routings:       routings,
		users:          users,
		encryptor:      encryptor,
		logger:         slog.Default(),
		auditPublisher: audit.NopPublisher{},
	}
	cfg := options{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger != nil {
		c.logger = cfg.logger
	}
	if cfg.auditPublisher != nil {
		c.auditPublisher = cfg.auditPublisher
	}
	return c
}

// Post seals a message for the counterpart franchise's recipient and
// persists the ciphertext. The returned Message echoes the plaintext to the
// sender; the plaintext itself is never stored.
func (c *ChatService) Post(ctx context.Context, routingID int, content string) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "message content is required")
	}
	r, err := c.routingForParticipant(ctx, routingID)
	if err != nil {
		return nil, err
	}
	sender := requestcontext.User(ctx)
	recipient, err := c.recipientFor(ctx, r, sender.TenantID)
	if err != nil {
		return nil, err
	}

	sealed, err := c.encryptor.Seal(sender.ID, recipient.ID, []byte(content))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encrypt message")
	}
	now := requestcontext.Now(ctx)
	msg := &RoutingMessage{
		ID:               uuid.NewString(),
		RoutingID:        r.ID,
		SenderID:         sender.ID,
		RecipientID:      recipient.ID,
		EncryptedContent: sealed,
		IsEncrypted:      true,
		MessageType:      "text",
		CreatedAt:        now,
	}
	if err := c.store.AppendMessage(ctx, msg); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store message")
	}
	c.emit(ctx, audit.EventMessageSent, sender.TenantID, true)
	return &Message{
		ID:          msg.ID,
		RoutingID:   msg.RoutingID,
		SenderID:    msg.SenderID,
		RecipientID: msg.RecipientID,
		Content:     content,
		CreatedAt:   msg.CreatedAt.Format(messageTimeLayout),
	}, nil
}

// List decrypts the routing's messages for the caller. Messages the caller
// is not a party to are skipped with a warning rather than failing the
// whole fetch.
func (c *ChatService) List(ctx context.Context, routingID int) ([]Message, error) {
	if _, err := c.routingForParticipant(ctx, routingID); err != nil {
		return nil, err
	}
	caller := requestcontext.User(ctx)
	stored, err := c.store.Messages(ctx, routingID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load messages")
	}

	out := make([]Message, 0, len(stored))
	for _, m := range stored {
		plaintext, err := c.encryptor.Open(m.SenderID, m.RecipientID, m.EncryptedContent)
		if err != nil {
			c.logger.Warn("skipping undecryptable message", "message_id", m.ID, "routing_id", routingID, "user_id", caller.ID)
			continue
		}
		out = append(out, Message{
			ID:          m.ID,
			RoutingID:   m.RoutingID,
			SenderID:    m.SenderID,
			RecipientID: m.RecipientID,
			Content:     string(plaintext),
			IsRead:      m.IsRead,
			CreatedAt:   m.CreatedAt.Format(messageTimeLayout),
		})
	}
	return out, nil
}

// MarkRead flags a message read. Only the recipient may do so; repeated
// calls are harmless.
func (c *ChatService) MarkRead(ctx context.Context, messageID string) error {
	caller := requestcontext.User(ctx)
	now := requestcontext.Now(ctx)
	_, err := c.store.MarkMessageRead(ctx, messageID, func(m *RoutingMessage) error {
		if m.RecipientID != caller.ID {
			return sentinel.ErrInvalidState
		}
		if !m.IsRead {
			m.IsRead = true
			m.ReadAt = &now
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "message not found")
		}
		if errors.Is(err, sentinel.ErrInvalidState) {
			return dErrors.New(dErrors.CodeAccessDenied, "only the recipient may mark a message read")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark message read")
	}
	return nil
}

// Upload seals an attachment for the counterpart franchise's recipient.
func (c *ChatService) Upload(ctx context.Context, routingID int, filename, contentType string, content []byte) (*RoutingFile, error) {
	if len(content) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "file content is required")
	}
	if len(content) > maxFileSize {
		return nil, dErrors.Newf(dErrors.CodeValidation, "file exceeds the %d MiB limit", maxFileSize>>20)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return nil, dErrors.Newf(dErrors.CodeValidation, "file type %q is not allowed", ext)
	}
	r, err := c.routingForParticipant(ctx, routingID)
	if err != nil {
		return nil, err
	}
	sender := requestcontext.User(ctx)
	recipient, err := c.recipientFor(ctx, r, sender.TenantID)
	if err != nil {
		return nil, err
	}

	sealed, err := c.encryptor.Seal(sender.ID, recipient.ID, content)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encrypt file")
	}
	file := &RoutingFile{
		ID:               uuid.NewString(),
		RoutingID:        r.ID,
		Filename:         filepath.Base(filename),
		ContentType:      contentType,
		FileSize:         len(content),
		UploadedBy:       sender.ID,
		RecipientID:      recipient.ID,
		EncryptedContent: sealed,
		CreatedAt:        requestcontext.Now(ctx),
	}
	if err := c.store.AppendFile(ctx, file); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store file")
	}
	c.emit(ctx, audit.EventFileUploaded, sender.TenantID, true)

	echo := *file
	echo.EncryptedContent = ""
	return &echo, nil
}

// Files lists the routing's attachments without their payloads.
func (c *ChatService) Files(ctx context.Context, routingID int) ([]RoutingFile, error) {
	if _, err := c.routingForParticipant(ctx, routingID); err != nil {
		return nil, err
	}
	files, err := c.store.Files(ctx, routingID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load files")
	}
	for i := range files {
		files[i].EncryptedContent = ""
	}
	return files, nil
}

// Download decrypts an attachment for a party to it.
func (c *ChatService) Download(ctx context.Context, fileID string) (*FileDownload, error) {
	file, err := c.store.FindFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "file not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load file")
	}
	if _, err := c.routingForParticipant(ctx, file.RoutingID); err != nil {
		return nil, err
	}
	content, err := c.encryptor.Open(file.UploadedBy, file.RecipientID, file.EncryptedContent)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decrypt file")
	}
	return &FileDownload{
		Filename:    file.Filename,
		ContentType: file.ContentType,
		Content:     content,
	}, nil
}

// Delete removes an attachment. Permitted to the uploader or an admin.
func (c *ChatService) Delete(ctx context.Context, fileID string) error {
	file, err := c.store.FindFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "file not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load file")
	}
	caller := requestcontext.User(ctx)
	if caller.Role != access.RoleAdmin && caller.ID != file.UploadedBy {
		return dErrors.New(dErrors.CodeAccessDenied, "only the uploader may delete a file")
	}
	if err := c.store.DeleteFile(ctx, fileID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete file")
	}
	c.emit(ctx, audit.EventFileDeleted, caller.TenantID, true)
	return nil
}

// routingForParticipant loads the routing and requires the caller to sit on
// one of its two sides.
func (c *ChatService) routingForParticipant(ctx context.Context, routingID int) (*SampleRouting, error) {
	r, err := c.routings.store.FindByID(ctx, routingID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "routing not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load routing")
	}
	if err := requireParticipant(ctx, r.FromTenantID, r.ToTenantID); err != nil {
		return nil, err
	}
	return r, nil
}

// recipientFor picks the addressee: the first active user of whichever
// franchise the sender is not in. A placeholder addressing scheme until
// per-user threads exist.
func (c *ChatService) recipientFor(ctx context.Context, r *SampleRouting, senderTenantID int) (*user.User, error) {
	counterpart := r.ToTenantID
	if senderTenantID == r.ToTenantID {
		counterpart = r.FromTenantID
	}
	recipient, err := c.users.FirstActiveInTenant(ctx, counterpart)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeInvalidState, "franchise %d has no active user to receive the message", counterpart)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve recipient")
	}
	return recipient, nil
}

func (c *ChatService) emit(ctx context.Context, eventType string, tenantID int, success bool) {
	caller := requestcontext.User(ctx)
	severity := audit.SeverityInfo
	if !success {
		severity = audit.SeverityWarning
	}
	_ = c.auditPublisher.Emit(ctx, audit.Entry{
		EventType: eventType,
		Severity:  severity,
		UserID:    caller.ID,
		TenantID:  tenantID,
		Success:   success,
	})
}

const messageTimeLayout = "2006-01-02T15:04:05Z07:00"
