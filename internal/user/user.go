// Package user holds the user directory and the minimal login surface the
// backend needs to issue bearer tokens. Password policy, reset flows and the
// rest of identity management stay out of the core.
package user

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"avinilabs/internal/audit"
	"avinilabs/internal/jsonstore"
	dErrors "avinilabs/pkg/domain-errors"
	"avinilabs/pkg/platform/sentinel"
	"avinilabs/pkg/requestcontext"
)

// Collection is the logical collection name for users.
const Collection = "users"

// User is an operator account scoped to one franchise.
type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash,omitempty"`
	FullName     string    `json:"full_name,omitempty"`
	Role         string    `json:"role"`
	TenantID     int       `json:"tenant_id"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store is the collection-backed user store.
type Store struct {
	users jsonstore.Collection
}

func NewStore(store jsonstore.Store) *Store {
	return &Store{users: store.Collection(Collection)}
}

func (s *Store) List(ctx context.Context) ([]User, error) {
	docs, err := s.users.Read(ctx)
	if err != nil {
		return nil, err
	}
	return jsonstore.Decode[User](docs)
}

func (s *Store) FindByID(ctx context.Context, id int) (*User, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*User, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if strings.EqualFold(all[i].Username, username) {
			return &all[i], nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// FirstActiveInTenant returns the first active user belonging to a tenant.
// The routing chat channel uses this as its recipient-addressing placeholder.
func (s *Store) FirstActiveInTenant(ctx context.Context, tenantID int) (*User, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].TenantID == tenantID && all[i].IsActive {
			return &all[i], nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// Create appends a user with a bcrypt password hash.
func (s *Store) Create(ctx context.Context, u *User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return s.users.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		u.ID = jsonstore.NextID(docs)
		doc, err := jsonstore.EncodeOne(*u)
		if err != nil {
			return nil, err
		}
		return append(docs, doc), nil
	})
}

// TokenIssuer abstracts the JWT service for the login path.
type TokenIssuer interface {
	Generate(user requestcontext.AuthUser) (string, error)
}

// Service is the login service.
type Service struct {
	store          *Store
	tokens         TokenIssuer
	logger         *slog.Logger
	auditPublisher audit.Publisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func NewService(store *Store, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{store: store, tokens: tokens, logger: slog.Default(), auditPublisher: audit.NopPublisher{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login verifies credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", nil, dErrors.New(dErrors.CodeValidation, "username and password are required")
	}

	u, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return "", nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if !u.IsActive {
		return "", nil, dErrors.New(dErrors.CodeUnauthorized, "account is disabled")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.emitLogin(ctx, u, false)
		return "", nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}

	token, err := s.tokens.Generate(requestcontext.AuthUser{
		ID:       u.ID,
		Username: u.Username,
		Role:     u.Role,
		TenantID: u.TenantID,
	})
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}

	s.emitLogin(ctx, u, true)
	sanitized := *u
	sanitized.PasswordHash = ""
	return token, &sanitized, nil
}

func (s *Service) emitLogin(ctx context.Context, u *User, success bool) {
	_ = s.auditPublisher.Emit(ctx, audit.Entry{
		EventType: audit.EventUserLogin,
		Severity:  audit.SeverityInfo,
		UserID:    u.ID,
		TenantID:  u.TenantID,
		Success:   success,
	})
}
