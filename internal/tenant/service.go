package tenant

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"avinilabs/internal/audit"
	dErrors "avinilabs/pkg/domain-errors"
	"avinilabs/pkg/platform/sentinel"
	"avinilabs/pkg/requestcontext"
)

// Service orchestrates the franchise directory.
type Service struct {
	store          *Store
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

func NewService(store *Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default(), auditPublisher: audit.NopPublisher{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new franchise. Site codes are normalized to uppercase
// and must be unique among active tenants.
func (s *Service) Create(ctx context.Context, t Tenant) (*Tenant, error) {
	t.Name = strings.TrimSpace(t.Name)
	t.SiteCode = strings.ToUpper(strings.TrimSpace(t.SiteCode))
	t.IsActive = true
	now := requestcontext.Now(ctx)
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := t.Validate(); err != nil {
		return nil, err
	}
	for _, moduleID := range t.ModulePermissions {
		ok, err := s.store.ModuleExists(ctx, moduleID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check module")
		}
		if !ok {
			return nil, dErrors.Newf(dErrors.CodeValidation, "module %d does not exist", moduleID)
		}
	}

	if err := s.store.CreateIfSiteCodeAvailable(ctx, &t); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "site_code is already in use by an active tenant")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create tenant")
	}

	s.emit(ctx, audit.EventTenantCreated, t.ID, true)
	return &t, nil
}

// Update patches mutable tenant fields. The site code of an existing tenant
// may change, but never into a code another active tenant holds.
func (s *Service) Update(ctx context.Context, id int, patch Tenant) (*Tenant, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != "" {
		existing.Name = strings.TrimSpace(patch.Name)
	}
	if patch.SiteCode != "" {
		code := strings.ToUpper(strings.TrimSpace(patch.SiteCode))
		if code != existing.SiteCode {
			if err := s.ensureSiteCodeFree(ctx, code, id); err != nil {
				return nil, err
			}
			existing.SiteCode = code
		}
	}
	existing.IsHub = patch.IsHub
	existing.IsActive = patch.IsActive
	existing.UseSiteCodePrefix = patch.UseSiteCodePrefix
	if patch.ModulePermissions != nil {
		for _, moduleID := range patch.ModulePermissions {
			ok, err := s.store.ModuleExists(ctx, moduleID)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check module")
			}
			if !ok {
				return nil, dErrors.Newf(dErrors.CodeValidation, "module %d does not exist", moduleID)
			}
		}
		existing.ModulePermissions = patch.ModulePermissions
	}
	if patch.Address != "" {
		existing.Address = patch.Address
	}
	if patch.Phone != "" {
		existing.Phone = patch.Phone
	}
	existing.UpdatedAt = requestcontext.Now(ctx)

	if err := existing.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, existing); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update tenant")
	}
	s.emit(ctx, audit.EventTenantUpdated, id, true)
	return existing, nil
}

// Get returns one tenant.
func (s *Service) Get(ctx context.Context, id int) (*Tenant, error) {
	t, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "tenant not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load tenant")
	}
	return t, nil
}

// List returns tenants, optionally only active ones.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]Tenant, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tenants")
	}
	if !activeOnly {
		return all, nil
	}
	active := make([]Tenant, 0, len(all))
	for _, t := range all {
		if t.IsActive {
			active = append(active, t)
		}
	}
	return active, nil
}

// ListModules returns the module catalog.
func (s *Service) ListModules(ctx context.Context) ([]Module, error) {
	modules, err := s.store.ListModules(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list modules")
	}
	return modules, nil
}

func (s *Service) ensureSiteCodeFree(ctx context.Context, code string, exceptID int) error {
	all, err := s.store.List(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tenants")
	}
	for _, other := range all {
		if other.ID != exceptID && other.IsActive && strings.EqualFold(other.SiteCode, code) {
			return dErrors.New(dErrors.CodeConflict, "site_code is already in use by an active tenant")
		}
	}
	return nil
}

func (s *Service) emit(ctx context.Context, eventType string, tenantID int, success bool) {
	user := requestcontext.User(ctx)
	_ = s.auditPublisher.Emit(ctx, audit.Entry{
		EventType: eventType,
		Severity:  audit.SeverityInfo,
		UserID:    user.ID,
		TenantID:  tenantID,
		Success:   success,
	})
}
