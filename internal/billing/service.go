package billing

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"avinilabs/internal/access"
	"avinilabs/internal/audit"
	"avinilabs/internal/platform/metrics"
	"avinilabs/internal/sid"
	dErrors "avinilabs/pkg/domain-errors"
	"avinilabs/pkg/platform/sentinel"
	"avinilabs/pkg/requestcontext"
)

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	PatientID int
	Status    string
	StartDate string // inclusive, YYYY-MM-DD
	EndDate   string // inclusive, YYYY-MM-DD
	Limit     int
	Offset    int
}

const defaultListLimit = 50

// Service orchestrates billing creation, listing and payment collection.
type Service struct {
	store          *Store
	allocator      *sid.Allocator
	evaluator      *access.Evaluator
	logger         *slog.Logger
	auditPublisher audit.Publisher
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store *Store, allocator *sid.Allocator, evaluator *access.Evaluator, opts ...Option) *Service {
	s := &Service{
		store:          store,
		allocator:      allocator,
		evaluator:      evaluator,
		logger:         slog.Default(),
		auditPublisher: audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a billing for a patient, allocating its sid. The sid is
// confirmed only after the document persists; on failure it is handed back to
// the allocator.
func (s *Service) Create(ctx context.Context, b Billing) (*Billing, error) {
	user := requestcontext.User(ctx)
	if b.TenantID == 0 {
		b.TenantID = user.TenantID
	}
	now := requestcontext.Now(ctx)
	if b.BillingDate.IsZero() {
		b.BillingDate = now
	}
	b.CreatedAt = now
	b.UpdatedAt = now
	b.PaidAmount = 0
	b.Payments = nil
	b.Recompute()
	if err := b.Validate(); err != nil {
		return nil, err
	}

	if err := s.evaluator.RequireModule(ctx, access.ModuleBilling); err != nil {
		return nil, err
	}
	scope, err := s.evaluator.ScopeFor(ctx)
	if err != nil {
		return nil, err
	}
	if err := access.CheckTarget(scope, b.TenantID); err != nil {
		return nil, err
	}

	sidNumber, err := s.allocator.Next(ctx, b.TenantID)
	if err != nil {
		return nil, err
	}
	b.SIDNumber = sidNumber

	if err := s.store.Create(ctx, &b); err != nil {
		s.allocator.Release(sidNumber)
		s.emit(ctx, audit.EventBillingCreated, b.TenantID, false)
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "sid_number already in use")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create billing")
	}
	s.allocator.MarkUsed(sidNumber)

	if s.metrics != nil {
		s.metrics.BillingsCreated.Inc()
	}
	s.emit(ctx, audit.EventBillingCreated, b.TenantID, true)
	return &b, nil
}

// List returns billings the caller may see, newest billing date first.
func (s *Service) List(ctx context.Context, filter Filter) ([]Billing, error) {
	scope, err := s.evaluator.ScopeFor(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list billings")
	}

	out := make([]Billing, 0, len(all))
	for _, b := range all {
		if !scope.Allows(b.TenantID) {
			continue
		}
		if filter.PatientID != 0 && b.PatientID != filter.PatientID {
			continue
		}
		if filter.Status != "" && !strings.EqualFold(b.Status, filter.Status) {
			continue
		}
		date := b.BillingDate.Format("2006-01-02")
		if filter.StartDate != "" && date < filter.StartDate {
			continue
		}
		if filter.EndDate != "" && date > filter.EndDate {
			continue
		}
		out = append(out, b)
	}
	sortByBillingDateDesc(out)
	return paginate(out, filter.Offset, filter.Limit), nil
}

// Get returns one billing under the caller's scope.
func (s *Service) Get(ctx context.Context, id int) (*Billing, error) {
	b, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "billing not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load billing")
	}
	scope, err := s.evaluator.ScopeFor(ctx)
	if err != nil {
		return nil, err
	}
	if err := access.CheckTarget(scope, b.TenantID); err != nil {
		return nil, err
	}
	return b, nil
}

// Collect records a payment. Paying the exact balance settles the billing;
// anything above it is rejected.
func (s *Service) Collect(ctx context.Context, id int, amount float64, method string) (*Billing, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "payment amount must be positive")
	}
	if b.Balance <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "billing is already paid")
	}
	if amount > b.Balance {
		return nil, dErrors.Newf(dErrors.CodeValidation, "payment %.2f exceeds outstanding balance %.2f", amount, b.Balance)
	}

	user := requestcontext.User(ctx)
	now := requestcontext.Now(ctx)
	b.PaidAmount += amount
	b.Payments = append(b.Payments, Payment{
		Amount:     amount,
		Method:     method,
		ReceivedBy: user.ID,
		ReceivedAt: now,
	})
	b.UpdatedAt = now
	b.Recompute()

	if err := s.store.Save(ctx, b); err != nil {
		s.emit(ctx, audit.EventPaymentCollected, b.TenantID, false)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record payment")
	}
	s.emit(ctx, audit.EventPaymentCollected, b.TenantID, true)
	return b, nil
}

func (s *Service) emit(ctx context.Context, eventType string, tenantID int, success bool) {
	user := requestcontext.User(ctx)
	severity := audit.SeverityInfo
	if !success {
		severity = audit.SeverityWarning
	}
	_ = s.auditPublisher.Emit(ctx, audit.Entry{
		EventType: eventType,
		Severity:  severity,
		UserID:    user.ID,
		TenantID:  tenantID,
		Success:   success,
	})
}

func sortByBillingDateDesc(billings []Billing) {
	sort.Slice(billings, func(i, j int) bool {
		return billings[i].BillingDate.After(billings[j].BillingDate)
	})
}

func paginate(billings []Billing, offset, limit int) []Billing {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset >= len(billings) {
		return []Billing{}
	}
	end := offset + limit
	if end > len(billings) {
		end = len(billings)
	}
	return billings[offset:end]
}
