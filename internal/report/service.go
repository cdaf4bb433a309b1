package report

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"avinilabs/internal/access"
	"avinilabs/internal/audit"
	"avinilabs/internal/billing"
	"avinilabs/internal/catalog"
	"avinilabs/internal/patient"
	"avinilabs/internal/platform/metrics"
	"avinilabs/internal/sid"
	"avinilabs/internal/tenant"
	dErrors "avinilabs/pkg/domain-errors"
	"avinilabs/pkg/platform/sentinel"
	"avinilabs/pkg/requestcontext"
)

// Service builds billing reports and serves the report query and update
// surface.
type Service struct {
	store          *Store
	billings       *billing.Store
	patients       *patient.Store
	tenants        *tenant.Store
	resolver       *catalog.Resolver
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

type Deps struct {
	Store     *Store
	Billings  *billing.Store
	Patients  *patient.Store
	Tenants   *tenant.Store
	Resolver  *catalog.Resolver
	Allocator *sid.Allocator
	Evaluator *access.Evaluator
}

func NewService(deps Deps, opts ...Option) *Service {
	s := &Service{
		store:          deps.Store,
		billings:       deps.Billings,
		patients:       deps.Patients,
		tenants:        deps.Tenants,
		resolver:       deps.Resolver,
		allocator:      deps.Allocator,
		evaluator:      deps.Evaluator,
		logger:         slog.Default(),
		auditPublisher: audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate builds a report for a billing. Each call allocates a fresh sid
// and produces a distinct report document, so regenerating never overwrites
// an earlier snapshot. Unmatched tests never abort generation; they are
// carried on the report for correction.
func (s *Service) Generate(ctx context.Context, billingID int) (*BillingReport, error) {
	b, err := s.billings.FindByID(ctx, billingID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "billing not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load billing")
	}
	scope, err := s.evaluator.ReportScopeFor(ctx)
	if err != nil {
		return nil, err
	}
	if err := access.CheckTarget(scope, b.TenantID); err != nil {
		return nil, err
	}
	if err := s.evaluator.RequireModule(ctx, access.ModuleReports); err != nil {
		return nil, err
	}

	p, err := s.patients.FindByID(ctx, b.PatientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "patient not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load patient")
	}
	clinic, err := s.tenants.FindByID(ctx, b.TenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load franchise")
	}

	matched, unmatched, err := s.resolver.Resolve(ctx, b.Items)
	if err != nil {
		s.emitGeneration(ctx, b.TenantID, false, nil)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve billing items")
	}
	if len(unmatched) > 0 {
		if s.metrics != nil {
			s.metrics.UnmatchedTests.Add(float64(len(unmatched)))
		}
		_ = s.auditPublisher.Emit(ctx, audit.Entry{
			EventType: audit.EventReportMatchFailure,
			Severity:  audit.SeverityWarning,
			UserID:    requestcontext.User(ctx).ID,
			TenantID:  b.TenantID,
			Success:   false,
			Details:   map[string]any{"unmatched_tests": unmatched},
		})
	}

	sidNumber, err := s.allocator.Next(ctx, b.TenantID)
	if err != nil {
		s.emitGeneration(ctx, b.TenantID, false, nil)
		return nil, err
	}

	now := requestcontext.Now(ctx)
	r := &BillingReport{
		SIDNumber:           sidNumber,
		BillingID:           b.ID,
		PatientID:           b.PatientID,
		TenantID:            b.TenantID,
		BillingDate:         b.BillingDate,
		GenerationTimestamp: now,
		PatientInfo: PatientInfo{
			PatientID: p.ID,
			FullName:  p.FullName,
			Gender:    p.Gender,
			Age:       p.Age,
			Mobile:    p.Mobile,
			Email:     p.Email,
			Address:   p.Address,
		},
		ClinicInfo: ClinicInfo{
			TenantID: clinic.ID,
			Name:     clinic.Name,
			SiteCode: clinic.SiteCode,
			Address:  clinic.Address,
			Phone:    clinic.Phone,
		},
		BillingHeader: BillingHeader{
			BillingID:     b.ID,
			InvoiceNumber: b.InvoiceNumber,
			BillingDate:   b.BillingDate,
			Status:        b.Status,
		},
		TestItems:      s.resolver.ExpandProfiles(ctx, matched),
		UnmatchedTests: unmatched,
		FinancialSummary: FinancialSummary{
			Subtotal:    b.Subtotal,
			Discount:    b.Discount,
			Tax:         b.Tax,
			TotalAmount: b.TotalAmount,
			PaidAmount:  b.PaidAmount,
			Balance:     b.Balance,
			Status:      b.Status,
		},
		Metadata:            buildMetadata(len(b.Items), len(matched), len(unmatched)),
		AuthorizationStatus: AuthorizationPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.store.Create(ctx, r); err != nil {
		s.allocator.Release(sidNumber)
		s.emitGeneration(ctx, b.TenantID, false, nil)
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "sid_number already in use")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist report")
	}
	s.allocator.MarkUsed(sidNumber)

	if s.metrics != nil {
		s.metrics.ReportsGenerated.Inc()
	}
	s.emitGeneration(ctx, b.TenantID, true, map[string]any{
		"report_id": r.ID, "sid_number": r.SIDNumber,
		"match_success_rate": r.Metadata.TestMatchSuccessRate,
	})
	return r, nil
}

// buildMetadata derives the matching statistics from pre-expansion counts.
func buildMetadata(total, matched, unmatched int) Metadata {
	rate := 1.0
	if total > 0 {
		rate = float64(matched) / float64(total)
	}
	status := MetadataComplete
	if unmatched > 0 {
		status = MetadataPartialMatch
	}
	return Metadata{
		TestMatchSuccessRate: rate,
		TotalTests:           total,
		MatchedTestsCount:    matched,
		UnmatchedTestsCount:  unmatched,
		Status:               status,
	}
}

// Authorize records an approve or reject decision on a report.
func (s *Service) Authorize(ctx context.Context, reportID int, auth Authorization) (*BillingReport, error) {
	if strings.TrimSpace(auth.AuthorizerName) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "authorizer_name is required")
	}
	switch auth.Action {
	case "approve":
	case "reject":
		if strings.TrimSpace(auth.Comments) == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "comments are required when rejecting")
		}
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "action must be approve or reject")
	}

	r, err := s.getScoped(ctx, reportID)
	if err != nil {
		s.emitAuthorization(ctx, 0, false)
		return nil, err
	}

	user := requestcontext.User(ctx)
	if auth.Timestamp.IsZero() {
		auth.Timestamp = requestcontext.Now(ctx)
	}
	auth.UserID = user.ID
	auth.UserRole = user.Role

	r.Authorized = auth.Action == "approve"
	if r.Authorized {
		r.AuthorizationStatus = AuthorizationApproved
	} else {
		r.AuthorizationStatus = AuthorizationRejected
	}
	r.Authorization = &auth
	r.UpdatedAt = requestcontext.Now(ctx)

	if err := s.store.Save(ctx, r); err != nil {
		s.emitAuthorization(ctx, r.TenantID, false)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save authorization")
	}
	s.emitAuthorization(ctx, r.TenantID, true)
	return r, nil
}

func (s *Service) getScoped(ctx context.Context, reportID int) (*BillingReport, error) {
	r, err := s.store.FindByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "report not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load report")
	}
	scope, err := s.evaluator.ReportScopeFor(ctx)
	if err != nil {
		return nil, err
	}
	if err := access.CheckTarget(scope, r.TenantID); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) emitGeneration(ctx context.Context, tenantID int, success bool, details map[string]any) {
	user := requestcontext.User(ctx)
	severity := audit.SeverityInfo
	if !success {
		severity = audit.SeverityError
	}
	_ = s.auditPublisher.Emit(ctx, audit.Entry{
		EventType: audit.EventReportGeneration,
		Severity:  severity,
		UserID:    user.ID,
		TenantID:  tenantID,
		Success:   success,
		Details:   details,
	})
}

func (s *Service) emitAuthorization(ctx context.Context, tenantID int, success bool) {
	user := requestcontext.User(ctx)
	severity := audit.SeverityInfo
	if !success {
		severity = audit.SeverityWarning
	}
	_ = s.auditPublisher.Emit(ctx, audit.Entry{
		EventType: audit.EventReportAuthorization,
		Severity:  severity,
		UserID:    user.ID,
		TenantID:  tenantID,
		Success:   success,
	})
}
