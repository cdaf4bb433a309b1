package billing

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"avinilabs/internal/access"
	"avinilabs/internal/catalog"
	"avinilabs/internal/jsonstore"
	"avinilabs/internal/sid"
	"avinilabs/internal/tenant"
	dErrors "avinilabs/pkg/domain-errors"
	"avinilabs/pkg/requestcontext"
)

type BillingServiceSuite struct {
	suite.Suite
	backing *jsonstore.MemoryStore
	service *Service
}

func TestBillingServiceSuite(t *testing.T) {
	suite.Run(t, new(BillingServiceSuite))
}

func (s *BillingServiceSuite) SetupTest() {
	s.backing = jsonstore.NewMemoryStore()
	s.backing.Seed(tenant.Collection, []jsonstore.Document{
		{"id": 1, "name": "Hub", "site_code": "MYD", "is_hub": true, "is_active": true,
			"use_site_code_prefix": false, "module_permissions": []any{1, 2, 3}},
		{"id": 3, "name": "Thanjavur", "site_code": "TNJ", "is_active": true,
			"use_site_code_prefix": true, "module_permissions": []any{1, 2, 3}},
		{"id": 4, "name": "Kumbakonam", "site_code": "KMB", "is_active": true,
			"use_site_code_prefix": true},
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tenants := tenant.NewStore(s.backing)
	allocator := sid.NewAllocator(s.backing, tenants, sid.WithLogger(logger))
	s.service = NewService(NewStore(s.backing), allocator, access.NewEvaluator(tenants), WithLogger(logger))
}

func (s *BillingServiceSuite) asUser(role string, tenantID int) context.Context {
	ctx := requestcontext.WithUser(context.Background(), requestcontext.AuthUser{
		ID: 9, Username: "reception", Role: role, TenantID: tenantID,
	})
	return requestcontext.WithTime(ctx, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
}

func (s *BillingServiceSuite) newBilling(tenantID int) Billing {
	return Billing{
		PatientID: 12,
		TenantID:  tenantID,
		Items: []catalog.BillingItem{
			{TestID: "1", TestName: "CBC", Quantity: 1, Price: 250, Amount: 250},
			{TestName: "GLUCOSE FASTING", Quantity: 1, Price: 150, Amount: 150},
		},
	}
}

func (s *BillingServiceSuite) TestCreateAllocatesSIDAndInvoiceNumber() {
	ctx := s.asUser(access.RoleFranchiseAdmin, 3)

	created, err := s.service.Create(ctx, s.newBilling(3))
	s.Require().NoError(err)
	s.Equal("TNJ001", created.SIDNumber)
	s.Equal("INV00001", created.InvoiceNumber)
	s.Equal(StatusPending, created.Status)
	s.Equal(400.0, created.TotalAmount)
	s.Equal(400.0, created.Balance)

	// Next billing on the same franchise advances the sid.
	second, err := s.service.Create(ctx, s.newBilling(3))
	s.Require().NoError(err)
	s.Equal("TNJ002", second.SIDNumber)
	s.Equal("INV00002", second.InvoiceNumber)
}

func (s *BillingServiceSuite) TestCreateDeniedOutsideScope() {
	ctx := s.asUser(access.RoleFranchiseAdmin, 3)

	_, err := s.service.Create(ctx, s.newBilling(4))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAccessDenied))
}

func (s *BillingServiceSuite) TestCreateRequiresBillingModule() {
	// Tenant 4 has no module permissions and lab techs do not bypass.
	ctx := s.asUser(access.RoleLabTech, 4)

	_, err := s.service.Create(ctx, s.newBilling(4))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeModuleAccessDenied))
}

func (s *BillingServiceSuite) TestCreateRejectsEmptyItems() {
	ctx := s.asUser(access.RoleFranchiseAdmin, 3)

	b := s.newBilling(3)
	b.Items = nil
	_, err := s.service.Create(ctx, b)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *BillingServiceSuite) TestCollectPartialThenSettle() {
	ctx := s.asUser(access.RoleFranchiseAdmin, 3)
	created, err := s.service.Create(ctx, s.newBilling(3))
	s.Require().NoError(err)

	partial, err := s.service.Collect(ctx, created.ID, 150, "cash")
	s.Require().NoError(err)
	s.Equal(StatusPartial, partial.Status)
	s.Equal(250.0, partial.Balance)

	paid, err := s.service.Collect(ctx, created.ID, 250, "card")
	s.Require().NoError(err)
	s.Equal(StatusPaid, paid.Status)
	s.Equal(0.0, paid.Balance)
	s.Len(paid.Payments, 2)
}

func (s *BillingServiceSuite) TestCollectRejectsOverpay() {
	ctx := s.asUser(access.RoleFranchiseAdmin, 3)
	created, err := s.service.Create(ctx, s.newBilling(3))
	s.Require().NoError(err)

	// One paise over the balance.
	_, err = s.service.Collect(ctx, created.ID, 400.01, "cash")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *BillingServiceSuite) TestCollectRejectsAlreadyPaid() {
	ctx := s.asUser(access.RoleFranchiseAdmin, 3)
	created, err := s.service.Create(ctx, s.newBilling(3))
	s.Require().NoError(err)

	_, err = s.service.Collect(ctx, created.ID, 400, "cash")
	s.Require().NoError(err)
	_, err = s.service.Collect(ctx, created.ID, 1, "cash")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *BillingServiceSuite) TestListScopesAndFilters() {
	adminCtx := s.asUser(access.RoleAdmin, 1)
	s.backing.Seed(Collection, []jsonstore.Document{
		{"id": 1, "tenant_id": 3, "patient_id": 12, "status": StatusPending, "billing_date": "2026-03-01T00:00:00Z"},
		{"id": 2, "tenant_id": 3, "patient_id": 13, "status": StatusPaid, "billing_date": "2026-03-05T00:00:00Z"},
		{"id": 3, "tenant_id": 4, "patient_id": 12, "status": StatusPending, "billing_date": "2026-03-07T00:00:00Z"},
	})

	// Franchise admin of tenant 3 sees only their own rows.
	own, err := s.service.List(s.asUser(access.RoleFranchiseAdmin, 3), Filter{})
	s.Require().NoError(err)
	s.Len(own, 2)

	// Admin sees everything, newest billing date first.
	all, err := s.service.List(adminCtx, Filter{})
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal(3, all[0].ID)

	byPatient, err := s.service.List(adminCtx, Filter{PatientID: 12})
	s.Require().NoError(err)
	s.Len(byPatient, 2)

	byStatus, err := s.service.List(adminCtx, Filter{Status: "paid"})
	s.Require().NoError(err)
	s.Require().Len(byStatus, 1)
	s.Equal(2, byStatus[0].ID)

	byDate, err := s.service.List(adminCtx, Filter{StartDate: "2026-03-02", EndDate: "2026-03-06"})
	s.Require().NoError(err)
	s.Require().Len(byDate, 1)
	s.Equal(2, byDate[0].ID)

	paged, err := s.service.List(adminCtx, Filter{Limit: 1, Offset: 1})
	s.Require().NoError(err)
	s.Require().Len(paged, 1)
	s.Equal(2, paged[0].ID)
}

func (s *BillingServiceSuite) TestGetNotFound() {
	_, err := s.service.Get(s.asUser(access.RoleAdmin, 1), 99)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
