package report

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"avinilabs/internal/access"
	"avinilabs/internal/billing"
	"avinilabs/internal/catalog"
	"avinilabs/internal/jsonstore"
	"avinilabs/internal/patient"
	"avinilabs/internal/sid"
	"avinilabs/internal/tenant"
	dErrors "avinilabs/pkg/domain-errors"
	"avinilabs/pkg/requestcontext"
)

const lftProfileID = "c9e14b20-aaaa-bbbb-cccc-000000000001"

type ReportServiceSuite struct {
	suite.Suite
	backing *jsonstore.MemoryStore
	service *Service
}

func TestReportServiceSuite(t *testing.T) {
	suite.Run(t, new(ReportServiceSuite))
}

func (s *ReportServiceSuite) SetupTest() {
	s.backing = jsonstore.NewMemoryStore()
	s.backing.Seed(tenant.Collection, []jsonstore.Document{
		{"id": 1, "name": "AVINI Labs Mayiladuthurai", "site_code": "MYD", "is_hub": true,
			"is_active": true, "use_site_code_prefix": false, "module_permissions": []any{1, 2, 3},
			"address": "Main Road, Mayiladuthurai", "phone": "04364-222333"},
		{"id": 3, "name": "AVINI Labs Thanjavur", "site_code": "TNJ", "is_active": true,
			"use_site_code_prefix": true, "module_permissions": []any{1, 2, 3}},
	})
	s.backing.Seed(patient.Collection, []jsonstore.Document{
		{"id": 7, "display_id": "P00007", "full_name": "Kumar Swamy", "gender": "male",
			"age": 42, "mobile": "9876543210", "tenant_id": 1},
	})
	s.backing.Seed(catalog.TestMasterCollection, []jsonstore.Document{
		{"id": 1, "testName": "CBC", "specimen": "EDTA Blood", "referenceRange": "4.5-11.0"},
		{"id": 11, "testName": "SGPT"}, {"id": 12, "testName": "SGOT"},
		{"id": 13, "testName": "ALP"}, {"id": 14, "testName": "GGT"},
		{"id": 15, "testName": "Total Bilirubin"}, {"id": 16, "testName": "Direct Bilirubin"},
		{"id": 17, "testName": "Total Protein"}, {"id": 18, "testName": "Albumin"},
	})
	s.backing.Seed(catalog.ProfilesCollection, []jsonstore.Document{
		{"id": lftProfileID, "test_profile": "LFT", "test_price": 800.0, "testItems": []any{
			map[string]any{"test_id": 11, "testName": "SGPT"},
			map[string]any{"test_id": 12, "testName": "SGOT"},
			map[string]any{"test_id": 13, "testName": "ALP"},
			map[string]any{"test_id": 14, "testName": "GGT"},
			map[string]any{"test_id": 15, "testName": "Total Bilirubin"},
			map[string]any{"test_id": 16, "testName": "Direct Bilirubin"},
			map[string]any{"test_id": 17, "testName": "Total Protein"},
			map[string]any{"test_id": 18, "testName": "Albumin"},
		}},
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tenants := tenant.NewStore(s.backing)
	catalogStore := catalog.NewStore(s.backing)
	s.service = NewService(Deps{
		Store:     NewStore(s.backing),
		Billings:  billing.NewStore(s.backing),
		Patients:  patient.NewStore(s.backing),
		Tenants:   tenants,
		Resolver:  catalog.NewResolver(catalogStore, logger),
		Allocator: sid.NewAllocator(s.backing, tenants, sid.WithLogger(logger)),
		Evaluator: access.NewEvaluator(tenants),
	}, WithLogger(logger))
}

func (s *ReportServiceSuite) asAdmin() context.Context {
	ctx := requestcontext.WithUser(context.Background(), requestcontext.AuthUser{
		ID: 2, Username: "admin", Role: access.RoleAdmin, TenantID: 1,
	})
	return requestcontext.WithTime(ctx, time.Date(2026, 3, 12, 10, 30, 0, 0, time.UTC))
}

func (s *ReportServiceSuite) seedBilling(docs ...jsonstore.Document) {
	s.backing.Seed(billing.Collection, docs)
}

func (s *ReportServiceSuite) TestGenerateComposesReport() {
	s.seedBilling(jsonstore.Document{
		"id": 5, "invoice_number": "INV00005", "tenant_id": 1, "patient_id": 7,
		"billing_date": "2026-03-11T00:00:00Z", "subtotal": 450.0, "total_amount": 450.0,
		"paid_amount": 450.0, "balance": 0.0, "status": billing.StatusPaid,
		"items": []any{
			map[string]any{"id": 1, "test_id": "1", "quantity": 1, "price": 250.0, "amount": 250.0},
			map[string]any{"id": 2, "test_name": "mystery assay", "quantity": 1, "price": 200.0, "amount": 200.0},
		},
	})

	r, err := s.service.Generate(s.asAdmin(), 5)
	s.Require().NoError(err)

	s.Equal("001", r.SIDNumber)
	s.Equal(5, r.BillingID)
	s.Equal("Kumar Swamy", r.PatientInfo.FullName)
	s.Equal("AVINI Labs Mayiladuthurai", r.ClinicInfo.Name)
	s.Equal("INV00005", r.BillingHeader.InvoiceNumber)
	s.Equal(450.0, r.FinancialSummary.TotalAmount)
	s.Equal(billing.StatusPaid, r.FinancialSummary.Status)

	s.Require().Len(r.TestItems, 1)
	s.Equal("CBC", r.TestItems[0].TestName)
	s.Equal([]string{"mystery assay"}, r.UnmatchedTests)

	s.Equal(2, r.Metadata.TotalTests)
	s.Equal(1, r.Metadata.MatchedTestsCount)
	s.Equal(1, r.Metadata.UnmatchedTestsCount)
	s.Equal(0.5, r.Metadata.TestMatchSuccessRate)
	s.Equal(MetadataPartialMatch, r.Metadata.Status)
	s.Equal(AuthorizationPending, r.AuthorizationStatus)
}

func (s *ReportServiceSuite) TestGenerateFullMatch() {
	s.seedBilling(jsonstore.Document{
		"id": 1, "tenant_id": 1, "patient_id": 7, "status": billing.StatusPending,
		"items": []any{map[string]any{"id": 1, "test_id": "1", "amount": 250.0}},
	})

	r, err := s.service.Generate(s.asAdmin(), 1)
	s.Require().NoError(err)
	s.Equal(1.0, r.Metadata.TestMatchSuccessRate)
	s.Equal(MetadataComplete, r.Metadata.Status)
	s.Empty(r.UnmatchedTests)
}

func (s *ReportServiceSuite) TestGenerateExpandsProfile() {
	s.seedBilling(jsonstore.Document{
		"id": 1, "tenant_id": 1, "patient_id": 7, "status": billing.StatusPending,
		"items": []any{map[string]any{
			"id": 1, "test_id": lftProfileID, "quantity": 1, "price": 800.0, "amount": 800.0,
		}},
	})

	r, err := s.service.Generate(s.asAdmin(), 1)
	s.Require().NoError(err)

	// Eight sub-test rows, each carrying an even share of the profile price,
	// while the metadata counts the single pre-expansion item.
	s.Require().Len(r.TestItems, 8)
	for _, item := range r.TestItems {
		s.True(item.IsProfileSubtest)
		s.Equal("LFT", item.ParentProfileName)
		s.Equal(100.0, item.Amount)
	}
	s.Equal(1, r.Metadata.TotalTests)
	s.Equal(1, r.Metadata.MatchedTestsCount)
	s.Equal(1.0, r.Metadata.TestMatchSuccessRate)
}

func (s *ReportServiceSuite) TestGenerateUnknownBilling() {
	_, err := s.service.Generate(s.asAdmin(), 42)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ReportServiceSuite) TestGenerateUnknownPatient() {
	s.seedBilling(jsonstore.Document{
		"id": 1, "tenant_id": 1, "patient_id": 999,
		"items": []any{map[string]any{"test_id": "1"}},
	})
	_, err := s.service.Generate(s.asAdmin(), 1)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ReportServiceSuite) TestRegenerateAllocatesFreshSID() {
	s.seedBilling(jsonstore.Document{
		"id": 1, "tenant_id": 1, "patient_id": 7,
		"items": []any{map[string]any{"test_id": "1", "amount": 250.0}},
	})

	first, err := s.service.Generate(s.asAdmin(), 1)
	s.Require().NoError(err)
	second, err := s.service.Generate(s.asAdmin(), 1)
	s.Require().NoError(err)

	s.Equal("001", first.SIDNumber)
	s.Equal("002", second.SIDNumber)
	s.NotEqual(first.ID, second.ID)
}

func (s *ReportServiceSuite) TestGenerateDeniedOutsideScope() {
	s.seedBilling(jsonstore.Document{
		"id": 1, "tenant_id": 1, "patient_id": 7,
		"items": []any{map[string]any{"test_id": "1"}},
	})
	ctx := requestcontext.WithUser(context.Background(), requestcontext.AuthUser{
		ID: 3, Role: access.RoleFranchiseAdmin, TenantID: 3,
	})

	_, err := s.service.Generate(ctx, 1)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAccessDenied))
}

func (s *ReportServiceSuite) generateOne() *BillingReport {
	s.seedBilling(jsonstore.Document{
		"id": 1, "tenant_id": 1, "patient_id": 7, "billing_date": "2026-03-11T00:00:00Z",
		"items": []any{map[string]any{"id": 1, "test_id": "1", "amount": 250.0}},
	})
	r, err := s.service.Generate(s.asAdmin(), 1)
	s.Require().NoError(err)
	return r
}

func (s *ReportServiceSuite) TestAuthorizeApprove() {
	r := s.generateOne()

	updated, err := s.service.Authorize(s.asAdmin(), r.ID, Authorization{
		AuthorizerName: "Dr. Meena", Action: "approve",
	})
	s.Require().NoError(err)
	s.True(updated.Authorized)
	s.Equal(AuthorizationApproved, updated.AuthorizationStatus)
	s.Require().NotNil(updated.Authorization)
	s.Equal("Dr. Meena", updated.Authorization.AuthorizerName)
	s.Equal(2, updated.Authorization.UserID)
	s.Equal(access.RoleAdmin, updated.Authorization.UserRole)
}

func (s *ReportServiceSuite) TestAuthorizeRejectRequiresComments() {
	r := s.generateOne()

	_, err := s.service.Authorize(s.asAdmin(), r.ID, Authorization{
		AuthorizerName: "Dr. Meena", Action: "reject",
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	updated, err := s.service.Authorize(s.asAdmin(), r.ID, Authorization{
		AuthorizerName: "Dr. Meena", Action: "reject", Comments: "hemolyzed sample",
	})
	s.Require().NoError(err)
	s.False(updated.Authorized)
	s.Equal(AuthorizationRejected, updated.AuthorizationStatus)
}

func (s *ReportServiceSuite) TestAuthorizeRequiresName() {
	r := s.generateOne()
	_, err := s.service.Authorize(s.asAdmin(), r.ID, Authorization{Action: "approve"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ReportServiceSuite) TestSearchAndAutocomplete() {
	s.backing.Seed(Collection, []jsonstore.Document{
		{"id": 1, "tenant_id": 1, "sid_number": "001", "billing_date": "2026-03-01T00:00:00Z",
			"patient_info": map[string]any{"full_name": "Kumar Swamy", "mobile": "9876543210"}},
		{"id": 2, "tenant_id": 1, "sid_number": "002", "billing_date": "2026-03-05T00:00:00Z",
			"patient_info": map[string]any{"full_name": "Lakshmi Devi", "mobile": "9123456780"}},
		{"id": 3, "tenant_id": 3, "sid_number": "TNJ001", "billing_date": "2026-03-06T00:00:00Z",
			"patient_info": map[string]any{"full_name": "Ravi Chandran", "mobile": "9000011111"}},
	})
	ctx := s.asAdmin()

	bySID, err := s.service.Search(ctx, SearchParams{SID: "tnj"})
	s.Require().NoError(err)
	s.Require().Len(bySID, 1)
	s.Equal("TNJ001", bySID[0].SIDNumber)

	byName, err := s.service.Search(ctx, SearchParams{PatientName: "kumar"})
	s.Require().NoError(err)
	s.Require().Len(byName, 1)
	s.Equal("001", byName[0].SIDNumber)

	byDate, err := s.service.Search(ctx, SearchParams{DateFrom: "2026-03-02", DateTo: "2026-03-05"})
	s.Require().NoError(err)
	s.Require().Len(byDate, 1)
	s.Equal("002", byDate[0].SIDNumber)

	// Intersection of predicates.
	none, err := s.service.Search(ctx, SearchParams{SID: "001", Mobile: "9123"})
	s.Require().NoError(err)
	s.Empty(none)

	sids, err := s.service.Autocomplete(ctx, "00", 0)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"001", "002"}, sids)

	limited, err := s.service.Autocomplete(ctx, "00", 1)
	s.Require().NoError(err)
	s.Len(limited, 1)
}

func (s *ReportServiceSuite) TestListScopesToFranchise() {
	s.backing.Seed(Collection, []jsonstore.Document{
		{"id": 1, "tenant_id": 1, "sid_number": "001"},
		{"id": 2, "tenant_id": 3, "sid_number": "TNJ001"},
	})

	// Franchise admin of tenant 3 sees only their own reports.
	ctx := requestcontext.WithUser(context.Background(), requestcontext.AuthUser{
		ID: 3, Role: access.RoleFranchiseAdmin, TenantID: 3,
	})
	own, err := s.service.List(ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(own, 1)
	s.Equal("TNJ001", own[0].SIDNumber)

	// The hub quirk: a hub_admin of tenant 1 sees everything.
	hubCtx := requestcontext.WithUser(context.Background(), requestcontext.AuthUser{
		ID: 4, Role: access.RoleHubAdmin, TenantID: 1,
	})
	all, err := s.service.List(hubCtx, 0)
	s.Require().NoError(err)
	s.Len(all, 2)

	narrowed, err := s.service.List(hubCtx, 3)
	s.Require().NoError(err)
	s.Require().Len(narrowed, 1)
	s.Equal("TNJ001", narrowed[0].SIDNumber)
}

func (s *ReportServiceSuite) TestUpdateTestItemRespectsProtectedKeys() {
	r := s.generateOne()

	updated, err := s.service.UpdateTestItem(s.asAdmin(), r.SIDNumber, 0, map[string]any{
		"result":          "5.2",
		"reference_range": "4.0-6.0",
		"id":              999,
		"test_master_id":  999,
	})
	s.Require().NoError(err)
	s.Equal("5.2", updated.TestItems[0].Result)
	s.Equal("4.0-6.0", updated.TestItems[0].ReferenceRange)
	// Protected keys survive the patch.
	s.Equal(1, updated.TestItems[0].TestMasterID)
}

func (s *ReportServiceSuite) TestUpdateTestItemIndexOutOfRange() {
	r := s.generateOne()
	_, err := s.service.UpdateTestItem(s.asAdmin(), r.SIDNumber, 5, map[string]any{"result": "x"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ReportServiceSuite) TestUpdateSampleStatusMergesAndAppends() {
	r := s.generateOne()

	updated, err := s.service.UpdateSampleStatus(s.asAdmin(), r.SIDNumber, []SampleStatusPatch{
		{ID: 1, SampleStatus: "Received", SampleReceived: true},
		{ID: 99, SampleStatus: "Collected"},
	})
	s.Require().NoError(err)

	s.Require().Len(updated.TestItems, 2)
	s.Equal("Received", updated.TestItems[0].SampleStatus)
	s.True(updated.TestItems[0].SampleReceived)
	s.NotEmpty(updated.TestItems[0].SampleReceivedTimestamp)
	s.Equal("Collected", updated.TestItems[1].SampleStatus)
}

func (s *ReportServiceSuite) TestGetBySIDNotFound() {
	_, err := s.service.GetBySID(s.asAdmin(), "ZZZ999")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
