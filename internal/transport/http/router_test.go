package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"avinilabs/internal/access"
	"avinilabs/internal/billing"
	"avinilabs/internal/catalog"
	"avinilabs/internal/jsonstore"
	"avinilabs/internal/jwttoken"
	"avinilabs/internal/notification"
	"avinilabs/internal/patient"
	"avinilabs/internal/platform/crypt"
	"avinilabs/internal/report"
	"avinilabs/internal/routing"
	"avinilabs/internal/sample"
	"avinilabs/internal/sid"
	"avinilabs/internal/tenant"
	"avinilabs/internal/user"
)

// RouterSuite drives the assembled API end to end: real services over the
// in-memory store, real JWTs, no mocks.
type RouterSuite struct {
	suite.Suite
	router http.Handler
	tokens *jwttoken.Service
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	backing := jsonstore.NewMemoryStore()
	allModules := []any{1, 2, 3, 4, 5}
	backing.Seed(tenant.Collection, []jsonstore.Document{
		{"id": 2, "name": "Thanjavur", "site_code": "TNJ", "is_active": true,
			"use_site_code_prefix": true, "module_permissions": allModules},
		{"id": 3, "name": "Kumbakonam", "site_code": "KMB", "is_active": true,
			"use_site_code_prefix": true, "module_permissions": allModules},
	})

	ctx := context.Background()
	users := user.NewStore(backing)
	for _, u := range []user.User{
		{Username: "root", Role: access.RoleAdmin, TenantID: 1, IsActive: true},
		{Username: "priya", Role: access.RoleFranchiseAdmin, TenantID: 2, IsActive: true},
		{Username: "arun", Role: access.RoleFranchiseAdmin, TenantID: 3, IsActive: true},
	} {
		s.Require().NoError(users.Create(ctx, &u, "secret123"))
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tenants := tenant.NewStore(backing)
	evaluator := access.NewEvaluator(tenants)
	s.tokens = jwttoken.NewService("test-signing-key", time.Hour)

	allocator := sid.NewAllocator(backing, tenants, sid.WithLogger(logger))
	patients := patient.NewStore(backing)
	routingStore := routing.NewStore(backing)
	invoices := routing.NewInvoiceCoordinator(routingStore, routing.WithLogger(logger))
	routings := routing.NewService(routingStore, users, evaluator, invoices, routing.WithLogger(logger))

	registry := prometheus.NewRegistry()
	s.router = NewRouter(Deps{
		Logger:    logger,
		Validator: s.tokens,
		Users:     user.NewService(users, s.tokens, user.WithLogger(logger)),
		Billings:  billing.NewService(billing.NewStore(backing), allocator, evaluator, billing.WithLogger(logger)),
		Reports: report.NewService(report.Deps{
			Store:     report.NewStore(backing),
			Billings:  billing.NewStore(backing),
			Patients:  patients,
			Tenants:   tenants,
			Resolver:  catalog.NewResolver(catalog.NewStore(backing), logger),
			Allocator: allocator,
			Evaluator: evaluator,
		}, report.WithLogger(logger)),
		Routings:      routings,
		Invoices:      invoices,
		Chat:          routing.NewChatService(routingStore, routings, users, crypt.NewPairBox("test-master"), routing.WithLogger(logger)),
		Patients:      patient.NewService(patients, evaluator, logger),
		Samples:       sample.NewService(sample.NewStore(backing), evaluator),
		Notifications: notification.NewService(notification.NewStore(backing), notification.WithLogger(logger)),
		Tenants:       tenant.NewService(tenants, tenant.WithLogger(logger)),
		Registry:      registry,
	})
}

func (s *RouterSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (s *RouterSuite) login(username string) string {
	rec := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username, "password": "secret123",
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	body := s.decode(rec)
	token, _ := body["token"].(string)
	s.Require().NotEmpty(token)
	return token
}

func (s *RouterSuite) TestHealthAndMetricsNeedNoToken() {
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/health", "", nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/metrics", "", nil).Code)
}

func (s *RouterSuite) TestLoginNeverEchoesPasswordHash() {
	rec := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "priya", "password": "secret123",
	})
	s.Require().Equal(http.StatusOK, rec.Code)
	s.NotContains(rec.Body.String(), "password_hash")
}

func (s *RouterSuite) TestBadCredentialsRejected() {
	rec := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "priya", "password": "wrong",
	})
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("unauthorized", s.decode(rec)["error"])
}

func (s *RouterSuite) TestProtectedRoutesRequireBearerToken() {
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/billing", "", nil).Code)
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/billing", "not-a-jwt", nil).Code)
}

func (s *RouterSuite) TestBillingCreateCollectFlow() {
	token := s.login("priya")

	rec := s.do(http.MethodPost, "/api/billing", token, map[string]any{
		"patient_id": 1,
		"items": []map[string]any{
			{"test_name": "Complete Blood Count", "quantity": 1, "price": 350, "amount": 350},
		},
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	created := s.decode(rec)
	s.NotEmpty(created["sid_number"])
	s.Equal(billing.StatusPending, created["status"])
	id := int(created["id"].(float64))

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/billing/%d/collect", id), token,
		map[string]any{"amount": 350, "method": "cash"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	paid := s.decode(rec)
	s.Equal(billing.StatusPaid, paid["status"])
	s.EqualValues(0, paid["balance"])
}

func (s *RouterSuite) TestOverpaymentRejected() {
	token := s.login("priya")
	rec := s.do(http.MethodPost, "/api/billing", token, map[string]any{
		"patient_id": 1,
		"items":      []map[string]any{{"test_name": "Lipid Profile", "quantity": 1, "price": 500, "amount": 500}},
	})
	s.Require().Equal(http.StatusCreated, rec.Code)
	id := int(s.decode(rec)["id"].(float64))

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/billing/%d/collect", id), token,
		map[string]any{"amount": 600, "method": "cash"})
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("validation", s.decode(rec)["error"])
}

func (s *RouterSuite) TestReportGenerationAndPublicQRRoute() {
	token := s.login("priya")

	rec := s.do(http.MethodPost, "/api/patients", token, map[string]any{
		"full_name": "Meena Sundaram", "gender": "F", "age": 42, "mobile": "9840012345",
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	patientID := int(s.decode(rec)["id"].(float64))

	rec = s.do(http.MethodPost, "/api/billing", token, map[string]any{
		"patient_id": patientID,
		"items":      []map[string]any{{"test_name": "Thyroid Panel", "quantity": 1, "price": 450, "amount": 450}},
	})
	s.Require().Equal(http.StatusCreated, rec.Code)
	billingID := int(s.decode(rec)["id"].(float64))

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/billing-reports/generate/%d", billingID), token, nil)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	generated := s.decode(rec)
	sidNumber, _ := generated["sid_number"].(string)
	s.Require().NotEmpty(sidNumber)

	// The QR route serves the report without a token; the sid is the capability.
	rec = s.do(http.MethodGet, "/api/billing-reports/sid/"+sidNumber+"/pdf", "", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(sidNumber, s.decode(rec)["sid_number"])

	rec = s.do(http.MethodGet, "/api/billing-reports/sid/unknown-sid/pdf", "", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *RouterSuite) TestRoutingLifecycleOverHTTP() {
	source := s.login("priya")
	dest := s.login("arun")

	rec := s.do(http.MethodPost, "/api/samples/routing", source, map[string]any{
		"sample_id": 7, "from_tenant_id": 2, "to_tenant_id": 3,
		"reason": "No CBC analyzer on site",
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	created := s.decode(rec)
	s.Equal(routing.StatePendingApproval, created["status"])
	id := int(created["id"].(float64))

	// Source side cannot approve its own routing.
	rec = s.do(http.MethodPost, fmt.Sprintf("/api/samples/routing/%d/approve", id), source, nil)
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/samples/routing/%d/approve", id), dest, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(routing.StateApproved, s.decode(rec)["status"])

	rec = s.do(http.MethodGet, fmt.Sprintf("/api/routing/%d/invoices", id), dest, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var listed []map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &listed))
	s.Require().Len(listed, 1)
	s.Equal(true, listed[0]["ownership_transferred"])

	rec = s.do(http.MethodGet, fmt.Sprintf("/api/routing/%d/workflow", id), source, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(routing.StateApproved, s.decode(rec)["current_stage"])
}

func (s *RouterSuite) TestRoutingChatOverHTTP() {
	source := s.login("priya")
	dest := s.login("arun")

	rec := s.do(http.MethodPost, "/api/samples/routing", source, map[string]any{
		"sample_id": 9, "from_tenant_id": 2, "to_tenant_id": 3,
		"reason": "Culture requires hub incubator",
	})
	s.Require().Equal(http.StatusCreated, rec.Code)
	id := int(s.decode(rec)["id"].(float64))

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/routing/%d/messages", id), source,
		map[string]any{"content": "Courier leaves at noon"})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	s.Equal("Courier leaves at noon", s.decode(rec)["content"])

	rec = s.do(http.MethodGet, fmt.Sprintf("/api/routing/%d/messages", id), dest, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var msgs []map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &msgs))
	s.Require().Len(msgs, 1)
	s.Equal("Courier leaves at noon", msgs[0]["content"])
}

func (s *RouterSuite) TestUnknownTransitionActionIs404() {
	token := s.login("priya")
	rec := s.do(http.MethodPost, "/api/samples/routing/1/teleport", token, nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *RouterSuite) TestAdminSurfaceGatedByRole() {
	franchise := s.login("priya")
	rec := s.do(http.MethodGet, "/api/admin/tenants", franchise, nil)
	s.Equal(http.StatusForbidden, rec.Code)

	admin := s.login("root")
	rec = s.do(http.MethodGet, "/api/admin/tenants", admin, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/admin/tenants", admin, map[string]any{
		"name": "Mannargudi", "site_code": "MNG", "is_active": true,
	})
	s.Equal(http.StatusCreated, rec.Code, rec.Body.String())
}
