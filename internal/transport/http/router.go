// Package httptransport mounts the JSON API. Handlers stay thin: decode,
// delegate to a domain service, translate the result. Every route except
// login, health and the public QR PDF fetch sits behind bearer auth.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"avinilabs/internal/billing"
	"avinilabs/internal/notification"
	"avinilabs/internal/patient"
	"avinilabs/internal/platform/middleware"
	"avinilabs/internal/report"
	"avinilabs/internal/routing"
	"avinilabs/internal/sample"
	"avinilabs/internal/tenant"
	"avinilabs/internal/user"
	"avinilabs/pkg/platform/httputil"
)

// Deps collects everything the API surface needs.
type Deps struct {
	Logger        *slog.Logger
	Validator     middleware.TokenValidator
	Users         *user.Service
	Billings      *billing.Service
	Reports       *report.Service
	Routings      *routing.Service
	Invoices      *routing.InvoiceCoordinator
	Chat          *routing.ChatService
	Patients      *patient.Service
	Samples       *sample.Service
	Notifications *notification.Service
	Tenants       *tenant.Service
	Registry      prometheus.Gatherer
}

// NewRouter assembles the full route table.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestMeta)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	auth := &AuthHandler{logger: deps.Logger, users: deps.Users}
	reports := &ReportHandler{logger: deps.Logger, reports: deps.Reports}

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/login", auth.handleLogin)
		// QR codes on printed reports resolve without a token.
		api.Get("/billing-reports/sid/{sid}/pdf", reports.handlePublicPDF)

		api.Group(func(protected chi.Router) {
			protected.Use(middleware.RequireAuth(deps.Validator, deps.Logger))

			(&BillingHandler{logger: deps.Logger, billings: deps.Billings}).Register(protected)
			reports.Register(protected)
			(&RoutingHandler{
				logger:   deps.Logger,
				routings: deps.Routings,
				invoices: deps.Invoices,
				chat:     deps.Chat,
			}).Register(protected)
			(&PatientHandler{logger: deps.Logger, patients: deps.Patients}).Register(protected)
			(&SampleHandler{logger: deps.Logger, samples: deps.Samples}).Register(protected)
			(&NotificationHandler{logger: deps.Logger, notifications: deps.Notifications}).Register(protected)
			(&AdminHandler{logger: deps.Logger, tenants: deps.Tenants}).Register(protected)
		})
	})
	return r
}
