package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"avinilabs/internal/access"
	"avinilabs/internal/tenant"
	dErrors "avinilabs/pkg/domain-errors"
	"avinilabs/pkg/platform/httputil"
	"avinilabs/pkg/requestcontext"
)

// AdminHandler serves the franchise directory and module catalog. Everything
// here is admin-only.
type AdminHandler struct {
	logger  *slog.Logger
	tenants *tenant.Service
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Route("/admin", func(ar chi.Router) {
		ar.Use(requireAdmin)
		ar.Post("/tenants", h.handleCreateTenant)
		ar.Get("/tenants", h.handleListTenants)
		ar.Get("/tenants/{id}", h.handleGetTenant)
		ar.Put("/tenants/{id}", h.handleUpdateTenant)
		ar.Get("/modules", h.handleListModules)
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestcontext.User(r.Context()).Role != access.RoleAdmin {
			httputil.WriteError(w, dErrors.New(dErrors.CodeAccessDenied, "admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *AdminHandler) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var t tenant.Tenant
	if err := httputil.DecodeJSON(r, &t); err != nil {
		httputil.WriteError(w, err)
		return
	}
	created, err := h.tenants.Create(r.Context(), t)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *AdminHandler) handleListTenants(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") == "true"
	listed, err := h.tenants.List(r.Context(), activeOnly)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listed)
}

func (h *AdminHandler) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	found, err := h.tenants.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, found)
}

func (h *AdminHandler) handleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var patch tenant.Tenant
	if err := httputil.DecodeJSON(r, &patch); err != nil {
		httputil.WriteError(w, err)
		return
	}
	updated, err := h.tenants.Update(r.Context(), id, patch)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *AdminHandler) handleListModules(w http.ResponseWriter, r *http.Request) {
	modules, err := h.tenants.ListModules(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, modules)
}
