package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"avinilabs/internal/report"
	"avinilabs/pkg/platform/httputil"
)

// ReportHandler serves the billing-report surface.
type ReportHandler struct {
	logger  *slog.Logger
	reports *report.Service
}

func (h *ReportHandler) Register(r chi.Router) {
	r.Route("/billing-reports", func(rr chi.Router) {
		rr.Post("/generate/{billing_id}", h.handleGenerate)
		rr.Get("/list", h.handleList)
		rr.Get("/search", h.handleSearch)
		rr.Get("/autocomplete", h.handleAutocomplete)
		rr.Get("/sid/{sid}", h.handleGetBySID)
		rr.Put("/sid/{sid}/test/{index}", h.handleUpdateTestItem)
		rr.Put("/sid/{sid}/sample-status", h.handleUpdateSampleStatus)
		rr.Post("/{id}/authorize", h.handleAuthorize)
	})
}

func (h *ReportHandler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	billingID, err := pathInt(r, "billing_id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	generated, err := h.reports.Generate(r.Context(), billingID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, generated)
}

func (h *ReportHandler) handleList(w http.ResponseWriter, r *http.Request) {
	franchiseID := atoiOrZero(r.URL.Query().Get("franchise_id"))
	listed, err := h.reports.List(r.Context(), franchiseID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listed)
}

func (h *ReportHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	found, err := h.reports.Search(r.Context(), report.SearchParams{
		SID:         q.Get("sid"),
		PatientName: q.Get("patient_name"),
		Mobile:      q.Get("mobile"),
		DateFrom:    q.Get("date_from"),
		DateTo:      q.Get("date_to"),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, found)
}

func (h *ReportHandler) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sids, err := h.reports.Autocomplete(r.Context(), q.Get("prefix"), atoiOrZero(q.Get("limit")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sids)
}

func (h *ReportHandler) handleGetBySID(w http.ResponseWriter, r *http.Request) {
	found, err := h.reports.GetBySID(r.Context(), chi.URLParam(r, "sid"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, found)
}

// handlePublicPDF is the tokenless QR-code route. It serves the report body
// for client-side rendering; no access scope applies because the sid itself
// is the capability.
func (h *ReportHandler) handlePublicPDF(w http.ResponseWriter, r *http.Request) {
	found, err := h.reports.PublicBySID(r.Context(), chi.URLParam(r, "sid"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, found)
}

func (h *ReportHandler) handleUpdateTestItem(w http.ResponseWriter, r *http.Request) {
	index, err := pathInt(r, "index")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var patch map[string]any
	if err := httputil.DecodeJSON(r, &patch); err != nil {
		httputil.WriteError(w, err)
		return
	}
	updated, err := h.reports.UpdateTestItem(r.Context(), chi.URLParam(r, "sid"), index, patch)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *ReportHandler) handleUpdateSampleStatus(w http.ResponseWriter, r *http.Request) {
	var patches []report.SampleStatusPatch
	if err := httputil.DecodeJSON(r, &patches); err != nil {
		httputil.WriteError(w, err)
		return
	}
	updated, err := h.reports.UpdateSampleStatus(r.Context(), chi.URLParam(r, "sid"), patches)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *ReportHandler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var auth report.Authorization
	if err := httputil.DecodeJSON(r, &auth); err != nil {
		httputil.WriteError(w, err)
		return
	}
	updated, err := h.reports.Authorize(r.Context(), id, auth)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}
