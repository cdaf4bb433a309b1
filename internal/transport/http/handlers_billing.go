package httptransport

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"avinilabs/internal/billing"
	dErrors "avinilabs/pkg/domain-errors"
	"avinilabs/pkg/platform/httputil"
)

// BillingHandler serves billing creation, listing and payment collection.
type BillingHandler struct {
	logger   *slog.Logger
	billings *billing.Service
}

func (h *BillingHandler) Register(r chi.Router) {
	r.Route("/billing", func(br chi.Router) {
		br.Post("/", h.handleCreate)
		br.Get("/", h.handleList)
		br.Get("/{id}", h.handleGet)
		br.Post("/{id}/collect", h.handleCollect)
	})
}

func (h *BillingHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var b billing.Billing
	if err := httputil.DecodeJSON(r, &b); err != nil {
		httputil.WriteError(w, err)
		return
	}
	created, err := h.billings.Create(r.Context(), b)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *BillingHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := billing.Filter{
		PatientID: atoiOrZero(q.Get("patient_id")),
		Status:    q.Get("status"),
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		Limit:     atoiOrZero(q.Get("limit")),
		Offset:    atoiOrZero(q.Get("offset")),
	}
	listed, err := h.billings.List(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listed)
}

func (h *BillingHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	b, err := h.billings.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

func (h *BillingHandler) handleCollect(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req struct {
		Amount float64 `json:"amount"`
		Method string  `json:"method"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	updated, err := h.billings.Collect(r.Context(), id, req.Amount, req.Method)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func pathInt(r *http.Request, name string) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, dErrors.Newf(dErrors.CodeValidation, "%s must be numeric", name)
	}
	return n, nil
}

func atoiOrZero(raw string) int {
	n, _ := strconv.Atoi(raw)
	return n
}
