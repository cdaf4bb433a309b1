package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"avinilabs/internal/patient"
	"avinilabs/internal/sample"
	"avinilabs/pkg/platform/httputil"
)

// PatientHandler serves the patient registry.
type PatientHandler struct {
	logger   *slog.Logger
	patients *patient.Service
}

func (h *PatientHandler) Register(r chi.Router) {
	r.Route("/patients", func(pr chi.Router) {
		pr.Post("/", h.handleCreate)
		pr.Get("/", h.handleList)
		pr.Get("/{id}", h.handleGet)
		pr.Put("/{id}", h.handleUpdate)
	})
}

func (h *PatientHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var p patient.Patient
	if err := httputil.DecodeJSON(r, &p); err != nil {
		httputil.WriteError(w, err)
		return
	}
	created, err := h.patients.Create(r.Context(), p)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *PatientHandler) handleList(w http.ResponseWriter, r *http.Request) {
	listed, err := h.patients.List(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listed)
}

func (h *PatientHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	found, err := h.patients.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, found)
}

func (h *PatientHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var patch patient.Patient
	if err := httputil.DecodeJSON(r, &patch); err != nil {
		httputil.WriteError(w, err)
		return
	}
	updated, err := h.patients.Update(r.Context(), id, patch)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

// SampleHandler serves the sample registry.
type SampleHandler struct {
	logger  *slog.Logger
	samples *sample.Service
}

func (h *SampleHandler) Register(r chi.Router) {
	r.Route("/samples", func(sr chi.Router) {
		sr.Post("/", h.handleCreate)
		sr.Get("/", h.handleList)
		sr.Get("/{id}", h.handleGet)
		sr.Put("/{id}/status", h.handleUpdateStatus)
	})
}

func (h *SampleHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var sm sample.Sample
	if err := httputil.DecodeJSON(r, &sm); err != nil {
		httputil.WriteError(w, err)
		return
	}
	created, err := h.samples.Create(r.Context(), sm)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *SampleHandler) handleList(w http.ResponseWriter, r *http.Request) {
	listed, err := h.samples.List(r.Context(), atoiOrZero(r.URL.Query().Get("patient_id")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listed)
}

func (h *SampleHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	found, err := h.samples.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, found)
}

func (h *SampleHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	updated, err := h.samples.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}
