package httptransport

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"avinilabs/internal/routing"
	dErrors "avinilabs/pkg/domain-errors"
	"avinilabs/pkg/platform/httputil"
)

// RoutingHandler serves the routing lifecycle plus its invoice, chat and
// attachment sub-resources.
type RoutingHandler struct {
	logger   *slog.Logger
	routings *routing.Service
	invoices *routing.InvoiceCoordinator
	chat     *routing.ChatService
}

func (h *RoutingHandler) Register(r chi.Router) {
	r.Route("/samples/routing", func(sr chi.Router) {
		sr.Post("/", h.handleCreate)
		sr.Get("/", h.handleList)
		sr.Get("/{id}", h.handleGet)
		for _, action := range []string{
			routing.ActionApprove, routing.ActionReject, routing.ActionDispatch,
			routing.ActionReceive, routing.ActionComplete, routing.ActionCancel,
		} {
			sr.Post("/{id}/"+action, h.transition(action))
		}
	})

	r.Route("/routing/{id}", func(rr chi.Router) {
		rr.Get("/history", h.handleHistory)
		rr.Get("/workflow", h.handleWorkflow)

		rr.Get("/messages", h.handleListMessages)
		rr.Post("/messages", h.handlePostMessage)
		rr.Post("/messages/{message_id}/read", h.handleMarkMessageRead)

		rr.Get("/files", h.handleListFiles)
		rr.Post("/files", h.handleUploadFile)
		rr.Get("/files/{file_id}", h.handleDownloadFile)
		rr.Delete("/files/{file_id}", h.handleDeleteFile)

		rr.Get("/invoices", h.handleListInvoices)
		rr.Post("/invoices", h.handleCreateInvoice)
	})

	r.Route("/invoices/{invoice_id}", func(ir chi.Router) {
		ir.Get("/", h.handleGetInvoice)
		ir.Put("/", h.handleUpdateInvoice)
		ir.Put("/status", h.handleUpdateInvoiceStatus)
		ir.Delete("/", h.handleDeleteInvoice)
	})
}

func (h *RoutingHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req routing.SampleRouting
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	created, err := h.routings.Create(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *RoutingHandler) handleList(w http.ResponseWriter, r *http.Request) {
	listed, err := h.routings.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listed)
}

func (h *RoutingHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	found, err := h.routings.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, found)
}

func (h *RoutingHandler) transition(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathInt(r, "id")
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		var payload routing.TransitionPayload
		if r.ContentLength > 0 {
			if err := httputil.DecodeJSON(r, &payload); err != nil {
				httputil.WriteError(w, err)
				return
			}
		}
		updated, err := h.routings.Transition(r.Context(), id, action, payload)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, updated)
	}
}

func (h *RoutingHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.routings.History(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

func (h *RoutingHandler) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	workflow, err := h.routings.WorkflowFor(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, workflow)
}

func (h *RoutingHandler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	messages, err := h.chat.List(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, messages)
}

func (h *RoutingHandler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	posted, err := h.chat.Post(r.Context(), id, req.Content)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, posted)
}

func (h *RoutingHandler) handleMarkMessageRead(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.MarkRead(r.Context(), chi.URLParam(r, "message_id")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func (h *RoutingHandler) handleListFiles(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	files, err := h.chat.Files(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, files)
}

// handleUploadFile accepts multipart uploads under the "file" field.
func (h *RoutingHandler) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "multipart field \"file\" is required"))
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read upload"))
		return
	}
	uploaded, err := h.chat.Upload(r.Context(), id, header.Filename, header.Header.Get("Content-Type"), content)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, uploaded)
}

func (h *RoutingHandler) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	download, err := h.chat.Download(r.Context(), chi.URLParam(r, "file_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", download.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+download.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(download.Content)
}

func (h *RoutingHandler) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.Delete(r.Context(), chi.URLParam(r, "file_id")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RoutingHandler) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	routingDoc, err := h.loadRouting(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	invoices, err := h.invoices.ListForRouting(r.Context(), routingDoc)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, invoices)
}

func (h *RoutingHandler) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	routingDoc, err := h.loadRouting(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req routing.RoutingInvoice
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	created, err := h.invoices.CreateFor(r.Context(), routingDoc, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *RoutingHandler) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "invoice_id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	inv, err := h.invoices.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, inv)
}

func (h *RoutingHandler) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	inv, routingDoc, err := h.invoiceWithRouting(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req routing.RoutingInvoice
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	updated, err := h.invoices.Update(r.Context(), routingDoc, inv.ID, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *RoutingHandler) handleUpdateInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	inv, routingDoc, err := h.invoiceWithRouting(r)
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
	updated, err := h.invoices.UpdateStatus(r.Context(), routingDoc, inv.ID, req.Status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *RoutingHandler) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	inv, routingDoc, err := h.invoiceWithRouting(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.invoices.Delete(r.Context(), routingDoc, inv.ID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RoutingHandler) loadRouting(r *http.Request) (*routing.SampleRouting, error) {
	id, err := pathInt(r, "id")
	if err != nil {
		return nil, err
	}
	return h.routings.Get(r.Context(), id)
}

// invoiceWithRouting resolves an /api/invoices/{invoice_id} target and the
// routing it belongs to, which the coordinator needs for its frozen checks.
func (h *RoutingHandler) invoiceWithRouting(r *http.Request) (*routing.RoutingInvoice, *routing.SampleRouting, error) {
	id, err := pathInt(r, "invoice_id")
	if err != nil {
		return nil, nil, err
	}
	inv, err := h.invoices.Get(r.Context(), id)
	if err != nil {
		return nil, nil, err
	}
	routingDoc, err := h.routings.Get(r.Context(), inv.RoutingID)
	if err != nil {
		return nil, nil, err
	}
	return inv, routingDoc, nil
}
