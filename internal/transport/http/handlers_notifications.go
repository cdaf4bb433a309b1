package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"avinilabs/internal/notification"
	"avinilabs/pkg/platform/httputil"
)

// NotificationHandler serves the caller's in-app notifications.
type NotificationHandler struct {
	logger        *slog.Logger
	notifications *notification.Service
}

func (h *NotificationHandler) Register(r chi.Router) {
	r.Route("/notifications", func(nr chi.Router) {
		nr.Get("/", h.handleList)
		nr.Post("/{id}/read", h.handleMarkRead)
	})
}

func (h *NotificationHandler) handleList(w http.ResponseWriter, r *http.Request) {
	listed, err := h.notifications.ListForUser(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listed)
}

func (h *NotificationHandler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	updated, err := h.notifications.MarkRead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}
