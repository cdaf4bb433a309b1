package httptransport

import (
	"log/slog"
	"net/http"

	"avinilabs/internal/user"
	dErrors "avinilabs/pkg/domain-errors"
	"avinilabs/pkg/platform/httputil"
)

// AuthHandler serves the login endpoint.
type AuthHandler struct {
	logger *slog.Logger
	users  *user.Service
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string     `json:"token"`
	User  *user.User `json:"user"`
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "username and password are required"))
		return
	}
	token, u, err := h.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	u.PasswordHash = ""
	httputil.WriteJSON(w, http.StatusOK, loginResponse{Token: token, User: u})
}
