package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"avinilabs/pkg/requestcontext"
)

// TokenValidator validates bearer tokens into an authenticated user.
type TokenValidator interface {
	Validate(tokenString string) (requestcontext.AuthUser, error)
}

// RequireAuth validates the Authorization header and stashes the caller's
// identity on the request context. Every API route except the public QR PDF
// fetch sits behind this middleware.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(r.Context(), "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(r.Context()),
					"path", r.URL.Path,
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			user, err := validator.Validate(token)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(r.Context()),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx := requestcontext.WithUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
