package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"avinilabs/pkg/requestcontext"
)

// RequestMeta assigns a request ID and pins the request time on the context
// so every timestamp written during one request agrees.
func RequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx = requestcontext.WithRequestID(ctx, requestID)
		ctx = requestcontext.WithTime(ctx, requestcontext.Now(ctx))
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
