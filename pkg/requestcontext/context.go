// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Context keys and getter/setter functions live here for values that are set
// by middleware but consumed by services. Keeping this package free of
// net/http lets services import only what they need.
//
// Usage in services (read values):
//
//	user := requestcontext.User(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithUser(ctx, identity.User{ID: 4, Role: "admin"})
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

// AuthUser is the authenticated caller as carried on the request context.
// Role and TenantID drive every access decision downstream.
type AuthUser struct {
	ID       int
	Username string
	Role     string
	TenantID int
}

// Context key types (unexported for encapsulation).
type (
	userKey        struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need context.WithValue directly.
var (
	ContextKeyUser        = userKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// User retrieves the authenticated user from the context. Returns the zero
// value if not set.
func User(ctx context.Context) AuthUser {
	if u, ok := ctx.Value(ContextKeyUser).(AuthUser); ok {
		return u
	}
	return AuthUser{}
}

// WithUser injects the authenticated user into the context.
func WithUser(ctx context.Context, u AuthUser) context.Context {
	return context.WithValue(ctx, ContextKeyUser, u)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for service unit
// tests that don't run the full HTTP middleware chain.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
