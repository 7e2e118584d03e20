// Package requesttime pins one "now" per HTTP request so that every timestamp
// written while serving it (issuedAt, revoked_at, event times) agrees.
package requesttime

import (
	"context"
	"net/http"
	"time"

	"certledger/pkg/requestcontext"
)

// Middleware records the request start time in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Now returns the request-scoped time, or time.Now outside a request
// (scheduled resync, CLI, tests).
func Now(ctx context.Context) time.Time {
	return requestcontext.Now(ctx)
}

// WithTime pins now for code running outside the middleware.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return requestcontext.WithTime(ctx, t)
}
