// Package auth provides bearer-token middleware for certledger routes.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"certledger/pkg/requestcontext"
)

// JWTValidator validates a raw bearer token.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims are the claims the middleware needs from a validated token.
type JWTClaims struct {
	Subject string
	Role    string
	JTI     string
}

// FailureRecorder counts rejected requests.
type FailureRecorder interface {
	IncrementAuthFailures(reason string)
	IncrementAccessDenied(role string)
}

type noopRecorder struct{}

func (noopRecorder) IncrementAuthFailures(string) {}
func (noopRecorder) IncrementAccessDenied(string) {}

// Option configures the middleware.
type Option func(*options)

type options struct {
	recorder FailureRecorder
}

// WithFailureRecorder reports rejections to r.
func WithFailureRecorder(r FailureRecorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{recorder: noopRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth validates the Authorization bearer token and stores the caller
// in the request context as a requestcontext.Actor.
func RequireAuth(validator JWTValidator, logger *slog.Logger, opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				o.recorder.IncrementAuthFailures("missing_token")
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				o.recorder.IncrementAuthFailures("invalid_token")
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}
			if claims.Subject == "" {
				logger.WarnContext(ctx, "unauthorized access - token without subject",
					"jti", claims.JTI,
					"request_id", requestcontext.RequestID(ctx),
				)
				o.recorder.IncrementAuthFailures("missing_subject")
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithActor(ctx, requestcontext.Actor{Subject: claims.Subject, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole admits callers whose role is one of roles. It must run after
// RequireAuth.
func RequireRole(logger *slog.Logger, roles []string, opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor, ok := requestcontext.ActorFrom(ctx)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}
			if !slices.Contains(roles, actor.Role) {
				logger.WarnContext(ctx, "forbidden - insufficient role",
					"actor", actor.Subject,
					"role", actor.Role,
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
				o.recorder.IncrementAccessDenied(actor.Role)
				writeJSONError(w, http.StatusForbidden, "forbidden", "Insufficient role for this operation")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
