package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"certledger/internal/credential/handler"
	"certledger/internal/platform/auth"
	"certledger/internal/platform/config"
	"certledger/internal/platform/health"
	"certledger/internal/platform/metrics"
	authmw "certledger/pkg/platform/middleware/auth"
	"certledger/pkg/platform/middleware/metadata"
	"certledger/pkg/platform/middleware/request"
	"certledger/pkg/platform/middleware/requesttime"
)

const (
	readTimeout  = 30 * time.Second
	writeTimeout = 2 * time.Minute
	adminTimeout = 10 * time.Minute

	// multipartOverhead covers form fields and part headers around the file.
	multipartOverhead = 1 << 20
)

type routerConfig struct {
	server  config.Server
	handler *handler.Handler
	health  *health.Handler
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// newRouter mounts probes, metrics and the certificate API. Reads are public;
// mutations need an issuer or admin token and reconciliation needs admin.
func newRouter(rc routerConfig) (http.Handler, error) {
	proxies, err := metadata.ParseTrustedProxies(rc.server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("parse TRUSTED_PROXIES: %w", err)
	}

	tokens := auth.NewTokenService(rc.server.JWTSigningKey, rc.server.TokenIssuer, rc.server.TokenAudience, rc.server.TokenTTL)
	validator := auth.NewMiddlewareAdapter(tokens)
	recorder := authmw.WithFailureRecorder(rc.metrics)

	r := chi.NewRouter()
	r.Use(request.Recovery(rc.logger))
	r.Use(request.RequestID)
	r.Use(metadata.NewMiddleware(proxies).Handler)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(rc.logger))
	r.Use(request.LatencyMiddleware(request.NewMetrics()))

	rc.health.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(readTimeout))
		r.Use(request.ContentType("application/json"))
		rc.handler.RegisterPublic(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(writeTimeout))
		r.Use(request.ContentType("application/json", "multipart/form-data"))
		r.Use(request.BodyLimit(rc.server.MaxUploadBytes + multipartOverhead))
		r.Use(authmw.RequireAuth(validator, rc.logger, recorder))
		r.Use(authmw.RequireRole(rc.logger, []string{auth.RoleIssuer, auth.RoleAdmin}, recorder))
		rc.handler.RegisterIssuer(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(adminTimeout))
		r.Use(authmw.RequireAuth(validator, rc.logger, recorder))
		r.Use(authmw.RequireRole(rc.logger, []string{auth.RoleAdmin}, recorder))
		rc.handler.RegisterAdmin(r)
	})

	return r, nil
}
