package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"certledger/internal/credential/handler"
	"certledger/internal/credential/resync"
	"certledger/internal/credential/service"
	"certledger/internal/credential/tracer"
	"certledger/internal/platform/config"
	"certledger/internal/platform/health"
	"certledger/internal/platform/logger"
	"certledger/internal/platform/metrics"
	"certledger/pkg/platform/circuit"
)

// main wires the stores, the lifecycle service and the HTTP surface, then
// keeps the server lifecycle small. Business logic lives in internal/credential.
func main() {
	if err := run(); err != nil {
		slog.Error("certledger exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Server.LogLevel)

	log.Info("initializing certledger",
		"addr", cfg.Server.Addr,
		"environment", cfg.Server.Environment,
		"cache_driver", cfg.Cache.Driver,
		"ledger_driver", cfg.Ledger.Driver,
		"blob_driver", cfg.Blob.Driver,
		"require_cache", cfg.Cache.Require,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	platformMetrics := metrics.New()
	platformMetrics.SetBuildInfo(health.Version, cfg.Server.Environment, cfg.Cache.Driver, cfg.Ledger.Driver)

	deps, err := buildDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close(log)

	breaker := circuit.New("certificate-cache",
		circuit.WithFailureThreshold(cfg.Cache.BreakerTrips),
		circuit.WithCooldown(30*time.Second),
		circuit.WithOnStateChange(func(name string, state circuit.State) {
			deps.credentialMetrics.SetCacheCircuitOpen(state == circuit.StateOpen)
			log.Warn("cache circuit state changed", "breaker", name, "state", state.String())
		}),
	)

	svc := service.New(deps.blobs, deps.ledger, deps.cache,
		service.WithLogger(log),
		service.WithMetrics(deps.credentialMetrics),
		service.WithTracer(tracer.NewOTel()),
		service.WithPublisher(deps.publisher),
		service.WithTimeouts(service.Timeouts{
			Blob:   cfg.Blob.Timeout,
			Ledger: cfg.Ledger.Timeout,
			Cache:  cfg.Cache.Timeout,
			Events: 3 * time.Second,
		}),
		service.WithRequireCache(cfg.Cache.Require),
		service.WithCacheBreaker(breaker),
		service.WithResyncConcurrency(cfg.Cache.ResyncLimit),
	)

	healthHandler := health.New(cfg.Server.Environment)
	healthHandler.RegisterCheck("ledger", deps.ledger.Ping)
	healthHandler.RegisterCheck("blobstore", deps.blobs.Ping)
	if cfg.Cache.Require {
		healthHandler.RegisterCheck("cache", deps.cache.Ping)
	} else {
		healthHandler.RegisterOptionalCheck("cache", deps.cache.Ping)
	}
	if deps.kafkaPing != nil {
		healthHandler.RegisterOptionalCheck("kafka", deps.kafkaPing)
	}

	router, err := newRouter(routerConfig{
		server:  cfg.Server,
		handler: handler.New(svc, log, handler.WithMaxUploadBytes(cfg.Server.MaxUploadBytes)),
		health:  healthHandler,
		metrics: platformMetrics,
		logger:  log,
	})
	if err != nil {
		return err
	}

	if cfg.Cache.ResyncEvery > 0 {
		scheduler, err := resync.NewScheduler(svc, cfg.Cache.ResyncEvery,
			resync.WithLogger(log),
			resync.WithPassTimeout(cfg.Cache.ResyncEvery),
		)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
		log.Info("cache resync scheduled", "interval", cfg.Cache.ResyncEvery)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
