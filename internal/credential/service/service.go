// Package service implements the certificate lifecycle across the ledger, the
// blob store and the cache.
//
// The ledger is authoritative and every mutating ledger step is strict. The
// blob store is strict during issuance. The cache is advisory: its failures are
// returned as warnings on otherwise successful results and never change an
// operation's outcome. Ledger writes always precede the cache writes that
// mirror them, and no call is retried automatically.
package service

import (
	"context"
	"log/slog"
	"time"

	"certledger/internal/credential/events"
	"certledger/internal/credential/metrics"
	"certledger/internal/credential/models"
	"certledger/internal/credential/tracer"
	"certledger/pkg/platform/circuit"
	"certledger/pkg/platform/keylock"
)

// BlobStore stores certificate payloads by content.
type BlobStore interface {
	Store(ctx context.Context, payload []byte, hint models.StoreHint) (string, error)
	Fetch(ctx context.Context, contentID string) ([]byte, error)
	Ping(ctx context.Context) error
}

// Ledger is the authoritative certificate registry.
type Ledger interface {
	Submit(ctx context.Context, op models.Operation, record models.CertificateRecord) error
	Query(ctx context.Context, certID models.CertID) (models.CertificateRecord, error)
	QueryAll(ctx context.Context) ([]models.CertificateRecord, error)
	Ping(ctx context.Context) error
}

// CacheStore is the advisory projection of ledger records.
type CacheStore interface {
	Upsert(ctx context.Context, record models.CertificateRecord) error
	FindByID(ctx context.Context, certID models.CertID) (models.CertificateRecord, error)
	MarkStatus(ctx context.Context, certID models.CertID, change models.StatusChange) error
	Ping(ctx context.Context) error
}

// EventPublisher receives lifecycle events after ledger commits.
type EventPublisher interface {
	Emit(ctx context.Context, event events.Event) error
}

// Timeouts bounds every remote call by collaborator.
type Timeouts struct {
	Blob   time.Duration
	Ledger time.Duration
	Cache  time.Duration
	Events time.Duration
}

// DefaultTimeouts returns the timeouts used when none are configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Blob:   15 * time.Second,
		Ledger: 10 * time.Second,
		Cache:  2 * time.Second,
		Events: 3 * time.Second,
	}
}

// Service is the certificate lifecycle manager.
type Service struct {
	blobs        BlobStore
	ledger       Ledger
	cache        CacheStore
	publisher    EventPublisher
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       tracer.Tracer
	breaker      *circuit.Breaker
	locks        *keylock.Striped
	timeouts     Timeouts
	requireCache bool
	resyncLimit  int
	newID        func() (models.CertID, error)
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer sets the span tracer.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithPublisher sets where lifecycle events are emitted.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithTimeouts overrides per-collaborator call timeouts. Zero fields keep
// their defaults.
func WithTimeouts(t Timeouts) Option {
	return func(s *Service) {
		if t.Blob > 0 {
			s.timeouts.Blob = t.Blob
		}
		if t.Ledger > 0 {
			s.timeouts.Ledger = t.Ledger
		}
		if t.Cache > 0 {
			s.timeouts.Cache = t.Cache
		}
		if t.Events > 0 {
			s.timeouts.Events = t.Events
		}
	}
}

// WithRequireCache makes Issue abort before any write when the cache is down.
func WithRequireCache(required bool) Option {
	return func(s *Service) {
		s.requireCache = required
	}
}

// WithCacheBreaker replaces the breaker guarding advisory cache calls.
func WithCacheBreaker(b *circuit.Breaker) Option {
	return func(s *Service) {
		if b != nil {
			s.breaker = b
		}
	}
}

// WithResyncConcurrency bounds parallel cache writes during Resync.
func WithResyncConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.resyncLimit = n
		}
	}
}

// WithIDGenerator overrides certificate id generation.
func WithIDGenerator(fn func() (models.CertID, error)) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New creates the lifecycle manager.
func New(blobs BlobStore, ledger Ledger, cache CacheStore, opts ...Option) *Service {
	s := &Service{
		blobs:       blobs,
		ledger:      ledger,
		cache:       cache,
		publisher:   events.NoopPublisher{},
		logger:      slog.Default(),
		tracer:      tracer.NewNoop(),
		locks:       keylock.New(),
		timeouts:    DefaultTimeouts(),
		resyncLimit: 8,
		newID:       models.NewCertID,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breaker == nil {
		s.breaker = circuit.New("cache", circuit.WithFailureThreshold(5), circuit.WithCooldown(5*time.Second))
	}
	return s
}

// CacheBreaker exposes the cache breaker for readiness reporting.
func (s *Service) CacheBreaker() *circuit.Breaker {
	return s.breaker
}
