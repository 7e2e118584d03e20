// Package metrics provides Prometheus metrics for the certificate lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for lifecycle operations.
const (
	OutcomeSuccess = "success"
	OutcomeWarning = "success_with_warnings"
	OutcomeFailure = "failure"
)

// Metrics contains the lifecycle and cache metrics.
type Metrics struct {
	// Lifecycle operations (issue, revoke, supersede, verify, ...)
	OperationsTotal          *prometheus.CounterVec
	OperationDurationSeconds *prometheus.HistogramVec

	// Reconciliation
	VerifyOutcomesTotal *prometheus.CounterVec // consistent, cache_missing, cache_mismatch
	ResyncRecordsTotal  *prometheus.CounterVec // consistent, upserted, failed

	// Cache store
	CacheLookupsTotal          *prometheus.CounterVec // by backend and result
	CacheLookupDurationSeconds *prometheus.HistogramVec
	CacheWarningsTotal         *prometheus.CounterVec // best-effort failures by step
	CacheCircuitOpen           prometheus.Gauge
}

// New registers the metrics with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the metrics with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_operations_total",
			Help: "Lifecycle operations by operation and outcome",
		}, []string{"operation", "outcome"}),

		OperationDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certledger_operation_duration_seconds",
			Help:    "Duration of lifecycle operations including all remote calls",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),

		VerifyOutcomesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_verify_outcomes_total",
			Help: "Verification results by cache reconciliation outcome",
		}, []string{"outcome"}),

		ResyncRecordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_resync_records_total",
			Help: "Records visited by ledger-to-cache resync by result",
		}, []string{"result"}),

		CacheLookupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_cache_lookups_total",
			Help: "Cache lookups by backend and result (hit, miss, error)",
		}, []string{"backend", "result"}),

		CacheLookupDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certledger_cache_lookup_duration_seconds",
			Help:    "Duration of cache lookups by backend",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5},
		}, []string{"backend"}),

		CacheWarningsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_cache_warnings_total",
			Help: "Best-effort cache steps that failed without failing the operation",
		}, []string{"step"}),

		CacheCircuitOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "certledger_cache_circuit_open",
			Help: "1 while the cache circuit breaker is open",
		}),
	}
}

// ObserveOperation records one finished lifecycle operation.
func (m *Metrics) ObserveOperation(operation, outcome string, durationSeconds float64) {
	m.OperationsTotal.WithLabelValues(operation, outcome).Inc()
	m.OperationDurationSeconds.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordVerifyOutcome counts a verification by reconciliation outcome.
func (m *Metrics) RecordVerifyOutcome(outcome string) {
	m.VerifyOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordResync counts resync results.
func (m *Metrics) RecordResync(consistent, upserted, failed int) {
	m.ResyncRecordsTotal.WithLabelValues("consistent").Add(float64(consistent))
	m.ResyncRecordsTotal.WithLabelValues("upserted").Add(float64(upserted))
	m.ResyncRecordsTotal.WithLabelValues("failed").Add(float64(failed))
}

// RecordCacheLookup records a cache lookup result and its latency.
func (m *Metrics) RecordCacheLookup(backend, result string, durationSeconds float64) {
	m.CacheLookupsTotal.WithLabelValues(backend, result).Inc()
	m.CacheLookupDurationSeconds.WithLabelValues(backend).Observe(durationSeconds)
}

// RecordCacheWarning counts a failed best-effort cache step.
func (m *Metrics) RecordCacheWarning(step string) {
	m.CacheWarningsTotal.WithLabelValues(step).Inc()
}

// SetCacheCircuitOpen updates the breaker gauge.
func (m *Metrics) SetCacheCircuitOpen(open bool) {
	if open {
		m.CacheCircuitOpen.Set(1)
		return
	}
	m.CacheCircuitOpen.Set(0)
}
