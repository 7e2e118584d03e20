// Package metrics holds process-wide Prometheus metrics that do not belong to
// a single bounded context.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the platform-level Prometheus metrics.
type Metrics struct {
	AuthFailures *prometheus.CounterVec
	AccessDenied *prometheus.CounterVec
	BuildInfo    *prometheus.GaugeVec
}

// New creates the metrics and registers them on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates the metrics on reg. Tests pass a fresh registry.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_auth_failures_total",
			Help: "Requests rejected for a missing or invalid bearer token",
		}, []string{"reason"}),
		AccessDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_access_denied_total",
			Help: "Authenticated requests rejected for insufficient role",
		}, []string{"role"}),
		BuildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "certledger_build_info",
			Help: "Build and runtime metadata; value is always 1",
		}, []string{"version", "environment", "cache_driver", "ledger_driver"}),
	}
	reg.MustRegister(m.AuthFailures, m.AccessDenied, m.BuildInfo)
	return m
}

// IncrementAuthFailures counts a rejected bearer token.
func (m *Metrics) IncrementAuthFailures(reason string) {
	m.AuthFailures.WithLabelValues(reason).Inc()
}

// IncrementAccessDenied counts a role check failure.
func (m *Metrics) IncrementAccessDenied(role string) {
	m.AccessDenied.WithLabelValues(role).Inc()
}

// SetBuildInfo publishes the running configuration.
func (m *Metrics) SetBuildInfo(version, environment, cacheDriver, ledgerDriver string) {
	m.BuildInfo.WithLabelValues(version, environment, cacheDriver, ledgerDriver).Set(1)
}
