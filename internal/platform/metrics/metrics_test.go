package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.IncrementAuthFailures("missing_token")
	m.IncrementAuthFailures("missing_token")
	m.IncrementAccessDenied("issuer")
	m.SetBuildInfo("dev", "test", "sqlite", "memory")

	assert.InDelta(t, 2, testutil.ToFloat64(m.AuthFailures.WithLabelValues("missing_token")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.AccessDenied.WithLabelValues("issuer")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.BuildInfo.WithLabelValues("dev", "test", "sqlite", "memory")), 0)
}
