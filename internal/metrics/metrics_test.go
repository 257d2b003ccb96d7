package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func useRegistry(t *testing.T) *PrometheusMetrics {
	t.Helper()
	previous := collectors
	collectors = newPrometheusMetrics(promauto.With(prometheus.NewRegistry()))
	t.Cleanup(func() { collectors = previous })
	return collectors
}

func TestHelpersAreNoOpsBeforeInit(t *testing.T) {
	previous := collectors
	collectors = nil
	t.Cleanup(func() { collectors = previous })

	assert.Nil(t, Get())
	assert.NotPanics(t, func() {
		RecordQueryMetrics("rest", "success", time.Millisecond, 3)
		RecordConnectionAttempt("rest", "success")
		RecordConnectionFailure("rest", "Timeout")
		UpdateProtocolEnabled("rest", true)
	})
}

func TestConnectionMetrics(t *testing.T) {
	m := useRegistry(t)

	RecordConnectionAttempt("flight", "failure")
	RecordConnectionAttempt("flight", "failure")
	RecordConnectionFailure("flight", "ConnectionRefused")
	UpdateProtocolEnabled("flight", true)
	UpdateProtocolEnabled("odbc", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConnectionAttempts.WithLabelValues("flight", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionFailures.WithLabelValues("flight", "ConnectionRefused")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProtocolEnabled.WithLabelValues("flight")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ProtocolEnabled.WithLabelValues("odbc")))
}

func TestQueryMetricsCountRowsOnSuccessOnly(t *testing.T) {
	m := useRegistry(t)

	RecordQueryMetrics("rest", "success", 10*time.Millisecond, 5)
	RecordQueryMetrics("rest", "error", 10*time.Millisecond, 7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueryTotal.WithLabelValues("rest", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueryTotal.WithLabelValues("rest", "error")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.QueryRowsRead.WithLabelValues("rest")))
}
