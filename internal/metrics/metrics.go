// Package metrics owns the Prometheus collectors shared by the HTTP layer and
// the connection machinery.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics holds all Prometheus metrics
type PrometheusMetrics struct {
	// HTTP request metrics
	HttpRequestsTotal   *prometheus.CounterVec
	HttpRequestDuration *prometheus.HistogramVec
	HttpRequestSize     *prometheus.HistogramVec
	HttpResponseSize    *prometheus.HistogramVec

	// Query metrics
	QueryTotal    *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryRowsRead *prometheus.CounterVec

	// Connection metrics
	ConnectionAttempts *prometheus.CounterVec
	ConnectionFailures *prometheus.CounterVec
	ProtocolEnabled    *prometheus.GaugeVec
}

var (
	collectors  *PrometheusMetrics
	metricsOnce sync.Once
)

// Init registers all metrics with the default registry. Repeated calls are no-ops.
func Init() {
	metricsOnce.Do(func() {
		collectors = newPrometheusMetrics(promauto.With(prometheus.DefaultRegisterer))
	})
}

func newPrometheusMetrics(factory promauto.Factory) *PrometheusMetrics {
	return &PrometheusMetrics{
		HttpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dremio_gateway_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		HttpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dremio_gateway_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		HttpRequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dremio_gateway_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "endpoint"},
		),
		HttpResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dremio_gateway_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "endpoint"},
		),

		QueryTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dremio_query_total",
				Help: "Total number of queries per protocol",
			},
			[]string{"protocol", "status"},
		),
		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dremio_query_duration_seconds",
				Help:    "Query execution time in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"protocol"},
		),
		QueryRowsRead: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dremio_query_rows_read_total",
				Help: "Total number of rows read from queries",
			},
			[]string{"protocol"},
		),

		ConnectionAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dremio_connection_attempts_total",
				Help: "Connection candidate attempts by outcome",
			},
			[]string{"protocol", "outcome"},
		),
		ConnectionFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dremio_connection_failures_total",
				Help: "Failed connection candidates by classified kind",
			},
			[]string{"protocol", "kind"},
		),
		ProtocolEnabled: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dremio_protocol_enabled",
				Help: "Whether a protocol is available and enabled (1) or not (0)",
			},
			[]string{"protocol"},
		),
	}
}

// Get returns the initialized metrics, or nil before Init
func Get() *PrometheusMetrics {
	return collectors
}

// RecordQueryMetrics records query execution metrics
func RecordQueryMetrics(protocol, status string, duration time.Duration, rowsRead int64) {
	if collectors == nil {
		return
	}

	collectors.QueryTotal.WithLabelValues(protocol, status).Inc()
	collectors.QueryDuration.WithLabelValues(protocol).Observe(duration.Seconds())

	if status == "success" && rowsRead > 0 {
		collectors.QueryRowsRead.WithLabelValues(protocol).Add(float64(rowsRead))
	}
}

// RecordConnectionAttempt records one candidate attempt
func RecordConnectionAttempt(protocol, outcome string) {
	if collectors == nil {
		return
	}
	collectors.ConnectionAttempts.WithLabelValues(protocol, outcome).Inc()
}

// RecordConnectionFailure records a failed candidate by classified kind
func RecordConnectionFailure(protocol, kind string) {
	if collectors == nil {
		return
	}
	collectors.ConnectionFailures.WithLabelValues(protocol, kind).Inc()
}

// UpdateProtocolEnabled publishes whether a protocol is usable
func UpdateProtocolEnabled(protocol string, enabled bool) {
	if collectors == nil {
		return
	}

	value := 0.0
	if enabled {
		value = 1.0
	}
	collectors.ProtocolEnabled.WithLabelValues(protocol).Set(value)
}
