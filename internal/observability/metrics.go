// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Ledger metrics
	EndpointAttempts  *prometheus.CounterVec
	EndpointLatency   *prometheus.HistogramVec
	EndpointExhausted *prometheus.CounterVec

	// Wallet metrics
	Submissions     *prometheus.CounterVec
	BalanceDegraded *prometheus.CounterVec
	DecimalsLookups *prometheus.CounterVec

	// Refresh metrics
	RefreshRuns           *prometheus.CounterVec
	RefreshDuration       prometheus.Histogram
	LastSuccessfulRefresh prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg uses the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "solana_wallet"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		EndpointAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "endpoint_attempts_total",
			Help:      "Ledger operation attempts per endpoint by outcome",
		}, []string{"network", "endpoint", "outcome"}),
		EndpointLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "attempt_latency_seconds",
			Help:      "Latency of single-endpoint attempts in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"network", "op"}),
		EndpointExhausted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "exhausted_total",
			Help:      "Operations that failed on every configured endpoint",
		}, []string{"network", "op"}),

		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "submissions_total",
			Help:      "Transaction submissions by final status",
		}, []string{"network", "status"}),
		BalanceDegraded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "balance_degraded_total",
			Help:      "Balance reads that fell back to zero after a ledger failure",
		}, []string{"network", "asset"}),
		DecimalsLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "decimals_lookups_total",
			Help:      "Mint precision resolutions by source",
		}, []string{"source"}),

		RefreshRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "runs_total",
			Help:      "Balance refresh runs by status",
		}, []string{"status"}),
		RefreshDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "duration_seconds",
			Help:      "Balance refresh duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		LastSuccessfulRefresh: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_refresh_timestamp",
			Help:      "Unix timestamp of last successful balance refresh",
		}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
// A nil gatherer serves the default registry.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordAttempt records one endpoint attempt.
func (m *Metrics) RecordAttempt(network, endpoint, op, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.EndpointAttempts.WithLabelValues(network, endpoint, outcome).Inc()
	m.EndpointLatency.WithLabelValues(network, op).Observe(seconds)
}

// RecordExhausted records an operation that failed on every endpoint.
func (m *Metrics) RecordExhausted(network, op string) {
	if m == nil {
		return
	}
	m.EndpointExhausted.WithLabelValues(network, op).Inc()
}

// RecordSubmission records the final status of a transaction submission.
func (m *Metrics) RecordSubmission(network, status string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(network, status).Inc()
}

// RecordBalanceDegraded records a balance read that degraded to zero.
func (m *Metrics) RecordBalanceDegraded(network, asset string) {
	if m == nil {
		return
	}
	m.BalanceDegraded.WithLabelValues(network, asset).Inc()
}

// RecordDecimalsLookup records where a mint's precision came from.
func (m *Metrics) RecordDecimalsLookup(source string) {
	if m == nil {
		return
	}
	m.DecimalsLookups.WithLabelValues(source).Inc()
}

// RecordRefresh records a refresh run.
func (m *Metrics) RecordRefresh(status string, seconds float64, finishedUnix int64) {
	if m == nil {
		return
	}
	m.RefreshRuns.WithLabelValues(status).Inc()
	m.RefreshDuration.Observe(seconds)
	if status == "success" {
		m.LastSuccessfulRefresh.Set(float64(finishedUnix))
	}
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
