// Package metrics exposes the core's Prometheus instrumentation: HTTP
// traffic metrics plus one counter/histogram/gauge family per subsystem
// operation (withdrawal, compliance check, ASP update, audit append,
// nullifier-set size).
package metrics

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)

	httpRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		},
		[]string{"service"},
	)

	withdrawalTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "withdrawal_total",
			Help: "Total number of withdrawal proof requests",
		},
		[]string{"service", "status"},
	)

	withdrawalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "withdrawal_duration_seconds",
			Help:    "Withdrawal proof generation duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"service"},
	)

	complianceCheckTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliance_check_total",
			Help: "Total number of compliance proof checks",
		},
		[]string{"service", "status"},
	)

	complianceCheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compliance_check_duration_seconds",
			Help:    "Compliance proof check duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"service"},
	)

	aspUpdateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asp_update_total",
			Help: "Total number of ASP membership mutations",
		},
		[]string{"service", "operation", "status"},
	)

	auditAppendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_append_total",
			Help: "Total number of audit journal appends",
		},
		[]string{"service", "op_type"},
	)

	nullifierSetSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nullifier_set_size",
			Help: "Current number of recorded nullifiers",
		},
		[]string{"service"},
	)
)

// Config holds metrics configuration.
type Config struct {
	ServiceName string
}

var config Config

// Initialize sets up metrics with a service name.
func Initialize(cfg Config) {
	config = cfg
}

// HTTPMiddleware returns a gin middleware collecting HTTP traffic metrics.
func HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		httpRequestsInFlight.WithLabelValues(config.ServiceName).Inc()
		defer httpRequestsInFlight.WithLabelValues(config.ServiceName).Dec()

		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		httpRequestsTotal.WithLabelValues(config.ServiceName, method, path, http.StatusText(status)).Inc()
		httpRequestDuration.WithLabelValues(config.ServiceName, method, path, http.StatusText(status)).Observe(duration)
	}
}

// RecordWithdrawal records a withdrawal proof request's outcome and
// duration.
func RecordWithdrawal(duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	withdrawalTotal.WithLabelValues(config.ServiceName, status).Inc()
	withdrawalDuration.WithLabelValues(config.ServiceName).Observe(duration.Seconds())
}

// RecordComplianceCheck records a compliance proof check's outcome and
// duration.
func RecordComplianceCheck(duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	complianceCheckTotal.WithLabelValues(config.ServiceName, status).Inc()
	complianceCheckDuration.WithLabelValues(config.ServiceName).Observe(duration.Seconds())
}

// RecordASPUpdate records an ASP mutation (add/remove/set-exclusion).
func RecordASPUpdate(operation string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	aspUpdateTotal.WithLabelValues(config.ServiceName, operation, status).Inc()
}

// RecordAuditAppend records an audit journal append by operation type.
func RecordAuditAppend(opType string) {
	auditAppendTotal.WithLabelValues(config.ServiceName, opType).Inc()
}

// SetNullifierSetSize sets the current nullifier set cardinality gauge.
func SetNullifierSetSize(size int) {
	nullifierSetSize.WithLabelValues(config.ServiceName).Set(float64(size))
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
