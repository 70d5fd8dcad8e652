// Package telemetry provides application-level observability for CredVault.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<CV_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format (Content-Type: text/plain; version=0.0.4) and is intended to be scraped by
// a Prometheus server every 15–60 seconds.  It is NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Credential operation counters (create/recreate/delete, by result)
//   - External provisioning attempt/failure counters and DDL duration histogram
//   - Audit event counters, including dropped entries
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/db-credential/:id)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as credential ids.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template, NOT the raw URL.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Credential lifecycle metrics.
//
// CredentialOperationsTotal is a CounterVec with labels {operation, result}:
// operation is create|recreate|delete, result is ok|denied|error.
//
// Example PromQL queries:
//   - Denial rate:  sum(rate(credential_operations_total{result="denied"}[1h]))
//   - Create volume by day:  increase(credential_operations_total{operation="create"}[1d])
var CredentialOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "credential_operations_total",
		Help: "Total number of credential lifecycle operations, by operation and result.",
	},
	[]string{"operation", "result"},
)

// External provisioning metrics.
//
// ProvisioningAttemptsTotal is a CounterVec with labels {kind, result}:
// kind is provision|reprovision, result is ok|error.  An alert on
// rate(provisioning_attempts_total{result="error"}[30m]) > 0 catches broken
// cluster credentials or unreachable targets early.
//
// ProvisioningDuration is a Histogram covering the full DDL sequence of one
// provisioning call, connection setup included.
var (
	ProvisioningAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provisioning_attempts_total",
			Help: "Total number of external provisioning attempts, by kind and result.",
		},
		[]string{"kind", "result"},
	)

	ProvisioningDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "provisioning_duration_seconds",
			Help:    "Duration of a single external provisioning call including connection setup.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Audit pipeline metrics.
//
// AuditEventsTotal is a CounterVec with label {type} incremented once per
// domain event delivered to the recorder.
//
// AuditEventsDroppedTotal is a CounterVec with labels {type, reason}
// incremented when an event could not be recorded (actor resolution failed or
// the write errored).  Any nonzero rate here means audit history is lossy and
// should be alerted on.
var (
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_total",
			Help: "Total number of domain events delivered to the audit recorder, by event type.",
		},
		[]string{"type"},
	)

	AuditEventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_dropped_total",
			Help: "Total number of domain events dropped without an audit entry, by event type and reason.",
		},
		[]string{"type", "reason"},
	)
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
