// Package telemetry provides application-level observability for the audit backend.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<STA_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format (Content-Type: text/plain; version=0.0.4) and is intended to be scraped by
// a Prometheus server every 15–60 seconds.  It is NOT served by the Gin router and
// is therefore absent from the OpenAPI/Swagger spec.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Audit session lifecycle counters and per-action workflow counters
//   - Recon ledger transaction counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/audit/sessions/:id)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as session or verification IDs.
//
// # Usage
//
// Import the package for side effects so metrics are registered before the HTTP server
// starts listening:
//
//	import _ "github.com/stockaudit/stockaudit-backend/internal/telemetry"
//
// Or import it directly and use an exported var:
//
//	telemetry.AuditActionsTotal.WithLabelValues("confirm").Inc()
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template (e.g. /api/v1/audit/sessions/:id/complete),
// NOT the raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - Requests by route:                 sum by (path) (rate(http_requests_total[5m]))
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
//
// Example PromQL queries:
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
//   - Average latency:                   rate(http_request_duration_seconds_sum[5m]) / rate(http_request_duration_seconds_count[5m])
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

// Audit workflow metrics, recorded by the audit engine.
//
// AuditSessionsTotal is a CounterVec with label {event} ∈ {created, completed,
// cancelled}, incremented once per session lifecycle event.
//
// Example PromQL queries:
//   - Sessions opened per day:       increase(audit_sessions_total{event="created"}[24h])
//   - Cancellation ratio:            sum(rate(audit_sessions_total{event="cancelled"}[7d])) / sum(rate(audit_sessions_total{event="created"}[7d]))
//
// AuditActionsTotal is a CounterVec with label {action} holding the action log type
// (confirm, override, lock, unlock, recon-checkin, recon-checkout,
// start-reconciliation, complete, cancel, extend).  Because the engine writes one
// log entry per state-changing call, this counter mirrors action log growth and a
// divergence between the two is a bug signal.
//
// Example PromQL queries:
//   - Override pressure:             rate(audit_actions_total{action="override"}[1h])
//   - Recon activity by direction:   sum by (action) (rate(audit_actions_total{action=~"recon-.*"}[1h]))
var (
	AuditSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_sessions_total",
			Help: "Total number of audit session lifecycle events, by event (created, completed, cancelled).",
		},
		[]string{"event"},
	)

	AuditActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_actions_total",
			Help: "Total number of state-changing audit workflow actions, by action type.",
		},
		[]string{"action"},
	)
)

// LedgerTransactionsTotal is a CounterVec with labels {type, origin} counting ledger
// writes.  origin is "recon" for freeze-breaking corrective transactions created by
// the audit engine and "ordinary" for everything else, so the sanctioned escape
// hatch through a warehouse freeze stays visible on a dashboard.
//
// Example PromQL queries:
//   - Recon write rate:   sum(rate(ledger_transactions_total{origin="recon"}[1h]))
//   - Mix by type:        sum by (type) (rate(ledger_transactions_total[1h]))
var LedgerTransactionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ledger_transactions_total",
		Help: "Total number of ledger transactions recorded, by type and origin.",
	},
	[]string{"type", "origin"},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <STA_DATABASE_MAX_CONNECTIONS> * 100
//   - Alert on near-exhaustion: db_open_connections > 20  (for max_connections=25)
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
