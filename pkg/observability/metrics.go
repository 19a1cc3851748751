package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Permission engine metrics
	PermissionChecksTotal   *prometheus.CounterVec
	PermissionCheckDuration prometheus.Histogram
	ResolutionCacheHits     *prometheus.CounterVec
	ResolutionCacheMisses   *prometheus.CounterVec

	// Protection invariant metrics
	GuardRejectionsTotal *prometheus.CounterVec

	// Bulk admin action metrics
	BulkActionsTotal   *prometheus.CounterVec
	BulkActionDuration *prometheus.HistogramVec
	BulkTargetsTotal   *prometheus.CounterVec

	// Membership metrics
	MembershipTransitionsTotal *prometheus.CounterVec
	ActiveMembershipsGauge     prometheus.Gauge

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	// Audit metrics
	AuditEntriesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildhall_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "guildhall_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildhall_permission_checks_total",
				Help: "Total number of permission checks by outcome",
			},
			[]string{"outcome"},
		),
		PermissionCheckDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "guildhall_permission_check_duration_seconds",
				Help:    "Permission check duration in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
			},
		),
		ResolutionCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildhall_resolution_cache_hits_total",
				Help: "Total number of permission resolution cache hits",
			},
			[]string{"tier"},
		),
		ResolutionCacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildhall_resolution_cache_misses_total",
				Help: "Total number of permission resolution cache misses",
			},
			[]string{"tier"},
		),

		GuardRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildhall_guard_rejections_total",
				Help: "Total number of mutations rejected by protection invariants",
			},
			[]string{"invariant"},
		),

		BulkActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildhall_bulk_actions_total",
				Help: "Total number of bulk admin actions executed",
			},
			[]string{"action", "result"},
		),
		BulkActionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "guildhall_bulk_action_duration_seconds",
				Help:    "Bulk admin action duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		BulkTargetsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildhall_bulk_targets_total",
				Help: "Total number of per-user outcomes inside bulk actions",
			},
			[]string{"action", "outcome"},
		),

		MembershipTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildhall_membership_transitions_total",
				Help: "Total number of membership status transitions",
			},
			[]string{"from", "to"},
		),
		ActiveMembershipsGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "guildhall_active_memberships",
				Help: "Current number of active group memberships",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "guildhall_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "guildhall_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		AuditEntriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildhall_audit_entries_total",
				Help: "Total number of audit log entries written",
			},
			[]string{"event_type", "status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionChecksTotal,
		m.PermissionCheckDuration,
		m.ResolutionCacheHits,
		m.ResolutionCacheMisses,
		m.GuardRejectionsTotal,
		m.BulkActionsTotal,
		m.BulkActionDuration,
		m.BulkTargetsTotal,
		m.MembershipTransitionsTotal,
		m.ActiveMembershipsGauge,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.AuditEntriesTotal,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

// CollectDBStats copies database pool statistics into the gauges. Intended
// to be called periodically from the health server loop.
func (m *Metrics) CollectDBStats(db *sql.DB) {
	if db == nil {
		return
	}
	stats := db.Stats()
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
