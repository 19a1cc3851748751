// Package observability provides structured logging, Prometheus metrics,
// health checks, and OpenTelemetry integration for the Guildhall services.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("group_id", groupID).Info("membership activated")
//
// # Prometheus Metrics
//
// Metrics cover the HTTP surface plus the domain engine: permission check
// totals and latency, resolution cache hits/misses, protection guard
// rejections, bulk admin action outcomes, and membership status
// transitions.
//
//	metrics := observability.NewMetrics(registry)
//	metrics.PermissionChecksTotal.WithLabelValues("allowed").Inc()
//	metrics.BulkActionsTotal.WithLabelValues("delete_hard", "success").Inc()
//
// # Health Checks
//
// Liveness and readiness probes on a dedicated port; readiness checks
// PostgreSQL and (when configured) Redis:
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	observability.RegisterHealthRoutes(mux, checker)
//
// # OpenTelemetry
//
// Optional OTLP gRPC export of traces and metrics, disabled by default.
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/httputil: Request logging middleware
package observability
