// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	GUILDHALL_HOST="0.0.0.0"
//	GUILDHALL_PORT="8080"
//	GUILDHALL_HEALTH_PORT="9090"
//	GUILDHALL_READ_TIMEOUT="15s"
//	GUILDHALL_WRITE_TIMEOUT="15s"
//
// Storage settings:
//
//	GUILDHALL_POSTGRES_URL="postgres://localhost/guildhall"
//	GUILDHALL_POSTGRES_MAX_CONNS="20"
//	GUILDHALL_CACHE_ENABLED="true"
//	GUILDHALL_REDIS_URL="redis://localhost:6379"
//	GUILDHALL_L1_CACHE_SIZE="4096"
//
// Engine settings:
//
//	GUILDHALL_RESOLUTION_CACHE_TTL="30s"
//	GUILDHALL_BULK_WORKERS="4"
//	GUILDHALL_BULK_MAX_TARGETS="1000"
//	GUILDHALL_INVITATION_EXPIRY="720h"
//	GUILDHALL_AUDIT_RETENTION="8760h"
//
// Observability settings:
//
//	GUILDHALL_LOG_LEVEL="info"  # debug, info, warn, error
//	GUILDHALL_METRICS_ENABLED="true"
//	GUILDHALL_AUDIT_SINKS="db,file"
//	GUILDHALL_OTEL_ENABLED="false"
//	GUILDHALL_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/observability: Uses observability configuration
package config
