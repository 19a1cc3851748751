package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/guildhall-io/guildhall/pkg/observability"
	"github.com/guildhall-io/guildhall/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Engine tuning
	Engine EngineConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// EngineConfig tunes the permission engine and background maintenance
type EngineConfig struct {
	// Resolution cache
	ResolutionCacheTTL time.Duration

	// Bulk execution
	BulkWorkers    int
	BulkMaxTargets int

	// Outbound notification webhook; empty disables message/notify
	NotifyWebhookURL string

	// Background maintenance
	InvitationExpiry    time.Duration
	AuditRetention      time.Duration
	InvitationSweepCron string
	AuditSweepCron      string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// Audit sink: "db", "file", or "db,file". AuditFilePath is the
	// directory file sinks write into.
	AuditSinks    string
	AuditFilePath string

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Engine:        loadEngineConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("GUILDHALL_HOST", "0.0.0.0"),
		Port:            getEnv("GUILDHALL_PORT", "8080"),
		ReadTimeout:     getEnvDuration("GUILDHALL_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GUILDHALL_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GUILDHALL_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GUILDHALL_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("GUILDHALL_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if pgURL := getEnv("GUILDHALL_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("GUILDHALL_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("GUILDHALL_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("GUILDHALL_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	if redisURL := getEnv("GUILDHALL_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("GUILDHALL_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("GUILDHALL_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisPoolSize := getEnvInt("GUILDHALL_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	if cacheEnabled := getEnv("GUILDHALL_CACHE_ENABLED", ""); cacheEnabled != "" {
		cfg.CacheEnabled = strings.ToLower(cacheEnabled) == "true"
	}
	if l1CacheSize := getEnvInt("GUILDHALL_L1_CACHE_SIZE", 0); l1CacheSize > 0 {
		cfg.L1CacheSize = l1CacheSize
	}

	return cfg
}

// loadEngineConfig loads permission engine tuning from environment
func loadEngineConfig() EngineConfig {
	return EngineConfig{
		ResolutionCacheTTL:  getEnvDuration("GUILDHALL_RESOLUTION_CACHE_TTL", 30*time.Second),
		BulkWorkers:         getEnvInt("GUILDHALL_BULK_WORKERS", 4),
		BulkMaxTargets:      getEnvInt("GUILDHALL_BULK_MAX_TARGETS", 1000),
		NotifyWebhookURL:    getEnv("GUILDHALL_NOTIFY_WEBHOOK_URL", ""),
		InvitationExpiry:    getEnvDuration("GUILDHALL_INVITATION_EXPIRY", 30*24*time.Hour),
		AuditRetention:      getEnvDuration("GUILDHALL_AUDIT_RETENTION", 365*24*time.Hour),
		InvitationSweepCron: getEnv("GUILDHALL_INVITATION_SWEEP_CRON", "17 2 * * *"),
		AuditSweepCron:      getEnv("GUILDHALL_AUDIT_SWEEP_CRON", "43 3 * * *"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("GUILDHALL_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("GUILDHALL_METRICS_ENABLED", true),
		AuditSinks:         getEnv("GUILDHALL_AUDIT_SINKS", "db"),
		AuditFilePath:      getEnv("GUILDHALL_AUDIT_FILE_PATH", "/var/log/guildhall/audit"),
		OTelEnabled:        getEnvBool("GUILDHALL_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("GUILDHALL_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("GUILDHALL_OTEL_SERVICE_NAME", "guildhall"),
		OTelServiceVersion: getEnv("GUILDHALL_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("GUILDHALL_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.CacheEnabled && c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required when the resolution cache is enabled")
	}

	if c.Engine.BulkWorkers < 1 {
		return fmt.Errorf("bulk workers must be at least 1")
	}
	if c.Engine.BulkMaxTargets < 1 {
		return fmt.Errorf("bulk max targets must be at least 1")
	}

	for _, sink := range strings.Split(c.Observability.AuditSinks, ",") {
		switch strings.TrimSpace(sink) {
		case "db", "file":
		default:
			return fmt.Errorf("invalid audit sink: %s (must be db or file)", sink)
		}
	}
	if strings.Contains(c.Observability.AuditSinks, "file") && c.Observability.AuditFilePath == "" {
		return fmt.Errorf("audit file path is required for the file audit sink")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
