package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildhall-io/guildhall/pkg/observability"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("GUILDHALL_POSTGRES_URL", "postgres://localhost/guildhall_test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.Equal(t, 4, cfg.Engine.BulkWorkers)
	assert.Equal(t, 1000, cfg.Engine.BulkMaxTargets)
	assert.Equal(t, 30*24*time.Hour, cfg.Engine.InvitationExpiry)
	assert.Equal(t, 365*24*time.Hour, cfg.Engine.AuditRetention)
	assert.Equal(t, "db", cfg.Observability.AuditSinks)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("GUILDHALL_POSTGRES_URL", "postgres://db:5432/guildhall")
	t.Setenv("GUILDHALL_PORT", "9000")
	t.Setenv("GUILDHALL_LOG_LEVEL", "debug")
	t.Setenv("GUILDHALL_BULK_WORKERS", "8")
	t.Setenv("GUILDHALL_RESOLUTION_CACHE_TTL", "2m")
	t.Setenv("GUILDHALL_AUDIT_SINKS", "db,file")
	t.Setenv("GUILDHALL_AUDIT_FILE_PATH", "/tmp/audit.ndjson")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.Equal(t, 8, cfg.Engine.BulkWorkers)
	assert.Equal(t, 2*time.Minute, cfg.Engine.ResolutionCacheTTL)
	assert.Equal(t, "db,file", cfg.Observability.AuditSinks)
}

func TestLoadConfig_MissingPostgresURL(t *testing.T) {
	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres URL is required")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Server.Port = "8080"
		cfg.Server.HealthPort = "9090"
		cfg.Storage.PostgresURL = "postgres://localhost/guildhall"
		cfg.Engine.BulkWorkers = 4
		cfg.Engine.BulkMaxTargets = 1000
		cfg.Observability.AuditSinks = "db"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "same port for server and health",
			mutate:  func(c *Config) { c.Server.HealthPort = "8080" },
			wantErr: "must be different",
		},
		{
			name: "cache enabled without redis",
			mutate: func(c *Config) {
				c.Storage.CacheEnabled = true
			},
			wantErr: "redis URL is required",
		},
		{
			name:    "zero bulk workers",
			mutate:  func(c *Config) { c.Engine.BulkWorkers = 0 },
			wantErr: "bulk workers",
		},
		{
			name:    "unknown audit sink",
			mutate:  func(c *Config) { c.Observability.AuditSinks = "syslog" },
			wantErr: "invalid audit sink",
		},
		{
			name: "file sink without path",
			mutate: func(c *Config) {
				c.Observability.AuditSinks = "db,file"
				c.Observability.AuditFilePath = ""
			},
			wantErr: "audit file path",
		},
		{
			name: "otel enabled without endpoint",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelServiceName = "guildhall"
			},
			wantErr: "OpenTelemetry endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, observability.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, observability.WarnLevel, parseLogLevel("WARNING"))
	assert.Equal(t, observability.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, observability.InfoLevel, parseLogLevel("bogus"))
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "45s")
	assert.Equal(t, 45*time.Second, getEnvDuration("TEST_DURATION", time.Minute))

	t.Setenv("TEST_DURATION_BAD", "not-a-duration")
	assert.Equal(t, time.Minute, getEnvDuration("TEST_DURATION_BAD", time.Minute))
}
