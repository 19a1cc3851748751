package storage

import "time"

// Config for the storage backends
type Config struct {
	// PostgreSQL config
	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration
	PostgresMaxLife  time.Duration
	PostgresMaxIdle  time.Duration

	// Redis config (L2 resolution cache)
	RedisURL      string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	// Cache config
	CacheEnabled bool
	L1CacheSize  int
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		PostgresMaxLife:  30 * time.Minute,
		PostgresMaxIdle:  5 * time.Minute,
		RedisDB:          0,
		RedisPoolSize:    10,
		CacheEnabled:     true,
		L1CacheSize:      4096, // entries
	}
}
