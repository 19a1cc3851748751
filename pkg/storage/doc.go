// Package storage manages the PostgreSQL connection pool, the Redis client
// backing the resolution cache, and the in-code schema migrations.
//
// # Connections
//
//	db, err := storage.Connect(ctx, cfg.Storage)
//	redisClient, err := storage.ConnectRedis(ctx, cfg.Storage)
//
// ConnectRedis returns a nil client when caching is disabled; callers treat
// a nil client as "no L2 cache".
//
// # Migrations
//
// Migrations are plain SQL carried in code and tracked in the
// schema_migrations table. Each runs in its own transaction:
//
//	if err := storage.RunMigrations(ctx, db); err != nil {
//		log.Fatal(err)
//	}
//
// # Related Packages
//
//   - pkg/config: Populates storage.Config from the environment
//   - pkg/catalog: Seeds the permission catalog after migration
package storage
