package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/guildhall-io/guildhall/pkg/accounts"
	"github.com/guildhall-io/guildhall/pkg/adminops"
	"github.com/guildhall-io/guildhall/pkg/api"
	"github.com/guildhall-io/guildhall/pkg/audit"
	"github.com/guildhall-io/guildhall/pkg/authz"
	"github.com/guildhall-io/guildhall/pkg/catalog"
	"github.com/guildhall-io/guildhall/pkg/config"
	"github.com/guildhall-io/guildhall/pkg/groups"
	"github.com/guildhall-io/guildhall/pkg/httputil"
	"github.com/guildhall-io/guildhall/pkg/membership"
	"github.com/guildhall-io/guildhall/pkg/middleware"
	"github.com/guildhall-io/guildhall/pkg/notify"
	"github.com/guildhall-io/guildhall/pkg/observability"
	"github.com/guildhall-io/guildhall/pkg/roles"
	"github.com/guildhall-io/guildhall/pkg/selection"
	"github.com/guildhall-io/guildhall/pkg/storage"
)

func main() {
	seedPath := flag.String("catalog-seed", "", "Path to a YAML catalog seed; empty uses the built-in catalog")
	skipMigrations := flag.Bool("skip-migrations", false, "Skip running database migrations on startup")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := observability.WithLogger(context.Background(), logger)

	if err := run(ctx, cfg, logger, *seedPath, *skipMigrations); err != nil {
		logger.WithError(err).Error("server exited")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger, seedPath string, skipMigrations bool) error {
	db, err := storage.Connect(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer db.Close()

	redisClient, err := storage.ConnectRedis(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	if redisClient != nil {
		logger.Info("Redis resolution cache enabled")
	}

	if !skipMigrations {
		if err := storage.RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	// Permission catalog: built-in seed unless an operator file overrides it
	catalogStore := catalog.NewPostgresStore(db)
	seed := catalog.DefaultSeed()
	if seedPath != "" {
		if seed, err = catalog.LoadSeedFile(seedPath); err != nil {
			return fmt.Errorf("failed to load catalog seed: %w", err)
		}
	}
	if err := catalogStore.Apply(ctx, seed); err != nil {
		return fmt.Errorf("failed to apply catalog seed: %w", err)
	}

	groupSvc := groups.NewPostgresService(db)
	if err := groupSvc.BootstrapSystemGroups(ctx); err != nil {
		return fmt.Errorf("failed to bootstrap system groups: %w", err)
	}

	var registry *prometheus.Registry
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
	}

	auditLogger, err := buildAuditLogger(db, cfg.Observability)
	if err != nil {
		return fmt.Errorf("failed to build audit logger: %w", err)
	}

	// Resolution engine and protected-state guards
	cache := authz.NewCache(cfg.Storage.L1CacheSize, cfg.Engine.ResolutionCacheTTL, redisClient)
	resolver := authz.NewResolver(db, cache, metrics)
	guards := authz.NewGuards(metrics)

	membershipSvc := membership.NewPostgresService(db, guards)
	membershipSvc.SetInvalidator(resolver)
	membershipSvc.SetMetrics(metrics)

	roleSvc := roles.NewPostgresService(db, resolver, guards)
	roleSvc.SetInvalidator(resolver)

	accountSvc := accounts.NewPostgresService(db)

	var notifier adminops.Notifier
	if cfg.Engine.NotifyWebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Engine.NotifyWebhookURL, cfg.Engine.BulkWorkers, logger)
	}
	orchestrator := adminops.NewOrchestrator(accountSvc, membershipSvc, notifier)
	orchestrator.SetMetrics(metrics)
	orchestrator.SetMaxTargets(cfg.Engine.BulkMaxTargets)

	pages, err := selection.NewPageCache(256)
	if err != nil {
		return fmt.Errorf("failed to build page cache: %w", err)
	}

	server := api.NewServer(api.Options{
		Logger:      logger,
		Groups:      groupSvc,
		Memberships: membershipSvc,
		Roles:       roleSvc,
		Accounts:    accountSvc,
		Catalog:     catalogStore,
		Resolver:    resolver,
		Bulk:        orchestrator,
		AuditSearch: auditLogger.searcher,
		Pages:       pages,
	})

	var bulkLimit func(http.Handler) http.Handler
	if redisClient != nil {
		bulkLimit = middleware.BulkActionLimit(
			middleware.NewRedisRateLimiter(redisClient, middleware.BulkActionRateLimitConfig(), "guildhall"))
	}

	router := mux.NewRouter()
	server.RegisterRoutes(router, bulkLimit)

	actorMW := middleware.NewActorMiddleware(sessionAdapter{accountSvc}, true)
	chain := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		auditContextMiddleware(auditLogger.sink),
		actorMW.Handler,
	}
	if metrics != nil {
		chain = append([]func(http.Handler) http.Handler{observability.HTTPMetricsMiddleware(metrics)}, chain...)
	}
	handler := httputil.Chain(chain...)(router)
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "guildhall")
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port for probes
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if registry != nil {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	sm := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(shutdownCtx context.Context) error {
		return healthServer.Shutdown(shutdownCtx)
	})
	sm.RegisterShutdownFunc(func(context.Context) error {
		return auditLogger.sink.Close()
	})
	if redisClient != nil {
		sm.RegisterShutdownFunc(func(context.Context) error {
			return redisClient.Close()
		})
	}

	if cfg.Observability.OTelEnabled {
		providers, err := observability.InitOTel(ctx, observability.OTelConfig{
			Enabled:        true,
			Endpoint:       cfg.Observability.OTelEndpoint,
			ServiceName:    cfg.Observability.OTelServiceName,
			ServiceVersion: cfg.Observability.OTelServiceVersion,
			Insecure:       cfg.Observability.OTelInsecure,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
		}
		sm.RegisterShutdownFunc(func(shutdownCtx context.Context) error {
			return observability.ShutdownOTel(shutdownCtx, providers, logger)
		})
	}

	scheduler, err := startMaintenance(ctx, cfg.Engine, logger, membershipSvc, auditLogger.db)
	if err != nil {
		return err
	}
	sm.RegisterShutdownFunc(func(shutdownCtx context.Context) error {
		stopCtx := scheduler.Stop()
		select {
		case <-stopCtx.Done():
			return nil
		case <-shutdownCtx.Done():
			return fmt.Errorf("maintenance jobs did not stop in time")
		}
	})

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("Health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("Guildhall server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server failed")
		}
	}()

	return sm.WaitForShutdown()
}

// sessionAdapter lets the actor middleware resolve Bearer tokens
// through the account service.
type sessionAdapter struct {
	accounts accounts.Service
}

func (a sessionAdapter) ResolveSession(ctx context.Context, token string) (int64, error) {
	user, err := a.accounts.GetUserBySessionToken(ctx, token)
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

// auditContextMiddleware puts the audit sink into every request context
// so services and the bulk orchestrator can write entries.
func auditContextMiddleware(sink audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(audit.WithLogger(r.Context(), sink)))
		})
	}
}

// auditSinks bundles the configured sink chain with its queryable and
// sweepable DB member, which is nil under a file-only configuration.
type auditSinks struct {
	sink     audit.Logger
	db       *audit.DBLogger
	searcher api.AuditSearcher
}

func buildAuditLogger(db *sql.DB, cfg config.ObservabilityConfig) (*auditSinks, error) {
	var sinks []audit.Logger
	result := &auditSinks{}

	for _, name := range strings.Split(cfg.AuditSinks, ",") {
		switch strings.TrimSpace(name) {
		case "db":
			dbLogger, err := audit.NewDBLogger(db)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, dbLogger)
			result.db = dbLogger
			result.searcher = dbLogger
		case "file":
			fileCfg := audit.DefaultFileLoggerConfig()
			fileCfg.BasePath = cfg.AuditFilePath
			fileLogger, err := audit.NewFileLogger(fileCfg)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, fileLogger)
		case "":
		default:
			return nil, fmt.Errorf("unknown audit sink %q", name)
		}
	}

	switch len(sinks) {
	case 0:
		return nil, fmt.Errorf("no audit sinks configured")
	case 1:
		result.sink = sinks[0]
	default:
		result.sink = audit.NewMultiLogger(sinks...)
	}
	return result, nil
}

// startMaintenance schedules the invitation and audit retention sweeps
func startMaintenance(ctx context.Context, cfg config.EngineConfig, logger *observability.Logger, memberships membership.Service, auditDB *audit.DBLogger) (*cron.Cron, error) {
	scheduler := cron.New()

	_, err := scheduler.AddFunc(cfg.InvitationSweepCron, func() {
		deleted, err := memberships.CleanupExpiredInvitations(ctx, cfg.InvitationExpiry)
		if err != nil {
			logger.WithError(err).Error("invitation sweep failed")
			return
		}
		logger.WithField("deleted", deleted).Info("invitation sweep complete")
	})
	if err != nil {
		return nil, fmt.Errorf("invalid invitation sweep schedule: %w", err)
	}

	if auditDB != nil {
		_, err = scheduler.AddFunc(cfg.AuditSweepCron, func() {
			cutoff := time.Now().UTC().Add(-cfg.AuditRetention)
			deleted, err := auditDB.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				logger.WithError(err).Error("audit retention sweep failed")
				return
			}
			logger.WithField("deleted", deleted).Info("audit retention sweep complete")
		})
		if err != nil {
			return nil, fmt.Errorf("invalid audit sweep schedule: %w", err)
		}
	}

	scheduler.Start()
	return scheduler, nil
}
