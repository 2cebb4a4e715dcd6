package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/strideworks/stride/pkg/api"
	"github.com/strideworks/stride/pkg/audit"
	"github.com/strideworks/stride/pkg/authz"
	"github.com/strideworks/stride/pkg/config"
	"github.com/strideworks/stride/pkg/observability"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel(), os.Stdout)
	logger.WithField("port", cfg.Server.Port).Info("starting stride authorization service")

	db, err := openDatabase(cfg)
	if err != nil {
		logger.WithError(err).Error("failed to open database")
		os.Exit(1)
	}

	ctx := context.Background()
	if err := authz.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("failed to run migrations")
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.WithError(err).Error("invalid redis url")
			os.Exit(1)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		opts.DB = cfg.Redis.DB
		opts.PoolSize = cfg.Redis.PoolSize
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// The layered cache degrades to local-only, so a redis outage
			// at boot is not fatal.
			logger.WithError(err).Warn("redis unreachable at startup")
		}
	}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	auditLog, closeAudit, err := buildAuditLogger(cfg, db)
	if err != nil {
		logger.WithError(err).Error("failed to initialize audit logging")
		os.Exit(1)
	}

	store := authz.NewStore(db)
	cache := authz.NewLayeredCache(authz.LayeredCacheConfig{
		Redis:     redisClient,
		TTL:       cfg.Cache.ContextTTL,
		LocalSize: cfg.Cache.LocalSize,
		Metrics:   metrics,
	})
	builder := authz.NewContextBuilder(store, cache,
		authz.WithBuilderLogger(logger),
		authz.WithBuilderMetrics(metrics))
	engine := authz.NewEngine(
		authz.WithAuditLogger(auditLog),
		authz.WithMetrics(metrics),
		authz.WithLogger(logger))
	assignments := authz.NewAssignmentService(store, builder,
		authz.WithAssignmentAudit(auditLog),
		authz.WithAssignmentLogger(logger),
		authz.WithAssignmentMetrics(metrics))

	dbAudit, err := audit.NewDBLogger(db)
	if err != nil {
		logger.WithError(err).Error("failed to initialize audit search")
		os.Exit(1)
	}

	server := api.NewServer(api.ServerConfig{
		DB:                   db,
		Redis:                redisClient,
		AuthzStore:           store,
		Builder:              builder,
		Engine:               engine,
		Assignments:          assignments,
		AuditSearch:          dbAudit,
		Logger:               logger,
		Metrics:              metrics,
		RateLimit:            cfg.RateLimit.Enabled,
		DistributedRateLimit: cfg.RateLimit.Distributed,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthServer := startHealthServer(cfg, db, redisClient, registry, logger)

	sweeper := startSweeper(assignments, logger)

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("http server failed")
			os.Exit(1)
		}
	}()

	sm := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		stop := sweeper.Stop()
		select {
		case <-stop.Done():
		case <-ctx.Done():
		}
		return nil
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return closeAudit()
	})
	if redisClient != nil {
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return db.Close()
	})

	if err := sm.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// buildAuditLogger assembles the audit sink: always the database, plus the
// JSON-lines file sink when a path is configured.
func buildAuditLogger(cfg *config.Config, db *sql.DB) (audit.Logger, func() error, error) {
	dbLogger, err := audit.NewDBLogger(db)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Audit.FilePath == "" {
		return dbLogger, dbLogger.Close, nil
	}

	fileLogger, err := audit.NewFileLogger(audit.FileLoggerConfig{
		BasePath: cfg.Audit.FilePath,
		MaxSize:  cfg.Audit.FileMaxSize,
	})
	if err != nil {
		return nil, nil, err
	}
	multi := audit.NewMultiLogger(dbLogger, fileLogger)
	return multi, multi.Close, nil
}

func startHealthServer(cfg *config.Config, db *sql.DB, redisClient *redis.Client, registry *prometheus.Registry, logger *observability.Logger) *http.Server {
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}

	srv := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
	go func() {
		logger.WithField("addr", srv.Addr).Info("health server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()
	return srv
}

// startSweeper schedules the expired-grant sweep. Expiry is also enforced at
// read time; the sweep keeps the table and the audit trail tidy.
func startSweeper(assignments *authz.AssignmentService, logger *observability.Logger) *cron.Cron {
	c := cron.New()
	_, err := c.AddFunc(config.DefaultSweepSchedule, func() {
		defer observability.RecoverPanic(logger, "expired-grant sweep")
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		removed, err := assignments.SweepExpired(ctx)
		if err != nil {
			logger.WithError(err).Error("expired-grant sweep failed")
			return
		}
		if removed > 0 {
			logger.WithField("removed", removed).Info("swept expired role grants")
		}
	})
	if err != nil {
		logger.WithError(err).Error("failed to schedule expired-grant sweep")
	}
	c.Start()
	return c
}
