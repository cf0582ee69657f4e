// Package main is the entry point of the theory practice API.
//
// The server accepts answered practice batches, folds them into per-student
// progress (points, streaks, category mastery, achievements) and serves the
// resulting progress view.
//
// Architecture follows the usual DDD layering:
//   - Domain: scoring, streak and achievement rules without I/O
//   - Application: the submit command, the progress query, event handlers
//   - Infrastructure: PostgreSQL or SQLite storage, Redis locks and cache
//   - Interface: gin HTTP endpoints
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Application layer
	"github.com/drivetheory/theory-hub/internal/application/command"
	"github.com/drivetheory/theory-hub/internal/application/eventhandler"
	"github.com/drivetheory/theory-hub/internal/application/port"
	"github.com/drivetheory/theory-hub/internal/application/query"
	"github.com/drivetheory/theory-hub/internal/domain/achievement"

	// Infrastructure layer
	"github.com/drivetheory/theory-hub/internal/infrastructure/lock"
	"github.com/drivetheory/theory-hub/internal/infrastructure/messaging"
	"github.com/drivetheory/theory-hub/internal/infrastructure/observability"
	"github.com/drivetheory/theory-hub/internal/infrastructure/persistence/postgres"
	"github.com/drivetheory/theory-hub/internal/infrastructure/persistence/redis"
	"github.com/drivetheory/theory-hub/internal/infrastructure/persistence/sqlite"

	// Interface layer
	httpserver "github.com/drivetheory/theory-hub/internal/interface/http"
	"github.com/drivetheory/theory-hub/internal/interface/http/handlers"

	"github.com/drivetheory/theory-hub/config"
	"github.com/drivetheory/theory-hub/pkg/circuitbreaker"
	"github.com/drivetheory/theory-hub/pkg/logger"
	"github.com/drivetheory/theory-hub/pkg/retry"
	"github.com/drivetheory/theory-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until a shutdown signal arrives.
func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING AND TRACING
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    cfg.Observability.LogFormat,
		AddCaller: cfg.App.Debug,
	}).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
	)
	defer func() { _ = log.Sync() }()

	log.Info("starting theory hub",
		logger.String("store_driver", cfg.Store.Driver),
		logger.String("timezone", cfg.App.Timezone),
	)

	shutdownTracing := observability.InitTracing(ctx, log, observability.TracingConfig{
		ServiceName: cfg.App.Name,
		Environment: string(cfg.App.Environment),
		Version:     cfg.App.Version,
		Enabled:     cfg.Observability.TracingEnabled,
		Endpoint:    cfg.Observability.TracingEndpoint,
		Insecure:    cfg.Observability.TracingInsecure,
		SampleRatio: cfg.Observability.TracingSampleRatio,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORE AND MIGRATIONS
	// ─────────────────────────────────────────────────────────────────────────
	catalog, err := achievement.DefaultCatalog()
	if err != nil {
		return fmt.Errorf("failed to load achievement catalog: %w", err)
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close store", logger.Err(err))
		}
	}()

	syncCtx, syncCancel := context.WithTimeout(ctx, cfg.Store.QueryTimeout)
	err = store.Catalog().SyncCatalog(syncCtx, catalog.Definitions())
	syncCancel()
	if err != nil {
		return fmt.Errorf("failed to sync achievement catalog: %w", err)
	}
	log.Info("achievement catalog synced", logger.Int("definitions", len(catalog.Definitions())))

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	localLocker := lock.NewLocalLocker(cfg.Engine.LockWait)
	var (
		locker        port.StudentLocker = localLocker
		progressCache port.ProgressCache
		cache         *redis.Cache
	)

	if !cfg.Redis.Disabled {
		cache, err = connectRedis(ctx, cfg, log)
		if err != nil {
			log.Warn("redis unavailable, continuing with local locks and no progress cache", logger.Err(err))
		} else {
			defer func() {
				if err := cache.Close(); err != nil {
					log.Error("failed to close redis", logger.Err(err))
				}
			}()

			breaker := circuitbreaker.RedisBreaker(lock.IsPrimaryFailure, func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			})
			locker = lock.NewFallbackLocker(
				redis.NewStudentLocker(cache, cfg.Engine.LockTTL, cfg.Engine.LockWait),
				localLocker,
				breaker,
				log,
			)
			progressCache = redis.NewProgressCache(cache)
		}
	} else {
		log.Info("redis disabled, using local locks")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	// Synchronous delivery keeps cache invalidation ahead of the response.
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		AsyncMode:     false,
		Logger:        log,
		EnableMetrics: true,
	})
	defer func() {
		if err := bus.Close(); err != nil {
			log.Error("failed to close event bus", logger.Err(err))
		}
	}()

	var invalidator *eventhandler.OnSessionCompletedHandler
	if progressCache != nil {
		invalidator = eventhandler.NewOnSessionCompletedHandler(progressCache, log)
	}
	if err := eventhandler.Register(bus, invalidator, eventhandler.NewAuditLogHandler(log)); err != nil {
		return fmt.Errorf("failed to register event handlers: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	submitHandler := command.NewSubmitPracticeHandler(
		store,
		locker,
		achievement.NewEvaluator(catalog),
		timeutil.NewCalendar(cfg.App.Location, nil),
		cfg.Features,
		bus,
		log,
		command.SubmitPracticeHandlerConfig{
			Timeout:          cfg.Engine.SubmitTimeout,
			StatsConcurrency: cfg.Engine.StatsConcurrency,
		},
	)
	progressHandler := query.NewGetStudentProgressHandler(
		store,
		catalog,
		progressCache,
		cfg.Engine.ProgressCacheTTL,
		cfg.Features,
		log,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewHealthChecker(cfg.App.Version)
	health.AddCheck("store", handlers.PingCheck(store), true)
	if cache != nil {
		health.AddCheck("redis", handlers.PingCheck(cache), false)
	}

	serverCfg := httpserver.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverCfg.Debug = cfg.App.Debug

	server := httpserver.NewServer(serverCfg, httpserver.Dependencies{
		Submitter: submitHandler,
		Progress:  progressHandler,
		Health:    health,
		Logger:    log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 8. START
	// ─────────────────────────────────────────────────────────────────────────
	errCh := server.StartAsync()
	log.Info("theory hub is ready", logger.String("address", server.Address()))

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err, ok := <-errCh:
		if ok && err != nil {
			log.Error("server error", logger.Err(err))
			runErr = err
		}
	case <-ctx.Done():
		log.Info("context cancelled")
	}

	log.Info("shutting down", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	// 1. Stop accepting requests; in-flight submissions finish.
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Err(err))
	}

	// 2. Flush spans.
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracer shutdown error", logger.Err(err))
	}

	// 3. Bus, Redis and the store close through defers.
	log.Info("shutdown complete", logger.Any("events", bus.Metrics().Snapshot()))
	return runErr
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRING HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// openStore connects the configured backend and applies pending migrations.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (port.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		opts := postgres.DefaultPoolOptions()
		if cfg.Store.MaxOpenConns > 0 {
			opts.MaxConns = int32(cfg.Store.MaxOpenConns)
		}
		if cfg.Store.MaxIdleConns > 0 {
			opts.MinConns = int32(cfg.Store.MaxIdleConns)
		}
		if cfg.Store.ConnMaxLifetime > 0 {
			opts.MaxConnLifetime = cfg.Store.ConnMaxLifetime
		}
		if cfg.Store.ConnMaxIdleTime > 0 {
			opts.MaxConnIdleTime = cfg.Store.ConnMaxIdleTime
		}

		conn, err := retry.DoWithData(ctx, retry.ConnectConfig(), func(ctx context.Context) (*postgres.Connection, error) {
			conn, err := postgres.Connect(ctx, cfg.Store.URL, opts)
			if err != nil {
				log.Warn("postgres connect attempt failed", logger.Err(err))
			}
			return conn, err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		log.Info("connected to postgres")

		if cfg.Store.AutoMigrate {
			if err := migrate(ctx, postgres.NewMigrator(conn), log); err != nil {
				conn.Close()
				return nil, err
			}
		}
		return postgres.NewStore(conn), nil

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		log.Info("opened sqlite", logger.String("path", db.Path()))

		if cfg.Store.AutoMigrate {
			if err := migrate(ctx, sqlite.NewMigrator(db), log); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return sqlite.NewStore(db), nil

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

type migrator interface {
	Migrate(ctx context.Context) (int, error)
}

func migrate(ctx context.Context, m migrator, log *logger.Logger) error {
	applied, err := m.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("migrations applied", logger.Int("count", applied))
	return nil
}

// connectRedis dials Redis with retries. A failure is not fatal to the caller.
func connectRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) (*redis.Cache, error) {
	redisCfg := redis.DefaultConfig()
	redisCfg.URL = cfg.Redis.URL
	if cfg.Redis.Host != "" {
		redisCfg.Host = cfg.Redis.Host
	}
	if cfg.Redis.Port > 0 {
		redisCfg.Port = cfg.Redis.Port
	}
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB
	if cfg.Redis.PoolSize > 0 {
		redisCfg.PoolSize = cfg.Redis.PoolSize
	}
	if cfg.Redis.MinIdleConns > 0 {
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
	}
	if cfg.Redis.DialTimeout > 0 {
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
	}
	if cfg.Redis.ReadTimeout > 0 {
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
	}
	if cfg.Redis.WriteTimeout > 0 {
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cache, err := retry.DoWithData(connectCtx, retry.ConnectConfig(), func(ctx context.Context) (*redis.Cache, error) {
		return redis.NewCache(ctx, redisCfg)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("redis connect timed out: %w", err)
		}
		return nil, err
	}
	log.Info("connected to redis", logger.String("addr", redisCfg.Addr()))
	return cache, nil
}
