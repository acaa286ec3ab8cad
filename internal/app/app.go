package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/event"
	handler "github.com/utafrali/storefront/internal/handler/http"
	"github.com/utafrali/storefront/internal/identity"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/internal/repository/memory"
	"github.com/utafrali/storefront/internal/repository/postgres"
	redisrepo "github.com/utafrali/storefront/internal/repository/redis"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/internal/storefront"
	"github.com/utafrali/storefront/migrations"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/tracing"
)

// purgeInterval is how often expired rows are removed from the postgres
// state table.
const purgeInterval = 10 * time.Minute

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *goredis.Client
	pool           *pgxpool.Pool
	pgStore        *postgres.KVStore
	producer       *pkgkafka.Producer
	registry       *service.SessionRegistry
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc

	// routerCancel stops background work started by the router.
	routerCancel context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	healthHandler := health.NewHandler()

	// Initialize Redis when persistence or the catalog cache needs it.
	if cfg.NeedsRedis() {
		rdb, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
		if err != nil {
			return nil, a.abort(fmt.Errorf("connect to redis: %w", err))
		}
		a.rdb = rdb
		check := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		if cfg.PersistenceBackend == config.BackendRedis {
			healthHandler.Register("redis", check)
		} else {
			healthHandler.RegisterOptional("redis", check)
		}
	}

	kv, err := a.newKVStore(ctx, healthHandler)
	if err != nil {
		return nil, a.abort(err)
	}

	// Storefront API client behind a circuit breaker.
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.ShopRequestTimeout
	breaker := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpCfg),
		httpclient.DefaultCircuitBreakerConfig("storefront-api"),
		logger,
	)
	api := storefront.NewClient(cfg.Storefront(), breaker, logger)
	healthHandler.RegisterOptional("storefront-api", breaker.Healthy)
	logger.Info("storefront client initialized",
		slog.String("endpoint", cfg.Storefront().URL()),
	)

	// Events are optional; without brokers they are discarded.
	var events service.CartEvents = event.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		if err := producer.Ping(ctx); err != nil {
			logger.Warn("kafka producer ping failed, continuing in degraded mode",
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
		}
		a.producer = producer
		events = event.NewProducer(producer, logger)
		healthHandler.RegisterOptional("kafka", producer.Ping)
	} else {
		logger.Info("no kafka brokers configured, cart events are disabled")
	}

	// Catalog cache shares the Redis client.
	var cache goredis.UniversalClient
	if cfg.CatalogCacheEnabled && a.rdb != nil {
		cache = a.rdb
	}
	catalog := service.NewCatalogService(api, cache, cfg.CatalogCacheTTL, logger)

	// Build the dependency graph.
	a.registry = service.NewSessionRegistry(service.RegistryConfig{
		API:           api,
		KV:            kv,
		Events:        events,
		DefaultLocale: cfg.DefaultLocale(),
		IdleTTL:       cfg.SessionIdleTTL,
		Logger:        logger,
	})

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins

	routerCtx, routerCancel := context.WithCancel(context.Background())
	a.routerCancel = routerCancel

	// HTTP router.
	router := handler.NewRouter(routerCtx, handler.RouterConfig{
		ServiceName: config.ServiceName,
		Registry:    a.registry,
		Catalog:     catalog,
		Verifier:    identity.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		Health:      healthHandler,
		CORS:        corsCfg,
		RateLimit:   handler.RateLimitConfig{RPS: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst},
		PprofCIDRs:  cfg.PprofAllowedCIDRs,
		Logger:      logger,
	})

	// WriteTimeout stays zero so cart streams are not cut off; regular
	// routes are bounded by the router's timeout middleware.
	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// newKVStore builds the persistence backend selected in config.
func (a *App) newKVStore(ctx context.Context, healthHandler *health.Handler) (repository.KVStore, error) {
	switch a.cfg.PersistenceBackend {
	case config.BackendRedis:
		a.logger.Info("using redis persistence", slog.Duration("ttl", a.cfg.StateTTL))
		return redisrepo.NewKVStore(a.rdb, a.cfg.StateTTL), nil

	case config.BackendPostgres:
		pool, err := database.NewPostgresPool(ctx, a.cfg.Postgres(), a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, config.ServiceName); err != nil {
			a.logger.Warn("failed to register pool metrics", slog.String("error", err.Error()))
		}

		// Run database migrations.
		if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		a.logger.Info("database migrations completed")

		a.pgStore = postgres.NewKVStore(pool, a.cfg.StateTTL)
		healthHandler.Register("postgres", a.pgStore.Ping)
		return a.pgStore, nil

	case config.BackendMemory:
		a.logger.Warn("using in-memory persistence, state is lost on restart")
		return memory.NewKVStore(), nil

	default:
		return nil, fmt.Errorf("unknown persistence backend %q", a.cfg.PersistenceBackend)
	}
}

// abort releases whatever NewApp had opened before failing.
func (a *App) abort(err error) error {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.tracerShutdown != nil {
		_ = a.tracerShutdown(context.Background())
	}
	return err
}

// Run starts the HTTP server and background jobs, then blocks until the
// context is canceled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	// Start HTTP server.
	g.Go(func() error {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Evict idle sessions.
	g.Go(func() error {
		a.registry.Run(gctx)
		return nil
	})

	if a.pgStore != nil {
		g.Go(func() error {
			a.runStatePurge(gctx)
			return nil
		})
	}

	// Shut down once the context ends or a component fails.
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			a.logger.Info("shutdown signal received")
		}
		return a.Shutdown()
	})

	return g.Wait()
}

// runStatePurge periodically deletes expired rows from the state table.
func (a *App) runStatePurge(ctx context.Context) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.pgStore.PurgeExpired(ctx)
			if err != nil {
				a.logger.Error("state purge error", slog.String("error", err.Error()))
			} else if n > 0 {
				a.logger.Info("expired state purged", slog.Int64("rows", n))
			}
		}
	}
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
// 4. PostgreSQL pool and Redis client
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (10s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.routerCancel()

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Close Kafka producer.
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 4. Close stores.
	if a.pool != nil {
		a.pool.Close()
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
