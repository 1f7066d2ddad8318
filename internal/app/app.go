package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/cart"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/config"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/event"
	handler "github.com/JoaquinSabater/EcommerceCPF-sub000/internal/handler/http"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/pricing"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/ratesource"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/repository/postgres"
	redisstore "github.com/JoaquinSabater/EcommerceCPF-sub000/internal/repository/redis"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/service"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/migrations"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/database"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/health"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/httpclient"
	pkgkafka "github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/kafka"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/middleware"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/tracing"
)

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	carts          *cart.Registry
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "storefront",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, "storefront")

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Configure slow query logging.
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	// Initialize Redis for cart snapshots.
	redisClient, err := database.NewRedisClient(ctx, database.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))

	// Initialize Kafka producer.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Exchange rates: the rate service behind a circuit breaker, then the
	// static rates.
	var providers ratesource.Chain
	if cfg.RateServiceURL != "" {
		cbCfg := httpclient.CircuitBreakerConfig{
			Name:         "rate-service",
			MaxRequests:  cfg.CBMaxRequests,
			Interval:     time.Duration(cfg.CBInterval) * time.Second,
			Timeout:      time.Duration(cfg.CBTimeout) * time.Second,
			FailureRatio: cfg.CBFailureRatio,
			MinRequests:  cfg.CBMinRequests,
		}
		cbClient := httpclient.NewCircuitBreakerClient(httpclient.New(httpclient.DefaultConfig()), cbCfg, logger)
		providers = append(providers, ratesource.NewHTTPProvider(cbClient, cfg.RateServiceURL))
		logger.Info("circuit breaker initialized",
			slog.String("name", cbCfg.Name),
			slog.Uint64("max_requests", uint64(cbCfg.MaxRequests)),
			slog.Int("timeout_seconds", cfg.CBTimeout),
			slog.Uint64("min_requests", uint64(cbCfg.MinRequests)),
		)
	}
	providers = append(providers, ratesource.NewStaticProvider(cfg.RateStaticGeneral, cfg.RateStaticSpecial))
	rateBook := pricing.NewRateBook(providers, cfg.RateCacheTTL(), logger)
	pipeline := pricing.NewPipeline(cfg.DiscountExcludedCategories, cfg.SpecialRateCategories)

	// Cart sessions, persisted to Redis.
	carts, err := cart.NewRegistry(
		cfg.CartSessionCacheSize,
		redisstore.NewCartStores(redisClient, cfg.CartTTL(), logger).For,
		logger,
	)
	if err != nil {
		_ = producer.Close()
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("create cart registry: %w", err)
	}

	// Build the dependency graph.
	orderService := service.NewOrderService(
		postgres.NewOrderRepository(pool),
		event.NewProducer(producer, logger),
		logger,
	)
	storefrontService := service.NewStorefrontService(
		carts,
		postgres.NewCatalogRepository(pool),
		postgres.NewCustomerRepository(pool),
		pipeline,
		rateBook,
		orderService,
		logger,
	)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	router := handler.NewRouter(storefrontService, orderService, healthHandler, logger, handler.RouterConfig{
		CORS:                 middleware.DefaultCORSConfig(cfg.Environment, cfg.CORSAllowedOrigins),
		PprofAllowedCIDRs:    cfg.PprofAllowedCIDRs,
		SubmitRateLimitRPS:   cfg.SubmitRateLimitRPS,
		SubmitRateLimitBurst: cfg.SubmitRateLimitBurst,
		TrustedProxies:       cfg.TrustedProxyCIDRs,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		carts:          carts,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Cart sessions (flush pending snapshot writes to Redis)
// 3. Tracer (flush pending spans from drained requests)
// 4. Kafka producer
// 5. Redis client and PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Flush cart snapshots while Redis is still open (5s budget).
	cartCtx, cartCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cartCancel()
	if err := a.carts.Close(cartCtx); err != nil {
		a.logger.Error("cart registry close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 3. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 4. Close Kafka producer.
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 5. Close Redis and PostgreSQL.
	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
