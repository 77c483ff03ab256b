package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/azuma-miyu/filatelier/internal/cart"
	"github.com/azuma-miyu/filatelier/internal/catalog"
	"github.com/azuma-miyu/filatelier/internal/checkout"
	"github.com/azuma-miyu/filatelier/internal/config"
	"github.com/azuma-miyu/filatelier/internal/event"
	handler "github.com/azuma-miyu/filatelier/internal/handler/http"
	"github.com/azuma-miyu/filatelier/internal/identity"
	"github.com/azuma-miyu/filatelier/internal/order"
	"github.com/azuma-miyu/filatelier/internal/payment"
	"github.com/azuma-miyu/filatelier/internal/store"
	"github.com/azuma-miyu/filatelier/internal/store/disabled"
	"github.com/azuma-miyu/filatelier/internal/store/file"
	"github.com/azuma-miyu/filatelier/internal/store/memory"
	"github.com/azuma-miyu/filatelier/internal/store/postgres"
	"github.com/azuma-miyu/filatelier/internal/store/redis"
	"github.com/azuma-miyu/filatelier/pkg/database"
	apperrors "github.com/azuma-miyu/filatelier/pkg/errors"
	"github.com/azuma-miyu/filatelier/pkg/health"
	"github.com/azuma-miyu/filatelier/pkg/httpclient"
	pkgkafka "github.com/azuma-miyu/filatelier/pkg/kafka"
	"github.com/azuma-miyu/filatelier/pkg/middleware"
	"github.com/azuma-miyu/filatelier/pkg/tracing"
)

// App wires together all dependencies and runs the storefront.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	limiter        *middleware.RateLimiter
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
// The cart is hydrated from the configured store before the server starts.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerCfg := tracing.DefaultConfig("storefront")
	tracerCfg.Environment = cfg.Environment
	tracerCfg.OTLPEndpoint = cfg.OTELEndpoint
	tracerCfg.SampleRate = cfg.OTELSampleRate
	tracerCfg.Enabled = cfg.OTELEnabled
	tracerShutdown, err := tracing.InitTracer(ctx, tracerCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	backend, err := a.openStore(ctx)
	if err != nil {
		_ = a.closeResources()
		return nil, err
	}
	adapter := store.NewAdapter(backend, logger,
		store.WithKey(cfg.StoreKey),
		store.WithTimeout(cfg.StoreTimeout),
	)

	engine := cart.NewEngine(adapter, logger, cart.WithSelection(cfg.SelectionEnabled))
	engine.Hydrate(ctx)

	// Outbound HTTP. Payment and order calls are never retried automatically.
	client := httpclient.New(httpclient.DefaultConfig())

	var cat catalog.Catalog
	switch cfg.CatalogMode {
	case config.CatalogHTTP:
		cbClient := httpclient.NewCircuitBreakerClient(client,
			httpclient.DefaultCircuitBreakerConfig("storefront-catalog"), logger)
		cat = catalog.NewHTTPCatalog(cbClient, cfg.CatalogURL, logger)
		logger.Info("using catalog service", slog.String("url", cfg.CatalogURL))
	default:
		cat = catalog.NewMemoryCatalog(catalog.Seed()...)
		logger.Info("using built-in catalog")
	}

	backendClient := httpclient.NewCircuitBreakerClient(client,
		httpclient.DefaultCircuitBreakerConfig("storefront-backend"), logger).
		WithFallback(backendCircuitOpen)

	var policy checkout.PaymentPolicy
	switch cfg.PaymentMode {
	case config.PaymentGateway:
		policy = checkout.NewGatewayPolicy(payment.NewHTTPGateway(backendClient, cfg.BackendURL, logger))
	case config.PaymentDemo:
		policy = checkout.NewDemoPolicy(cfg.DemoDelay)
	default:
		policy = checkout.NewGatewayPolicy(payment.NewMockGateway())
	}
	logger.Info("payment policy selected", slog.String("mode", cfg.PaymentMode))

	var recorder order.Recorder
	if cfg.BackendURL != "" {
		recorder = order.NewHTTPRecorder(backendClient, cfg.BackendURL, logger)
	} else {
		recorder = order.NewMemoryRecorder()
		logger.Warn("BACKEND_URL is not set; orders are recorded in memory only")
	}

	var publisher event.Publisher = event.Noop{}
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = event.NewProducer(a.producer, logger)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	checkoutCfg := checkout.Config{
		Timeouts: checkout.Timeouts{
			Intent:  cfg.IntentTimeout,
			Confirm: cfg.ConfirmTimeout,
			Record:  cfg.RecordTimeout,
		},
		PreviewFallback: cfg.PreviewFallback,
		Partial:         cfg.Partial,
		VerifyStock:     cfg.VerifyStock,
		SessionTTL:      cfg.SessionTTL,
	}
	orchestrator := checkout.NewOrchestrator(checkout.Dependencies{
		Cart:      engine,
		Identity:  identity.Context{},
		Catalog:   cat,
		Policy:    policy,
		Recorder:  recorder,
		Publisher: publisher,
	}, checkoutCfg, logger)

	// Health checks. A broken store degrades persistence but the cart keeps
	// working in memory, so the store is not critical.
	healthHandler := health.NewHandler()
	healthHandler.RegisterNonCritical("store", adapter.Ping)
	if a.producer != nil {
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
	}

	if cfg.RateLimitEnabled() {
		a.limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute, logger)
	}

	cors := middleware.DefaultCORSConfig()
	cors.Environment = cfg.Environment

	router := handler.NewRouter(handler.RouterDeps{
		Cart:        engine,
		Catalog:     cat,
		Checkouts:   orchestrator,
		Verifier:    identity.NewJWTVerifier(cfg.JWTSecret),
		Health:      healthHandler,
		CORS:        cors,
		RateLimiter: a.limiter,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// backendCircuitOpen replaces ErrCircuitOpen with a structured error so the
// shopper sees a retry hint instead of a transport failure.
func backendCircuitOpen(_ context.Context, _ error) (*http.Response, error) {
	return nil, apperrors.ServiceUnavailable("the storefront backend is temporarily unavailable, please retry shortly")
}

// openStore builds the cart store backend selected by STORE_BACKEND.
func (a *App) openStore(ctx context.Context) (store.Backend, error) {
	cfg := a.cfg
	switch cfg.StoreBackend {
	case config.BackendRedis:
		client, err := database.NewRedisClient(ctx, database.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		a.logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))
		return redis.New(client, cfg.RedisTTL), nil

	case config.BackendPostgres:
		pgCfg := database.DefaultPoolConfig(cfg.PostgresDSN)
		pool, err := database.OpenPool(ctx, pgCfg, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		a.logger.Info("connected to PostgreSQL")
		database.RegisterPoolMetrics(pool, "storefront")
		if cfg.SlowQueryThresholdMs > 0 {
			database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, a.logger)
		}

		if err := postgres.Migrate(ctx, pool, a.logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		a.logger.Info("database migrations completed")
		return postgres.New(pool), nil

	case config.BackendMemory:
		return memory.New(), nil

	case config.BackendDisabled:
		a.logger.Warn("cart persistence is disabled")
		return disabled.New(), nil

	default:
		a.logger.Info("storing cart on disk", slog.String("dir", cfg.StoreDir))
		return file.New(cfg.StoreDir), nil
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer, rate limiter and store connections
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests. A checkout confirmation may take up
	// to CONFIRM_TIMEOUT plus RECORD_TIMEOUT.
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Flush pending spans.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Release the remaining resources.
	errs = append(errs, a.closeResources())

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	var errs []error
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
