package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	checkoutapp "github.com/shipfunnel/backend/internal/application/checkout"
	quoteapp "github.com/shipfunnel/backend/internal/application/quote"
	settlementapp "github.com/shipfunnel/backend/internal/application/settlement"
	webhookapp "github.com/shipfunnel/backend/internal/application/webhook"
	"github.com/shipfunnel/backend/internal/domain/shared"
	"github.com/shipfunnel/backend/internal/infrastructure/auth"
	"github.com/shipfunnel/backend/internal/infrastructure/billing"
	"github.com/shipfunnel/backend/internal/infrastructure/cache"
	"github.com/shipfunnel/backend/internal/infrastructure/config"
	"github.com/shipfunnel/backend/internal/infrastructure/distance"
	"github.com/shipfunnel/backend/internal/infrastructure/jobqueue"
	"github.com/shipfunnel/backend/internal/infrastructure/logger"
	"github.com/shipfunnel/backend/internal/infrastructure/notify"
	"github.com/shipfunnel/backend/internal/infrastructure/persistence"
	"github.com/shipfunnel/backend/internal/infrastructure/retry"
	"github.com/shipfunnel/backend/internal/infrastructure/scheduler"
	"github.com/shipfunnel/backend/internal/infrastructure/telemetry"
	"github.com/shipfunnel/backend/internal/interfaces/http/handler"
	"github.com/shipfunnel/backend/internal/interfaces/http/middleware"
	"github.com/shipfunnel/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting payment funnel",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()

	// Telemetry is a no-op unless enabled
	telemetryCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		ServiceName:       cfg.Telemetry.ServiceName,
		Environment:       cfg.App.Env,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
	}
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetryCfg, cfg.Telemetry.ExportLogs, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	log = loggerProvider.Bridge(log, cfg.Telemetry.ServiceName, zapcore.InfoLevel)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilerAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
		if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down logger provider", zap.Error(err))
		}
	}()

	// Cache backs rate limiting, dedup markers and the dispatch policy
	sharedCache, err := cache.NewFactory(cfg.Cache,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.Cache.AllowMemoryFallback),
	).Create()
	if err != nil {
		log.Fatal("Failed to initialize cache", zap.Error(err))
	}
	defer func() {
		if err := sharedCache.Close(); err != nil {
			log.Error("Error closing cache", zap.Error(err))
		}
	}()
	dedup := cache.NewDedupStore(sharedCache)

	// Client record store
	db, err := persistence.NewDatabase(&cfg.Database, cfg.Log.Level, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if tracerProvider.IsEnabled() {
		if err := telemetry.RegisterGormTracing(db.DB, cfg.Database.Driver, nil, log); err != nil {
			log.Warn("Database tracing unavailable", zap.Error(err))
		}
	}
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))
	records := persistence.NewGormClientRecordStore(db.DB)

	// Payment provider
	gateway, err := billing.NewStripeAdapter(billing.NewStripeConfig(cfg.Stripe), nil, log)
	if err != nil {
		log.Fatal("Failed to initialize payment gateway", zap.Error(err))
	}

	// Background jobs; metrics observe the queue and the queue reports to metrics
	var metrics *telemetry.FunnelMetrics
	queue := jobqueue.New(jobqueue.Config{Concurrency: cfg.Queue.Concurrency}, log,
		jobqueue.WithFinishHook(func(ctx context.Context, job *jobqueue.Job, err error) {
			metrics.JobFinished(ctx, job.Name, err != nil)
		}),
	)
	metrics, err = telemetry.NewFunnelMetrics(meterProvider.Meter("github.com/shipfunnel/backend"), queue.Depth)
	if err != nil {
		log.Fatal("Failed to register funnel metrics", zap.Error(err))
	}
	defer func() {
		_ = metrics.Close()
	}()

	// Application services
	calculator, err := quoteapp.NewCalculator(cfg.Quote, cfg.Fees, distance.NewGoogleMatrix(cfg.Distance, log), sharedCache, log)
	if err != nil {
		log.Fatal("Failed to initialize quote calculator", zap.Error(err))
	}
	settlementService := settlementapp.NewService(gateway, records, calculator, sharedCache, queue, cfg, log,
		settlementapp.WithMetrics(metrics),
	)
	processor := webhookapp.NewProcessor(webhookapp.ProcessorConfig{
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Gateway:       gateway,
		Store:         records,
		Notifier:      notify.NewLogNotifier(cfg.Notify.From, log),
		Dedup:         dedup,
		DedupTTL:      cfg.Webhook.DedupTTL,
		Queue:         queue,
		Settler:       settlementService,
		ReceiptPolicy: retry.Policy{
			MaxAttempts: cfg.Webhook.ReceiptMaxAttempts,
			Backoff:     retry.Exponential(cfg.Webhook.ReceiptBaseDelay, cfg.Webhook.ReceiptMaxDelay),
		},
		AgencyName: cfg.Notify.AgencyName,
		Metrics:    metrics,
		Logger:     log,
	})
	checkoutService := checkoutapp.NewService(gateway, records, calculator, settlementService.Fees(), cfg.Stripe.Currency, log)

	// Handlers
	handlers := router.Handlers{
		Webhook:    handler.NewWebhookHandler(processor, cfg.Webhook.MaxPayloadBytes),
		Settlement: handler.NewSettlementHandler(settlementService),
		Quote:      handler.NewQuoteHandler(calculator),
		Checkout:   handler.NewCheckoutHandler(checkoutService),
		Admin:      handler.NewAdminHandler(processor),
		Health:     handler.NewHealthHandler(sharedCache, queue.Depth),
	}
	if tokens := auth.NewOperatorTokens(cfg.Admin); tokens != nil {
		handlers.OperatorAuth = middleware.OperatorAuth(tokens)
		log.Info("Operator endpoints require a bearer token", zap.String("issuer", cfg.Admin.Issuer))
	} else {
		log.Warn("Operator endpoints are unauthenticated; set FUNNEL_ADMIN_JWT_SECRET to protect them")
	}

	engine, err := newEngine(cfg, log, sharedCache, metrics, meterProvider)
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}
	router.NewRouter(engine, router.WithLogger(log)).Register(router.FunnelGroups(handlers)...).Setup()

	queue.Start(ctx)

	var transferTrigger *scheduler.TransferTrigger
	if cfg.Transfer.ScheduleEnabled {
		transferTrigger, err = scheduler.NewTransferTrigger(
			scheduler.TransferTriggerConfigFromConfig(cfg.Transfer),
			func(ctx context.Context) (bool, error) {
				_, ran, err := settlementService.RunScheduled(ctx)
				return ran, err
			},
			log,
		)
		if err != nil {
			log.Fatal("Failed to initialize transfer trigger", zap.Error(err))
		}
		if err := transferTrigger.Start(ctx); err != nil {
			log.Fatal("Failed to start transfer trigger", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if transferTrigger != nil {
		if err := transferTrigger.Stop(shutdownCtx); err != nil {
			log.Warn("Transfer trigger did not stop cleanly", zap.Error(err))
		}
	}
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Warn("Job queue did not drain before shutdown", zap.Int("pending", queue.Depth()), zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// newEngine builds the gin engine with the middleware stack, in order:
// recovery, request id, tracing, request logging, metrics, security headers,
// CORS, body limit and rate limiting.
func newEngine(
	cfg *config.Config,
	log *zap.Logger,
	sharedCache shared.Cache,
	metrics *telemetry.FunnelMetrics,
	meterProvider *telemetry.MeterProvider,
) (*gin.Engine, error) {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.RequestID())
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanAttributes(), middleware.SpanErrorMarker())
	engine.Use(logger.GinMiddleware(log, logger.WithQuietRoutes("/health")))

	httpMetrics, err := middleware.HTTPMetrics(meterProvider.Meter("github.com/shipfunnel/backend/http"))
	if err != nil {
		return nil, err
	}
	engine.Use(httpMetrics)
	engine.Use(middleware.Secure())

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))
	engine.Use(middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
		Default: cfg.HTTP.MaxBodySize,
		Routes:  map[string]int64{"/stripe/webhook": cfg.Webhook.MaxPayloadBytes},
	}))

	rateLimiter, err := middleware.NewRateLimiter(cfg.RateLimit, sharedCache, metrics, log)
	if err != nil {
		return nil, err
	}
	engine.Use(rateLimiter.Middleware())
	if cfg.RateLimit.Enabled {
		log.Info("Rate limiting enabled",
			zap.Int("rules", len(cfg.RateLimit.Rules)),
			zap.Int("default_max", cfg.RateLimit.Default.Max),
			zap.Duration("default_window", cfg.RateLimit.Default.Window),
		)
	}

	return engine, nil
}
