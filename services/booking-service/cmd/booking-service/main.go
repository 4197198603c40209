package main

import (
	"context"
	"net/http"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/agenda/libs/auth"
	"github.com/md-rashed-zaman/agenda/libs/config"
	"github.com/md-rashed-zaman/agenda/libs/db"
	"github.com/md-rashed-zaman/agenda/libs/httpx"
	"github.com/md-rashed-zaman/agenda/libs/kafkax"
	otelx "github.com/md-rashed-zaman/agenda/libs/otel"
	"github.com/md-rashed-zaman/agenda/libs/runtime"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/holds"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/settlement"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/slotcache"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/agenda/services/booking-service/migrations"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	if config.Bool("DB_MIGRATE_ON_START", false) {
		version, err := db.Migrate(dbURL, migrations.FS, migrations.Table)
		if err != nil {
			logger.Error("db migration failed", "err", err)
			panic(err)
		}
		logger.Info("db migrated", "version", version)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewBookingMetrics(reg)

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	// Redis backs the slot cache and the shared rate limiter; both are
	// optional and fall back to uncached / in-memory behaviour.
	var (
		rdb         *redis.Client
		slotCache   availability.Cache
		invalidator booking.Invalidator
	)
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
		cache := slotcache.New(rdb, config.Duration("SLOT_CACHE_TTL_SECONDS", 30, time.Second))
		slotCache, invalidator = cache, cache
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info("slot cache enabled (redis)", "redis_addr", addr)
	}

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	var writer outbox.MessageWriter
	if len(brokers) > 0 {
		kw := kafkax.NewWriter(brokers)
		defer func() { _ = kw.Close() }()
		writer = kw
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	catalog := storage.NewCatalogRepository(pool)
	appointments := storage.NewAppointmentRepository(pool)
	outboxRepo := outbox.NewRepository()

	publisher := outbox.NewPublisher(pool, outboxRepo, writer, logger, outbox.PublisherConfig{
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	stripeGateway := payments.NewStripeGateway(payments.StripeConfig{
		SecretKey:  config.String("STRIPE_SECRET_KEY", ""),
		SuccessURL: config.String("PAYMENT_SUCCESS_URL", ""),
		CancelURL:  config.String("PAYMENT_CANCEL_URL", ""),
	})
	var gateway payments.Gateway
	if stripeGateway.Enabled() {
		gateway = stripeGateway
	} else {
		logger.Warn("online payments disabled: STRIPE_SECRET_KEY missing")
	}

	notifier := settlement.NewNotifier(catalog, outboxRepo, m, logger)
	reconciler := payments.NewReconciler(appointments, storage.NewPaymentRepository(), catalog, outboxRepo, notifier, m, logger)
	generator := availability.NewGenerator(catalog, appointments, slotCache, logger, config.Int("SLOT_GRANULARITY_MINUTES", 30))

	svc := booking.NewService(booking.Deps{
		Catalog:      catalog,
		Appointments: appointments,
		Clients:      storage.NewClientRepository(),
		Idempotency:  storage.NewIdempotencyRepository(),
		Events:       outboxRepo,
		Candidates:   generator,
		Gateway:      gateway,
		Cache:        invalidator,
		Settlement:   notifier,
		Payments:     reconciler,
		Observer:     m,
		Logger:       logger,
	}, booking.Config{
		HoldTTL:  config.Duration("HOLD_TTL_MINUTES", 35, time.Minute),
		Currency: config.String("PAYMENT_CURRENCY", "usd"),
		Policy: lifecycle.Policy{
			MaxShortfallPercent: config.Int("COMPLETE_MAX_SHORTFALL_PERCENT", 100),
		},
	})

	if config.Duration("HOLD_TTL_MINUTES", 35, time.Minute) > 0 {
		sweeper := holds.NewSweeper(appointments, outboxRepo, catalog, gateway, invalidator, m, logger, holds.Config{
			LockKey: config.Int64("HOLD_SWEEP_LOCK_KEY", 0),
		})
		c, err := sweeper.Start(ctx, config.String("HOLD_SWEEP_SCHEDULE", "@every 1m"))
		if err != nil {
			logger.Error("hold sweeper not started", "err", err)
		} else {
			defer func() { <-c.Stop().Done() }()
		}
	}

	var jwks *auth.JWKSClient
	if url := config.String("JWKS_URL", ""); url != "" {
		jwks = auth.NewJWKSClient(url, config.Duration("JWKS_CACHE_SECONDS", 300, time.Second))
	}
	verifier := auth.NewVerifier(config.String("JWT_SECRET", ""), jwks)

	webhookTolerance := config.Duration("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300, time.Second)
	h := handlers.New(handlers.Deps{
		Slots:          generator,
		Catalog:        catalog,
		Bookings:       svc,
		Reconciler:     reconciler,
		Lookup:         stripeGateway,
		WebhookSecret:  payments.NewVerifier(config.String("PAYMENT_WEBHOOK_SECRET", ""), webhookTolerance),
		StripeWebhooks: payments.NewVerifier(config.String("STRIPE_WEBHOOK_SECRET", ""), webhookTolerance),
		Observer:       m,
		Logger:         logger,
	})

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	var rateLimitMW httpx.Middleware
	if rdb != nil {
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl:booking"), httpx.ClientIP)
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("public rate limiting enabled (redis)", "per_minute", limitPerMinute)
	} else {
		rateLimitMW = httpx.NewRateLimiter(limitPerMinute, time.Minute, httpx.ClientIP).Middleware()
		logger.Info("public rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/api/", h.Router(verifier, rateLimitMW))

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods: config.List("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
			AllowedHeaders: config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id,Idempotency-Key"),
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithObserver(m.ObserveHTTP),
		httpx.WithBodyLimit(config.Int64("REQUEST_BODY_LIMIT_BYTES", 1<<20)),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT_SECONDS", 10, time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := runtime.Serve(ctx, srv, 10*time.Second, logger); err != nil {
		logger.Error("http server error", "err", err)
	}
	logger.Info("http server stopped")
}
