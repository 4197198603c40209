package main

import (
	"context"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/agenda/libs/config"
	"github.com/md-rashed-zaman/agenda/libs/httpx"
	otelx "github.com/md-rashed-zaman/agenda/libs/otel"
	"github.com/md-rashed-zaman/agenda/libs/runtime"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
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

	bookingURL := config.String("BOOKING_URL", "http://booking-service:8083")
	commissionURL := config.String("COMMISSION_URL", "http://commission-service:8085")

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	var rateLimitMW httpx.Middleware
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl:gateway"), httpx.ClientIP)
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rateLimitMW = httpx.NewRateLimiter(limitPerMinute, time.Minute, httpx.ClientIP).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	health := newHealthClient()
	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "booking", Check: upstreamCheck(health, bookingURL)},
		runtime.ReadyCheck{Name: "commission", Check: upstreamCheck(health, commissionURL)},
	)
	if err := registerRoutes(mux, routes(bookingURL, commissionURL), rateLimitMW, logger); err != nil {
		panic(err)
	}

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id,Idempotency-Key"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE_SECONDS", 600, time.Second),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(config.Int64("REQUEST_BODY_LIMIT_BYTES", 1<<20)),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT_SECONDS", 10, time.Second)),
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := runtime.Serve(ctx, srv, 10*time.Second, logger); err != nil {
		logger.Error("http server error", "err", err)
	}
	logger.Info("http server stopped")
}
