package main

import (
	"context"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/agenda/libs/auth"
	"github.com/md-rashed-zaman/agenda/libs/config"
	"github.com/md-rashed-zaman/agenda/libs/db"
	"github.com/md-rashed-zaman/agenda/libs/httpx"
	"github.com/md-rashed-zaman/agenda/libs/kafkax"
	otelx "github.com/md-rashed-zaman/agenda/libs/otel"
	"github.com/md-rashed-zaman/agenda/libs/runtime"
	"github.com/md-rashed-zaman/agenda/services/commission-service/internal/commission"
	"github.com/md-rashed-zaman/agenda/services/commission-service/internal/consumer"
	"github.com/md-rashed-zaman/agenda/services/commission-service/internal/handlers"
	"github.com/md-rashed-zaman/agenda/services/commission-service/internal/inbox"
	"github.com/md-rashed-zaman/agenda/services/commission-service/internal/storage"
	"github.com/md-rashed-zaman/agenda/services/commission-service/migrations"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "commission-service")
	port, err := config.Port("PORT", "8085")
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

	repo := storage.NewRepository(pool)
	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	if len(brokers) > 0 {
		reader := kafkax.NewReader(brokers,
			config.String("KAFKA_GROUP_ID", "commission-service"),
			config.String("KAFKA_SETTLED_TOPIC", commission.TopicAppointmentSettled),
		)
		recorder := commission.NewRecorder(repo, logger)
		eventConsumer := consumer.New(reader, pool, inbox.NewRepository(), recorder.Handle, logger, consumer.Config{})
		go eventConsumer.Run(ctx)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	} else {
		logger.Warn("settled event consumer disabled (no kafka brokers configured)")
	}

	var jwks *auth.JWKSClient
	if url := config.String("JWKS_URL", ""); url != "" {
		jwks = auth.NewJWKSClient(url, config.Duration("JWKS_CACHE_SECONDS", 300, time.Second))
	}
	verifier := auth.NewVerifier(config.String("JWT_SECRET", ""), jwks)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/api/", handlers.New(repo, logger).Router(verifier))

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT_SECONDS", 10, time.Second)),
	)
	handler = otelhttp.NewHandler(handler, "commission")
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
