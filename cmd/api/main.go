package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/medconnect/whatsapp-booking-agent/internal/api/router"
	"github.com/medconnect/whatsapp-booking-agent/internal/backend"
	"github.com/medconnect/whatsapp-booking-agent/internal/booking"
	"github.com/medconnect/whatsapp-booking-agent/internal/catalog"
	appconfig "github.com/medconnect/whatsapp-booking-agent/internal/config"
	"github.com/medconnect/whatsapp-booking-agent/internal/conversation"
	"github.com/medconnect/whatsapp-booking-agent/internal/idempotency"
	"github.com/medconnect/whatsapp-booking-agent/internal/intent"
	"github.com/medconnect/whatsapp-booking-agent/internal/observability/metrics"
	"github.com/medconnect/whatsapp-booking-agent/internal/outbound"
	"github.com/medconnect/whatsapp-booking-agent/internal/recovery"
	"github.com/medconnect/whatsapp-booking-agent/internal/render"
	"github.com/medconnect/whatsapp-booking-agent/internal/session"
	"github.com/medconnect/whatsapp-booking-agent/internal/whatsapp"
	"github.com/medconnect/whatsapp-booking-agent/pkg/logging"
)

func main() {
	// .env is optional, real deployments use the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting whatsapp booking agent",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	redisClient := newRedisClient(cfg)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		// Sessions degrade to per-instance memory, dedup and escalation
		// switch off. Worth a loud log line, not a crash.
		logger.Error("redis unreachable, running degraded", "addr", cfg.RedisAddr, "error", err)
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		if err := db.Ping(); err != nil {
			logger.Error("database unreachable, transcripts disabled", "error", err)
			db.Close()
			db = nil
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	bookingMetrics := metrics.NewBookingMetrics(registry)

	backendClient, err := backend.New(backend.Config{
		BaseURL:    cfg.BackendBaseURL,
		APIKey:     cfg.BackendAPIKey,
		Timeout:    cfg.BackendTimeout,
		MaxRetries: cfg.BackendMaxRetries,
		Logger:     logger.Logger,
		Metrics:    bookingMetrics,
	})
	if err != nil {
		logger.Error("backend client misconfigured", "error", err)
		os.Exit(1)
	}

	serviceTypes := catalog.New[[]backend.ServiceType]()
	services := catalog.New[[]backend.Service]()
	warmCatalog(backendClient, serviceTypes, logger)

	deps := &booking.Deps{
		Backend:      backendClient,
		Renderer:     render.NewTemplateRenderer(cfg.ClinicName, cfg.ClinicPhone),
		Logger:       logger.WithComponent("booking"),
		Metrics:      bookingMetrics,
		ServiceTypes: serviceTypes,
		Services:     services,
		CatalogTTL:   cfg.CatalogCacheTTL,
		MaxSlots:     cfg.MaxSlotsShown,
		CountryCode:  cfg.ClinicCountryCode,
		DefaultCity:  cfg.DefaultPatientCity,
		ClinicPhone:  cfg.ClinicPhone,
	}
	engine := booking.NewEngine(deps, cfg.MaxStepHops)

	orch := conversation.New(conversation.Config{
		Engine:      engine,
		Classifier:  intent.StaticClassifier{},
		Sessions:    session.New(session.Config{Redis: redisClient, Logger: logger, TTL: cfg.SessionTTL}),
		Dedup:       idempotency.New(redisClient, logger, cfg.IdempotencyWindow),
		Breaker:     recovery.New(redisClient, logger, cfg.RecoveryFailureThreshold, cfg.RecoveryFailureWindow),
		Transcripts: conversation.NewTranscriptStore(db, nil),
		Metrics:     bookingMetrics,
		Logger:      logger,
		TurnTimeout: cfg.TurnTimeout,
		CountryCode: cfg.ClinicCountryCode,
	})

	webhook := conversation.NewHandler(orch, cfg.WhatsAppVerifyToken, cfg.WhatsAppWebhookSecret, logger)

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()
	var dispatcher *outbound.Dispatcher
	if cfg.WhatsAppAccessToken != "" && cfg.WhatsAppPhoneNumberID != "" {
		waClient, err := whatsapp.New(whatsapp.Config{
			BaseURL:       cfg.WhatsAppAPIBaseURL,
			AccessToken:   cfg.WhatsAppAccessToken,
			PhoneNumberID: cfg.WhatsAppPhoneNumberID,
			MaxRetries:    1,
			Logger:        logger,
		})
		if err != nil {
			logger.Error("whatsapp client misconfigured", "error", err)
			os.Exit(1)
		}
		dispatcher = outbound.New(waClient, logger).
			WithWorkers(cfg.WorkerCount).
			WithQueueSize(cfg.MaxQueueSize).
			WithMetrics(bookingMetrics)
		dispatcher.Start(dispatchCtx)
		webhook.WithReplySink(dispatcher)
		logger.Info("outbound dispatcher started", "workers", cfg.WorkerCount, "queue_size", cfg.MaxQueueSize)
	} else {
		logger.Warn("outbound sends disabled (WHATSAPP_ACCESS_TOKEN or WHATSAPP_PHONE_NUMBER_ID not set)")
	}

	r := router.New(&router.Config{
		Logger:         logger,
		Webhook:        webhook,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		WebhookRate:    10,
		WebhookBurst:   30,
		DB:             db,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.TurnTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if dispatcher != nil {
		stopDispatch()
		dispatcher.Wait()
	}
	if db != nil {
		db.Close()
	}
	redisClient.Close()
	logger.Info("server stopped")
}

func newRedisClient(cfg *appconfig.Config) *redis.Client {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}

// warmCatalog pre-fills the service type cache so the first patient of the
// day does not pay the backend round trip.
func warmCatalog(client *backend.Client, cache *catalog.Cache[[]backend.ServiceType], logger *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	types, err := client.ListServiceTypes(ctx)
	if err != nil {
		logger.Warn("catalog warmup skipped", "error", err)
		return
	}
	cache.Put("service_types", types)
	logger.Info("catalog warmed", "service_types", len(types))
}
