// Package router assembles the HTTP surface: the WhatsApp webhook, the
// direct message API, health and metrics.
package router

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/medconnect/whatsapp-booking-agent/internal/conversation"
	httpmiddleware "github.com/medconnect/whatsapp-booking-agent/internal/http/middleware"
	"github.com/medconnect/whatsapp-booking-agent/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Webhook            *conversation.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// WebhookRate limits webhook deliveries per IP per second. Zero
	// disables rate limiting.
	WebhookRate  float64
	WebhookBurst int

	// DB, when set, is probed by the readiness endpoint.
	DB *sql.DB
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)
	r.Get("/ready", readyCheck(cfg.DB))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Webhook != nil {
		r.Group(func(hooks chi.Router) {
			if cfg.WebhookRate > 0 {
				hooks.Use(httpmiddleware.RateLimit(cfg.WebhookRate, cfg.WebhookBurst))
			}
			hooks.Get("/webhook", cfg.Webhook.Verify)
			hooks.Post("/webhook", cfg.Webhook.Receive)
			hooks.Post("/api/v1/messages", cfg.Webhook.Message)
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// readyCheck reports not-ready while the transcript database is down so the
// load balancer drains the instance.
func readyCheck(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "reason": "database unreachable"})
				return
			}
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	}
}
