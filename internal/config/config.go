package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	WorkerCount   int
	DatabaseURL   string

	// Clinic management backend (appointments, patients, services)
	BackendBaseURL    string
	BackendAPIKey     string
	BackendTimeout    time.Duration
	BackendMaxRetries int

	// Clinic identity
	ClinicName         string
	ClinicPhone        string
	ClinicCountryCode  string
	DefaultPatientCity string

	// WhatsApp gateway
	WhatsAppVerifyToken   string
	WhatsAppWebhookSecret string
	WhatsAppAccessToken   string
	WhatsAppPhoneNumberID string
	WhatsAppAPIBaseURL    string

	// Session and cache behavior
	SessionTTL        time.Duration
	CatalogCacheTTL   time.Duration
	IdempotencyWindow time.Duration
	MaxSlotsShown     int

	// Recovery circuit breaker
	RecoveryFailureThreshold int
	RecoveryFailureWindow    time.Duration

	// Turn processing
	TurnTimeout  time.Duration
	MaxStepHops  int
	MaxQueueSize int

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		WorkerCount:   getEnvAsInt("WORKER_COUNT", 2),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		BackendBaseURL:    strings.TrimRight(getEnv("BACKEND_BASE_URL", ""), "/"),
		BackendAPIKey:     getEnv("BACKEND_API_KEY", ""),
		BackendTimeout:    getEnvAsDuration("BACKEND_TIMEOUT", 15*time.Second),
		BackendMaxRetries: getEnvAsInt("BACKEND_MAX_RETRIES", 1),

		ClinicName:         getEnv("CLINIC_NAME", "MedConnect Clinic"),
		ClinicPhone:        getEnv("CLINIC_PHONE", "920033304"),
		ClinicCountryCode:  getEnv("CLINIC_COUNTRY_CODE", "966"),
		DefaultPatientCity: getEnv("DEFAULT_PATIENT_CITY", "الرياض"),

		WhatsAppVerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppWebhookSecret: getEnv("WHATSAPP_WEBHOOK_SECRET", ""),
		WhatsAppAccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppAPIBaseURL:    getEnv("WHATSAPP_API_BASE_URL", ""),

		SessionTTL:        getEnvAsDuration("SESSION_TTL", 30*time.Minute),
		CatalogCacheTTL:   getEnvAsDuration("CATALOG_CACHE_TTL", 30*time.Minute),
		IdempotencyWindow: getEnvAsDuration("IDEMPOTENCY_WINDOW", 30*time.Second),
		MaxSlotsShown:     getEnvAsInt("MAX_SLOTS_SHOWN", 10),

		RecoveryFailureThreshold: getEnvAsInt("RECOVERY_FAILURE_THRESHOLD", 3),
		RecoveryFailureWindow:    getEnvAsDuration("RECOVERY_FAILURE_WINDOW", 5*time.Minute),

		TurnTimeout:  getEnvAsDuration("TURN_TIMEOUT", 2*time.Minute),
		MaxStepHops:  getEnvAsInt("MAX_STEP_HOPS", 50),
		MaxQueueSize: getEnvAsInt("MAX_QUEUE_SIZE", 1024),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
