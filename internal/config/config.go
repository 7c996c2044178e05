package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the engine.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	NewRelic   NewRelicConfig
	Checkout   CheckoutConfig
	Stripe     StripeConfig
	PayFast    PayFastConfig
	Reconciler ReconcilerConfig
	Orders     OrdersConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// CheckoutConfig holds the customer-facing redirect targets and the
// provider used when a request does not name one.
type CheckoutConfig struct {
	SuccessURL      string
	CancelURL       string
	DefaultProvider string
}

// StripeConfig holds Stripe credentials.
type StripeConfig struct {
	Enabled       bool
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	Timeout       time.Duration
}

// PayFastConfig holds PayFast credentials and endpoints.
type PayFastConfig struct {
	Enabled          bool
	MerchantID       string
	MerchantKey      string
	Passphrase       string
	ProcessURL       string
	QueryURL         string
	NotifyURL        string
	Timeout          time.Duration
	CheckoutValidity time.Duration
}

// ReconcilerConfig holds the sweep schedule and bounds.
type ReconcilerConfig struct {
	Interval  time.Duration
	BatchSize int
	MinAge    time.Duration
}

// OrdersConfig holds the order-management collaborator endpoint.
type OrdersConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Load loads configuration from the environment, with a best-effort .env
// file for local development.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "paylink"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "paylink"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Checkout: CheckoutConfig{
			SuccessURL:      getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success"),
			CancelURL:       getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancel"),
			DefaultProvider: getEnv("CHECKOUT_DEFAULT_PROVIDER", "stripe"),
		},
		Stripe: StripeConfig{
			Enabled:       getBoolEnv("STRIPE_ENABLED", true),
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			BaseURL:       getEnv("STRIPE_BASE_URL", ""),
			Timeout:       getDurationEnv("STRIPE_TIMEOUT", 10*time.Second),
		},
		PayFast: PayFastConfig{
			Enabled:          getBoolEnv("PAYFAST_ENABLED", true),
			MerchantID:       getEnv("PAYFAST_MERCHANT_ID", ""),
			MerchantKey:      getEnv("PAYFAST_MERCHANT_KEY", ""),
			Passphrase:       getEnv("PAYFAST_PASSPHRASE", ""),
			ProcessURL:       getEnv("PAYFAST_PROCESS_URL", ""),
			QueryURL:         getEnv("PAYFAST_QUERY_URL", ""),
			NotifyURL:        getEnv("PAYFAST_NOTIFY_URL", ""),
			Timeout:          getDurationEnv("PAYFAST_TIMEOUT", 10*time.Second),
			CheckoutValidity: getDurationEnv("PAYFAST_CHECKOUT_VALIDITY", 24*time.Hour),
		},
		Reconciler: ReconcilerConfig{
			Interval:  getDurationEnv("RECONCILER_INTERVAL", 5*time.Minute),
			BatchSize: getIntEnv("RECONCILER_BATCH_SIZE", 50),
			MinAge:    getDurationEnv("RECONCILER_MIN_AGE", 10*time.Minute),
		},
		Orders: OrdersConfig{
			BaseURL: getEnv("ORDERS_BASE_URL", "http://localhost:8081"),
			Timeout: getDurationEnv("ORDERS_TIMEOUT", 5*time.Second),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
