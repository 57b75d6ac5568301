package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/tableorder/internal/messaging/amqp"
	"github.com/xenking/tableorder/internal/realtime"
)

// Config holds the complete application configuration, loadable from
// environment variables (DINE_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (DINE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Payment     PaymentConfig
	Realtime    realtime.Config
	AMQP        amqp.Config
	Health      HealthConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// PaymentConfig configures the payment provider. Payments are disabled when
// KeyID is empty.
type PaymentConfig struct {
	KeyID       string        `usage:"Razorpay key id" flag:"razorpay-key-id"`
	KeySecret   string        `usage:"Razorpay key secret" flag:"razorpay-key-secret"`
	BaseURL     string        `default:"https://api.razorpay.com" usage:"Razorpay API base URL"`
	CheckoutURL string        `default:"" usage:"Hosted checkout URL; the provider order id is appended as order_id"`
	Currency    string        `default:"INR" usage:"Currency of payment intents"`
	Timeout     time.Duration `default:"10s" usage:"Payment provider request timeout"`
}

// Enabled reports whether a payment provider is configured.
func (c PaymentConfig) Enabled() bool {
	return c.KeyID != ""
}

// HealthConfig controls background health checks.
type HealthConfig struct {
	Interval       time.Duration `default:"10s" usage:"Health check interval"`
	MaxGoroutines  int           `default:"10000" usage:"Liveness fails above this goroutine count"`
	ReadinessCheck time.Duration `default:"5s" usage:"Timeout of readiness checks"`
}

// RateLimitConfig controls the per-client limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "DINE",
		Files:     []string{"config.yaml", "/etc/tableorder/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set DINE_DATABASE_URL or DATABASE_URL")
	}
	if c.Payment.Enabled() && c.Payment.KeySecret == "" {
		return errors.New("payment key secret is required when a key id is set")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL, PORT and RABBITMQ_URL.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.AMQP.URL == "" {
		c.AMQP.URL = os.Getenv("RABBITMQ_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
