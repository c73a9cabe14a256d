package infra

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const insecureSecret = "change-me-in-production"

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL    string        `env:"DATABASE_URL"`
	PGHost         string        `env:"PGHOST" envDefault:"localhost"`
	PGPort         int           `env:"PGPORT" envDefault:"5432"`
	PGUser         string        `env:"PGUSER" envDefault:"ledger"`
	PGPassword     string        `env:"PGPASSWORD" envDefault:"ledger"`
	PGDatabase     string        `env:"PGDATABASE" envDefault:"ledger"`
	MigrateOnStart bool          `env:"MIGRATE_ON_START" envDefault:"false"`
	DBMaxConns     int32         `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns     int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	DBLockTimeout  time.Duration `env:"DB_LOCK_TIMEOUT" envDefault:"5s"`

	// Redis
	RedisURL     string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	RedisEnabled bool   `env:"REDIS_ENABLED" envDefault:"false"`

	// JWT
	JWTSecret string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTExpiry time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`

	// Server
	APIPort int `env:"API_PORT" envDefault:"3100"`

	// Kafka
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled bool   `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaTopic   string `env:"KAFKA_TOPIC" envDefault:"ledger.events"`

	// Outbox consumer
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`

	// Payment gateway
	GatewayBaseURL       string        `env:"GATEWAY_BASE_URL" envDefault:"https://sandbox.gateway.local"`
	GatewayAPIKey        string        `env:"GATEWAY_API_KEY"`
	GatewayWebhookSecret string        `env:"GATEWAY_WEBHOOK_SECRET" envDefault:"change-me-in-production"`
	GatewayTimeout       time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"15s"`
	PublicBaseURL        string        `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:3100"`
	FrontendBaseURL      string        `env:"FRONTEND_BASE_URL" envDefault:"http://localhost:3000"`

	// Commerce
	Currency               string `env:"CURRENCY" envDefault:"BDT"`
	RegistrationFee        string `env:"REGISTRATION_FEE" envDefault:"500"`
	RedeemCodeValidityDays int    `env:"REDEEM_CODE_VALIDITY_DAYS" envDefault:"365"`
	VerifyRateLimit        int    `env:"VERIFY_RATE_LIMIT" envDefault:"30"`
}

// LoadConfig loads an optional .env file, then parses environment variables
// into a Config struct. Variables already set in the environment win.
func LoadConfig() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	if _, err := c.RegistrationFeeAmount(); err != nil {
		return err
	}
	if c.RedeemCodeValidityDays < 1 {
		return fmt.Errorf("REDEEM_CODE_VALIDITY_DAYS must be at least 1")
	}
	if c.DBMaxConns < 1 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) and DB_MAX_CONNS (%d) must satisfy 0 <= min <= max, max >= 1", c.DBMinConns, c.DBMaxConns)
	}
	if c.OutboxBatchSize < 1 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be at least 1")
	}
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == insecureSecret {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	if c.GatewayWebhookSecret == insecureSecret || c.GatewayWebhookSecret == "" {
		return fmt.Errorf("GATEWAY_WEBHOOK_SECRET must be set")
	}
	return nil
}

// RegistrationFeeAmount parses REGISTRATION_FEE as a positive money amount.
func (c *Config) RegistrationFeeAmount() (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(c.RegistrationFee)
	if err != nil {
		return decimal.Zero, fmt.Errorf("REGISTRATION_FEE: %w", err)
	}
	if !fee.IsPositive() {
		return decimal.Zero, fmt.Errorf("REGISTRATION_FEE must be positive")
	}
	return fee, nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
