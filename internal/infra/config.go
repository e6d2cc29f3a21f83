package infra

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"tutorloop"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"tutorloop"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"tutorloop"`

	// JWT
	JWTSecret        string `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTStudentExpiry string `env:"JWT_STUDENT_EXPIRY" envDefault:"24h"`
	JWTTutorExpiry   string `env:"JWT_TUTOR_EXPIRY" envDefault:"12h"`
	JWTAdminExpiry   string `env:"JWT_ADMIN_EXPIRY" envDefault:"8h"`

	// Server
	APIPort int `env:"API_PORT" envDefault:"3200"`

	// Kafka
	KafkaBrokers      string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled      bool   `env:"KAFKA_ENABLED" envDefault:"false"`
	RenewalTopic      string `env:"RENEWAL_TOPIC" envDefault:"tutorloop.renewal.credits.renewal.requested"`
	RenewalGroupID    string `env:"RENEWAL_GROUP_ID" envDefault:"renewal-worker"`
	EventTopicPrefix  string `env:"EVENT_TOPIC_PREFIX" envDefault:"tutorloop"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`

	// Billing
	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	PricePerClassCents  int64  `env:"PRICE_PER_CLASS_CENTS" envDefault:"2000"`

	// Notifications
	NotifierURL string `env:"NOTIFIER_URL"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
