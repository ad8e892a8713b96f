package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port string `env:"PORT" envDefault:"3333"`

	// StoreBackend selects the subscription/ledger store: memory, firestore or postgres.
	StoreBackend string `env:"STORE_BACKEND" envDefault:"firestore"`

	FirebaseProjectID          string `env:"FIREBASE_PROJECT_ID"`
	FirebaseServiceAccountJSON string `env:"FIREBASE_SERVICE_ACCOUNT_JSON"`
	FirebaseCredentialsFile    string `env:"FIREBASE_CREDENTIALS_FILE" envDefault:"./serviceAccountKey.json"`

	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	AuthProvider   string `env:"AUTH_PROVIDER" envDefault:"firebase"`
	ClerkSecretKey string `env:"CLERK_SECRET_KEY"`

	WebhookAPIKey       string `env:"WEBHOOK_API_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`

	SweepHour     int           `env:"SWEEP_HOUR" envDefault:"0"`
	SweepTimezone string        `env:"SWEEP_TIMEZONE" envDefault:"Asia/Kolkata"`
	SweepPageSize int           `env:"SWEEP_PAGE_SIZE" envDefault:"200"`
	SweepLockTTL  time.Duration `env:"SWEEP_LOCK_TTL" envDefault:"30m"`

	TrialDays   int `env:"TRIAL_DAYS" envDefault:"7"`
	TrialAmount int `env:"TRIAL_AMOUNT" envDefault:"1"`

	MetricsUser string `env:"METRICS_USER"`
	MetricsPass string `env:"METRICS_PASS"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case "memory", "firestore":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.AuthProvider {
	case "firebase":
	case "clerk":
		if c.ClerkSecretKey == "" {
			return fmt.Errorf("CLERK_SECRET_KEY is required when AUTH_PROVIDER=clerk")
		}
	default:
		return fmt.Errorf("unknown AUTH_PROVIDER %q", c.AuthProvider)
	}

	if c.SweepHour < 0 || c.SweepHour > 23 {
		return fmt.Errorf("SWEEP_HOUR must be between 0 and 23, got %d", c.SweepHour)
	}
	if c.SweepPageSize <= 0 {
		return fmt.Errorf("SWEEP_PAGE_SIZE must be positive")
	}
	if _, err := time.LoadLocation(c.SweepTimezone); err != nil {
		return fmt.Errorf("invalid SWEEP_TIMEZONE: %w", err)
	}
	return nil
}

// SweepLocation is validated by Validate, so the error is not expected here.
func (c Config) SweepLocation() *time.Location {
	loc, err := time.LoadLocation(c.SweepTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) TrialPeriod() time.Duration {
	return time.Duration(c.TrialDays) * 24 * time.Hour
}
