package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/eldtechnologies/batepapo/internal/store"
)

// Config holds all configuration for the application.
type Config struct {
	Port     string `envconfig:"PORT" default:"5000"`
	Env      string `envconfig:"ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Storage
	StoreBackend string `envconfig:"STORE_BACKEND" default:"badger"`
	BadgerPath   string `envconfig:"BADGER_PATH" default:"./data/badger"`
	SQLitePath   string `envconfig:"SQLITE_PATH" default:"./data/batepapo.db"`
	DatabaseURL  string `envconfig:"DATABASE_URL"`
	RedisURL     string `envconfig:"REDIS_URL"`

	// Presence
	SweepInterval       time.Duration `envconfig:"SWEEP_INTERVAL" default:"15s"`
	InactivityThreshold time.Duration `envconfig:"INACTIVITY_THRESHOLD" default:"10s"`

	// Events
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"batepapo.events"`

	// Rate limiting
	RateLimitWhitelist []string `envconfig:"RATE_LIMIT_WHITELIST"` // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     `envconfig:"AUTO_BLOCK_ENABLED" default:"false"`
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
func Load() (*Config, error) {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case store.BackendBadger:
		if c.BadgerPath == "" {
			return errors.New("BADGER_PATH is required for the badger backend")
		}
	case store.BackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite backend")
		}
	case store.BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	case store.BackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.SweepInterval <= 0 {
		return errors.New("SWEEP_INTERVAL must be positive")
	}
	if c.InactivityThreshold <= 0 {
		return errors.New("INACTIVITY_THRESHOLD must be positive")
	}

	// In production, participants and messages must survive a restart
	if c.Env == "production" && c.StoreBackend == store.BackendBadger && c.BadgerPath == store.InMemoryPath {
		return errors.New("in-memory badger is not allowed in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// StoreOptions returns the settings store.Open needs.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Backend:     c.StoreBackend,
		BadgerPath:  c.BadgerPath,
		SQLitePath:  c.SQLitePath,
		DatabaseURL: c.DatabaseURL,
		RedisURL:    c.RedisURL,
	}
}
