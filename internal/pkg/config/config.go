package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Logger strategies.
const (
	StrategyOrdered   = "ordered"
	StrategyUnordered = "unordered"
)

// Backpressure policies applied by producers when the buffer is full.
const (
	PolicyBlock  = "block"
	PolicyDrop   = "drop"
	PolicyReject = "reject"
)

// Catalog backends.
const (
	CatalogNone     = "none"
	CatalogPostgres = "postgres"
	CatalogRedis    = "redis"
)

// Config holds all application configuration.
type Config struct {
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	RecordingsDir      string        `env:"RECORDINGS_DIR" envDefault:"./data/recordings"`
	LoggerStrategy     string        `env:"LOGGER_STRATEGY" envDefault:"ordered"`
	ReorderUpperWindow time.Duration `env:"REORDER_UPPER_WINDOW" envDefault:"10s"`
	ReorderLowerWindow time.Duration `env:"REORDER_LOWER_WINDOW" envDefault:"7s"`
	QueueCapacity      int           `env:"QUEUE_CAPACITY" envDefault:"5000"`
	WriterIdleSleep    time.Duration `env:"WRITER_IDLE_SLEEP" envDefault:"10ms"`
	BackpressurePolicy string        `env:"BACKPRESSURE_POLICY" envDefault:"block"`
	AdminServerAddr    string        `env:"ADMIN_SERVER_ADDR" envDefault:":9091"`
	StatsInterval      time.Duration `env:"STATS_INTERVAL" envDefault:"1s"`
	CatalogBackend     string        `env:"CATALOG_BACKEND" envDefault:"none"`
	PostgresURL        string        `env:"POSTGRES_URL"`
	RedisAddr          string        `env:"REDIS_ADDR"`
	RecordingPerson    string        `env:"RECORDING_PERSON" envDefault:"unknown"`
	RecordingComment   string        `env:"RECORDING_COMMENT"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	switch c.LoggerStrategy {
	case StrategyOrdered, StrategyUnordered:
	default:
		errs = append(errs, fmt.Errorf("LOGGER_STRATEGY must be %q or %q, got %q", StrategyOrdered, StrategyUnordered, c.LoggerStrategy))
	}
	if c.ReorderUpperWindow <= 0 {
		errs = append(errs, fmt.Errorf("REORDER_UPPER_WINDOW must be positive"))
	}
	if c.ReorderLowerWindow < 0 || c.ReorderLowerWindow >= c.ReorderUpperWindow {
		errs = append(errs, fmt.Errorf("REORDER_LOWER_WINDOW (%s) must be in [0, REORDER_UPPER_WINDOW)", c.ReorderLowerWindow))
	}
	if c.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("QUEUE_CAPACITY must be positive"))
	}
	if c.WriterIdleSleep <= 0 {
		errs = append(errs, fmt.Errorf("WRITER_IDLE_SLEEP must be positive"))
	}
	if c.StatsInterval <= 0 {
		errs = append(errs, fmt.Errorf("STATS_INTERVAL must be positive"))
	}
	switch c.BackpressurePolicy {
	case PolicyBlock, PolicyDrop, PolicyReject:
	default:
		errs = append(errs, fmt.Errorf("BACKPRESSURE_POLICY must be block, drop or reject, got %q", c.BackpressurePolicy))
	}
	switch c.CatalogBackend {
	case CatalogNone:
	case CatalogPostgres:
		if c.PostgresURL == "" {
			errs = append(errs, fmt.Errorf("POSTGRES_URL is required for the postgres catalog"))
		}
	case CatalogRedis:
		if c.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("REDIS_ADDR is required for the redis catalog"))
		}
	default:
		errs = append(errs, fmt.Errorf("CATALOG_BACKEND must be none, postgres or redis, got %q", c.CatalogBackend))
	}

	return errors.Join(errs...)
}
