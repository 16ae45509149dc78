// Package config loads process configuration from HUNT_* environment
// variables. CLI flags override what is loaded here.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/hunt/internal/progress"
	"github.com/roach88/hunt/internal/store"
	"github.com/roach88/hunt/internal/store/postgres"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the process configuration.
type Config struct {
	DBDriver     string        `env:"HUNT_DB_DRIVER"     envDefault:"sqlite"`
	DBPath       string        `env:"HUNT_DB_PATH"       envDefault:"hunt.db"`
	DatabaseURL  string        `env:"HUNT_DATABASE_URL"`
	Definition   string        `env:"HUNT_DEF"`
	Run          string        `env:"HUNT_RUN"           envDefault:"run-1"`
	MaxPasses    int           `env:"HUNT_MAX_PASSES"`
	TickInterval time.Duration `env:"HUNT_TICK_INTERVAL" envDefault:"1m"`
	LogLevel     string        `env:"HUNT_LOG_LEVEL"     envDefault:"info"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("HUNT_DB_PATH is required for sqlite"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("HUNT_DATABASE_URL is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown HUNT_DB_DRIVER %q (want %s or %s)", c.DBDriver, DriverSQLite, DriverPostgres))
	}
	if c.MaxPasses < 0 {
		errs = append(errs, fmt.Errorf("HUNT_MAX_PASSES must be >= 0, got %d", c.MaxPasses))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("HUNT_TICK_INTERVAL must be positive, got %s", c.TickInterval))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel parses LogLevel (debug, info, warn, error).
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid HUNT_LOG_LEVEL %q", c.LogLevel)
	}
	return level, nil
}

// OpenBackend opens the configured progress backend.
func (c Config) OpenBackend(ctx context.Context) (progress.Backend, error) {
	switch c.DBDriver {
	case DriverSQLite:
		s, err := store.Open(c.DBPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := postgres.Open(ctx, c.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown HUNT_DB_DRIVER %q", c.DBDriver)
	}
}
