package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jzx17/gocourier/pkg/task"
)

// Config defines configuration for an Engine
type Config struct {
	// Workers is the number of worker goroutines
	Workers int

	// StopTimeout bounds how long Stop waits for workers to finish
	// claimed work. Zero waits forever.
	StopTimeout time.Duration

	// Namespace prefixes the Prometheus metric names
	Namespace string

	// RequiredTypes must all have a registered handler, checked by New
	RequiredTypes []task.Type

	// Logger for lifecycle and error events (optional, defaults to slog.Default)
	Logger *slog.Logger

	// Clock for time operations (optional, defaults to real clock)
	Clock quartz.Clock

	// Registerer receives the engine metrics (optional, metrics stay
	// unregistered when nil)
	Registerer prometheus.Registerer

	// FatalHandler receives errors after which the engine state cannot be
	// trusted. The default logs and panics.
	FatalHandler func(error)
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Workers:     4,
		StopTimeout: 10 * time.Second,
		Namespace:   "courier",
		Logger:      slog.Default(),
		Clock:       quartz.NewReal(),
	}
}

type envConfig struct {
	Workers       int           `env:"COURIER_WORKERS" envDefault:"4"`
	StopTimeout   time.Duration `env:"COURIER_STOP_TIMEOUT" envDefault:"10s"`
	Namespace     string        `env:"COURIER_NAMESPACE" envDefault:"courier"`
	RequiredTypes []string      `env:"COURIER_REQUIRED_TYPES" envSeparator:","`
}

// ConfigFromEnv returns DefaultConfig overridden by COURIER_* environment
// variables.
func ConfigFromEnv() (*Config, error) {
	ec, err := env.ParseAs[envConfig]()
	if err != nil {
		return nil, fmt.Errorf("parse engine config: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Workers = ec.Workers
	cfg.StopTimeout = ec.StopTimeout
	cfg.Namespace = ec.Namespace
	for _, t := range ec.RequiredTypes {
		if t != "" {
			cfg.RequiredTypes = append(cfg.RequiredTypes, task.Type(t))
		}
	}
	return cfg, nil
}

// validate checks the configuration and fills optional fields
func (c *Config) validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.StopTimeout < 0 {
		return fmt.Errorf("stop timeout must not be negative, got %v", c.StopTimeout)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = quartz.NewReal()
	}
	return nil
}
