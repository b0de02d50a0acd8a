// Package config provides environment-aware configuration for the
// automation core process: a database DSN, logging shape, and the
// cadence/threshold knobs the availability and job-queue engines need
// at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Environment is the deployment environment, gating production-only
// validation the same way the teacher's Config.Validate does.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// Config holds every environment-derived setting the process needs,
// decoded from env-tagged struct fields the way the teacher's own
// pkg/config.Config is (github.com/joeshaw/envdecode).
type Config struct {
	Env Environment

	// Database
	DatabaseDSN      string        `env:"DATABASE_DSN"`
	DBMaxConnections int           `env:"DB_MAX_CONNECTIONS,default=20"`
	DBIdleTimeout    time.Duration `env:"DB_IDLE_TIMEOUT,default=5m"`

	// Redis (distributed lock backend)
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`

	// HTTP (notification hub upgrade endpoint)
	HTTPAddr string `env:"HTTP_ADDR,default=:8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`

	// Availability sweep thresholds (spec.md §4.8)
	InactivityTimeout time.Duration `env:"AVAILABILITY_INACTIVITY_TIMEOUT,default=5m"`
	MaxIdleThreshold  time.Duration `env:"AVAILABILITY_MAX_IDLE_THRESHOLD,default=30m"`

	RunMigrations bool `env:"RUN_MIGRATIONS,default=true"`
}

// Load reads configuration from the environment, optionally preloaded
// from an env-named dotenv file (config/<env>.env), matching the
// teacher's MARBLE_ENV convention adapted to this process's own prefix.
func Load() (*Config, error) {
	envStr := os.Getenv("DESKCORE_ENV")
	if envStr == "" {
		envStr = string(Development)
	}
	env := Environment(envStr)
	switch env {
	case Development, Testing, Production:
	default:
		return nil, fmt.Errorf("invalid DESKCORE_ENV: %s (must be development, testing, or production)", envStr)
	}

	configFile := fmt.Sprintf("config/%s.env", env)
	if err := godotenv.Load(configFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Printf("warning: could not load %s: %v\n", configFile, err)
	}

	cfg := &Config{Env: env}
	if err := envdecode.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode env: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool { return c.Env == Production }

// Validate enforces the same "don't ship a dev footgun to prod" shape
// as the teacher's Config.Validate.
func (c *Config) Validate() error {
	if c.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN is required")
	}
	if c.IsProduction() && c.LogFormat != "json" {
		return errors.New("LOG_FORMAT must be json in production")
	}
	return nil
}
