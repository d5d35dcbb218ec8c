package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Load reads configuration from environment variables. It attempts to
// load a .env file first (for local development), then parses the
// environment into the Config struct.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("no .env file loaded: %v", err)
	} else {
		logrus.Info("loaded environment variables from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}

	return cfg, nil
}

// Validate fails fast on configuration that would leave the scheduler
// unable to run correctly.
func (c *Config) Validate() error {
	if c.OpsPort < 1 || c.OpsPort > 65535 {
		return fmt.Errorf("invalid OPS_PORT: %d (must be 1-65535)", c.OpsPort)
	}
	if c.MainInterval <= 0 || c.ImmediateInterval <= 0 || c.AnalyticsInterval <= 0 {
		return fmt.Errorf("cycle intervals must be positive")
	}
	if c.MaxUsersPerCycle < 1 {
		return fmt.Errorf("MAX_USERS_PER_CYCLE must be at least 1, got %d", c.MaxUsersPerCycle)
	}
	if c.TopOpportunities < 1 {
		return fmt.Errorf("TOP_OPPORTUNITIES must be at least 1, got %d", c.TopOpportunities)
	}
	if c.InitialDelayMin > c.InitialDelayMax {
		return fmt.Errorf("INITIAL_DELAY_MIN (%v) exceeds INITIAL_DELAY_MAX (%v)", c.InitialDelayMin, c.InitialDelayMax)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be in [0,1], got %v", c.SimilarityThreshold)
	}
	if c.BombardmentWindow <= 0 {
		return fmt.Errorf("BOMBARDMENT_WINDOW must be positive, got %v", c.BombardmentWindow)
	}
	if _, err := time.LoadLocation(c.DayBoundaryTZ); err != nil {
		return fmt.Errorf("invalid DAY_BOUNDARY_TZ %q: %w", c.DayBoundaryTZ, err)
	}
	return nil
}

// Location resolves the configured day-boundary time zone. Call after
// Validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DayBoundaryTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}
