// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	// GuardSweepInterval is how often the background sweep re-evaluates
	// persisted timers for devices that never sent a foreground event.
	GuardSweepInterval time.Duration

	// MaxSessionDuration is the corrupted-state ceiling: a running record
	// whose elapsed time exceeds it is reset rather than honored.
	MaxSessionDuration time.Duration

	Retry   RetryConfig
	Timeout TimeoutConfig
}

// RetryConfig controls bounded-retry behavior.
type RetryConfig struct {
	BlockingMaxAttempts    int
	BlockingRetryBaseDelay time.Duration
	DatabaseMaxRetries     int
	DatabaseRetryBaseDelay time.Duration
}

// TimeoutConfig controls operation deadlines.
type TimeoutConfig struct {
	HealthCheck time.Duration
	StopCommand time.Duration
	Shutdown    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		FrontendURL:        getEnv("FRONTEND_URL", ""),
		DBPath:             getEnv("DB_PATH", "./data/petisland.db"),
		GuardSweepInterval: getEnvDuration("GUARD_SWEEP_INTERVAL", 5*time.Minute),
		MaxSessionDuration: getEnvDuration("MAX_SESSION_DURATION", 24*time.Hour),
		Retry: RetryConfig{
			BlockingMaxAttempts:    getEnvInt("BLOCKING_MAX_ATTEMPTS", 3),
			BlockingRetryBaseDelay: getEnvDuration("BLOCKING_RETRY_BASE_DELAY", 500*time.Millisecond),
			DatabaseMaxRetries:     getEnvInt("DATABASE_MAX_RETRIES", 3),
			DatabaseRetryBaseDelay: getEnvDuration("DATABASE_RETRY_BASE_DELAY", 50*time.Millisecond),
		},
		Timeout: TimeoutConfig{
			HealthCheck: getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
			StopCommand: getEnvDuration("STOP_COMMAND_TIMEOUT", 5*time.Second),
			Shutdown:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.GuardSweepInterval <= 0 {
		return fmt.Errorf("GUARD_SWEEP_INTERVAL must be > 0")
	}
	if c.MaxSessionDuration <= 0 {
		return fmt.Errorf("MAX_SESSION_DURATION must be > 0")
	}
	if c.Retry.BlockingMaxAttempts <= 0 {
		return fmt.Errorf("BLOCKING_MAX_ATTEMPTS must be > 0")
	}
	if c.Retry.DatabaseMaxRetries <= 0 {
		return fmt.Errorf("DATABASE_MAX_RETRIES must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
