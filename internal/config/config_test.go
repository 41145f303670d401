package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with defaults failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.GuardSweepInterval != 5*time.Minute {
		t.Errorf("GuardSweepInterval = %v, want 5m", cfg.GuardSweepInterval)
	}
	if cfg.MaxSessionDuration != 24*time.Hour {
		t.Errorf("MaxSessionDuration = %v, want 24h", cfg.MaxSessionDuration)
	}
	if cfg.Retry.BlockingMaxAttempts != 3 {
		t.Errorf("BlockingMaxAttempts = %d, want 3", cfg.Retry.BlockingMaxAttempts)
	}
	if cfg.Retry.BlockingRetryBaseDelay != 500*time.Millisecond {
		t.Errorf("BlockingRetryBaseDelay = %v, want 500ms", cfg.Retry.BlockingRetryBaseDelay)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GUARD_SWEEP_INTERVAL", "30s")
	t.Setenv("BLOCKING_MAX_ATTEMPTS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.GuardSweepInterval != 30*time.Second {
		t.Errorf("GuardSweepInterval = %v, want 30s", cfg.GuardSweepInterval)
	}
	if cfg.Retry.BlockingMaxAttempts != 5 {
		t.Errorf("BlockingMaxAttempts = %d, want 5", cfg.Retry.BlockingMaxAttempts)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("MAX_SESSION_DURATION", "yesterday")
	t.Setenv("BLOCKING_MAX_ATTEMPTS", "many")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxSessionDuration != 24*time.Hour {
		t.Errorf("MaxSessionDuration = %v, want fallback 24h", cfg.MaxSessionDuration)
	}
	if cfg.Retry.BlockingMaxAttempts != 3 {
		t.Errorf("BlockingMaxAttempts = %d, want fallback 3", cfg.Retry.BlockingMaxAttempts)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"empty port", func(c *Config) { c.Port = "" }, true},
		{"empty db path", func(c *Config) { c.DBPath = "" }, true},
		{"zero sweep interval", func(c *Config) { c.GuardSweepInterval = 0 }, true},
		{"zero max session", func(c *Config) { c.MaxSessionDuration = 0 }, true},
		{"zero blocking attempts", func(c *Config) { c.Retry.BlockingMaxAttempts = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Port:               "8080",
				DBPath:             "./data/test.db",
				GuardSweepInterval: time.Minute,
				MaxSessionDuration: 24 * time.Hour,
				Retry: RetryConfig{
					BlockingMaxAttempts: 3,
					DatabaseMaxRetries:  3,
				},
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		frontendURL string
		want        bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"http://127.0.0.1:3000", true},
		{"https://app.nomophone.example", false},
	}

	for _, tt := range tests {
		cfg := &Config{FrontendURL: tt.frontendURL}
		if got := cfg.IsDevelopment(); got != tt.want {
			t.Errorf("IsDevelopment(%q) = %v, want %v", tt.frontendURL, got, tt.want)
		}
	}
}
