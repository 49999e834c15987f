package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("port %d, want 8080", cfg.Server.Port)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("store backend %q, want memory", cfg.Store.Backend)
	}
	if cfg.OTP.TTL != 5*time.Minute {
		t.Errorf("OTP TTL %v, want 5m", cfg.OTP.TTL)
	}
	if cfg.OTP.MaxAttempts != 3 {
		t.Errorf("max attempts %d, want 3", cfg.OTP.MaxAttempts)
	}
	if cfg.RateLimit.Points != 5 || cfg.RateLimit.Window != time.Minute {
		t.Errorf("rate limit %d/%v, want 5/1m", cfg.RateLimit.Points, cfg.RateLimit.Window)
	}
	if !cfg.Text.DryRun {
		t.Error("text provider defaults to live sends")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("OTP_TTL", "10m")
	t.Setenv("RATE_LIMIT_POINTS", "3")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")

	cfg := LoadConfig()

	if cfg.Server.Port != 9090 {
		t.Errorf("port %d, want 9090", cfg.Server.Port)
	}
	if cfg.Store.Backend != "redis" {
		t.Errorf("store backend %q, want redis", cfg.Store.Backend)
	}
	if cfg.OTP.TTL != 10*time.Minute {
		t.Errorf("OTP TTL %v, want 10m", cfg.OTP.TTL)
	}
	if cfg.RateLimit.Points != 3 {
		t.Errorf("rate limit points %d, want 3", cfg.RateLimit.Points)
	}
	if !cfg.Kafka.Enabled {
		t.Error("kafka not enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "broker-2:9092" {
		t.Errorf("brokers %v, want two trimmed entries", cfg.Kafka.Brokers)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cfg := LoadConfig()
	cfg.Store.Backend = "filesystem"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown store backend passed validation")
	}

	cfg = LoadConfig()
	cfg.OTP.MaxAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero max attempts passed validation")
	}

	cfg = LoadConfig()
	cfg.RateLimit.Window = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero rate-limit window passed validation")
	}
}

func TestGetServerAddress(t *testing.T) {
	cfg := LoadConfig()
	if got := cfg.GetServerAddress(); got != ":8080" {
		t.Errorf("address %q, want :8080", got)
	}
}
