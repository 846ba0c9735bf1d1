package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q", cfg.Port)
	}
	if cfg.GinMode != "release" || cfg.LogLevel != "info" {
		t.Fatalf("mode/level = %q/%q", cfg.GinMode, cfg.LogLevel)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("APIBasePath = %q", cfg.APIBasePath)
	}
	if cfg.DBPath != "matchd.db" || cfg.MaxContentRunes != 2000 {
		t.Fatalf("app defaults = %q / %d", cfg.DBPath, cfg.MaxContentRunes)
	}
	if cfg.RedisAddr != "" || cfg.SweepOnStart {
		t.Fatalf("queue should be off by default")
	}
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate defaults = %v / %d", cfg.RateRPS, cfg.RateBurst)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("IdempotencyTTL = %v", cfg.IdempotencyTTL)
	}
	if cfg.OTEL.Enabled || cfg.OTEL.ServiceName != "go-match-backend" || cfg.OTEL.SampleRatio != 1.0 {
		t.Fatalf("otel defaults = %+v", cfg.OTEL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GIN_MODE", "DEBUG")
	t.Setenv("LOG_LEVEL", "warning")
	t.Setenv("API_BASE_PATH", "v2/")
	t.Setenv("MSG_MAX_RUNES", "500")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("SWEEP_ON_START", "yes")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("READ_TIMEOUT", "3s")
	t.Setenv("IDEMPOTENCY_TTL", "1h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("Port = %q", cfg.Port)
	}
	if cfg.GinMode != "debug" {
		t.Fatalf("GinMode = %q; want lowercased", cfg.GinMode)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("LogLevel = %q; want warning normalized to warn", cfg.LogLevel)
	}
	if cfg.APIBasePath != "/v2" {
		t.Fatalf("APIBasePath = %q", cfg.APIBasePath)
	}
	if cfg.MaxContentRunes != 500 {
		t.Fatalf("MaxContentRunes = %d", cfg.MaxContentRunes)
	}
	if cfg.RedisAddr != "redis:6379" || !cfg.SweepOnStart {
		t.Fatalf("queue config = %q / %v", cfg.RedisAddr, cfg.SweepOnStart)
	}
	want := []string{"https://a.example", "https://b.example"}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, want) {
		t.Fatalf("origins = %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.ReadTimeout != 3*time.Second {
		t.Fatalf("ReadTimeout = %v", cfg.ReadTimeout)
	}
	if cfg.IdempotencyTTL != time.Hour {
		t.Fatalf("IdempotencyTTL = %v", cfg.IdempotencyTTL)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad log level", "LOG_LEVEL", "verbose"},
		{"negative timeout", "READ_TIMEOUT", "-1s"},
		{"zero header cap", "MAX_HEADER_BYTES", "0"},
		{"zero rune cap", "MSG_MAX_RUNES", "0"},
		{"negative rps", "RATE_RPS", "-1"},
		{"zero burst", "RATE_BURST", "0"},
		{"zero idempotency ttl", "IDEMPOTENCY_TTL", "0s"},
		{"sampler out of range", "OTEL_TRACES_SAMPLER_ARG", "1.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected validation error for %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestLoad_UnknownGinModeFallsBack(t *testing.T) {
	t.Setenv("GIN_MODE", "turbo")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("GinMode = %q", cfg.GinMode)
	}
}

func TestLoad_MalformedValuesUseDefaults(t *testing.T) {
	t.Setenv("RATE_RPS", "fast")
	t.Setenv("READ_TIMEOUT", "soon")
	t.Setenv("SWEEP_ON_START", "maybe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RateRPS != 5.0 || cfg.ReadTimeout != 15*time.Second || cfg.SweepOnStart {
		t.Fatalf("defaults not applied: %v %v %v", cfg.RateRPS, cfg.ReadTimeout, cfg.SweepOnStart)
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":        "/",
		"/":       "/",
		"api":     "/api",
		"/api/":   "/api",
		"/api/v1": "/api/v1",
		" /x/ ":   "/x",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}
