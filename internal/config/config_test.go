package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("EMAIL_PROVIDER", "")
	t.Setenv("CREDIT_EXPIRY_INTERVAL", "")
	t.Setenv("CLINIC_TIMEZONE", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	t.Setenv("OUTBOX_QUEUE_URL", "")
	t.Setenv("LEDGER_ARCHIVE_BUCKET", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.EmailProvider != "none" {
		t.Fatalf("expected email provider none, got %s", cfg.EmailProvider)
	}
	if cfg.CreditExpiryInterval != time.Hour {
		t.Fatalf("expected hourly expiry sweep, got %s", cfg.CreditExpiryInterval)
	}
	if cfg.AvailabilityCacheTTL != 30*time.Second {
		t.Fatalf("expected default cache ttl, got %s", cfg.AvailabilityCacheTTL)
	}
	if cfg.ClinicLocation() != time.UTC {
		t.Fatalf("expected UTC clinic location, got %s", cfg.ClinicLocation())
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.AWSEnabled() {
		t.Fatalf("expected AWS disabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("USE_MEMORY_STORE", "true")
	t.Setenv("EMAIL_PROVIDER", " SES ")
	t.Setenv("CREDIT_EXPIRY_INTERVAL", "15m")
	t.Setenv("OUTBOX_BATCH_SIZE", "50")
	t.Setenv("CLINIC_TIMEZONE", "America/Santiago")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://admin.example.com, ,https://app.example.com")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if !cfg.UseMemoryStore {
		t.Fatalf("expected memory store enabled")
	}
	if cfg.EmailProvider != "ses" {
		t.Fatalf("expected normalized email provider, got %q", cfg.EmailProvider)
	}
	if !cfg.AWSEnabled() {
		t.Fatalf("expected SES to enable AWS")
	}
	if cfg.CreditExpiryInterval != 15*time.Minute {
		t.Fatalf("expected expiry interval override, got %s", cfg.CreditExpiryInterval)
	}
	if cfg.OutboxBatchSize != 50 {
		t.Fatalf("expected batch size override, got %d", cfg.OutboxBatchSize)
	}
	if got := cfg.ClinicLocation().String(); got != "America/Santiago" {
		t.Fatalf("expected clinic location override, got %s", got)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://app.example.com" {
		t.Fatalf("unexpected CORS origins: %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("OUTBOX_BATCH_SIZE", "lots")
	t.Setenv("REDIS_TLS", "maybe")
	t.Setenv("AVAILABILITY_CACHE_TTL", "soon")
	t.Setenv("CLINIC_TIMEZONE", "Mars/Olympus")
	cfg := Load()
	if cfg.OutboxBatchSize != 25 {
		t.Fatalf("expected default batch size, got %d", cfg.OutboxBatchSize)
	}
	if cfg.RedisTLS {
		t.Fatalf("expected redis TLS default false")
	}
	if cfg.AvailabilityCacheTTL != 30*time.Second {
		t.Fatalf("expected default cache ttl, got %s", cfg.AvailabilityCacheTTL)
	}
	if cfg.ClinicLocation() != time.UTC {
		t.Fatalf("expected UTC fallback for unknown zone")
	}
}
