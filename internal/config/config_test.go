package config

import (
	"os"
	"testing"
	"time"
)

// clearEnv unsets every variable Load reads so host settings don't leak in
func clearEnv(t *testing.T) {
	for _, key := range []string{
		"PORT", "BASE_URL", "SESSION_SECRET", "ADMIN_EMAILS", "DATABASE_URL",
		"CONTENT_BACKEND", "CONTENT_FALLBACK_ON_EMPTY", "SUPABASE_URL", "SUPABASE_KEY",
		"CACHE_LIST_TTL", "CACHE_ITEM_TTL", "CACHE_PAGE_TTL", "SMTP_ADDR",
		"CORS_ORIGINS", "BACKUP_CRON",
	} {
		original, ok := os.LookupEnv(key)
		_ = os.Unsetenv(key)
		t.Cleanup(func() {
			if ok {
				_ = os.Setenv(key, original)
			} else {
				_ = os.Unsetenv(key)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected Port '8080', got '%s'", cfg.Port)
	}
	if cfg.Cache.ListTTL != 5*time.Minute {
		t.Errorf("Expected list TTL 5m, got %v", cfg.Cache.ListTTL)
	}
	if cfg.Cache.ItemTTL != 10*time.Minute {
		t.Errorf("Expected item TTL 10m, got %v", cfg.Cache.ItemTTL)
	}
	if cfg.Cache.PageTTL != 2*time.Minute {
		t.Errorf("Expected page TTL 2m, got %v", cfg.Cache.PageTTL)
	}
	if !cfg.Content.FallbackOnEmpty {
		t.Error("Fallback on empty should default to true")
	}
	if cfg.Content.Backend != "supabase" {
		t.Errorf("Expected supabase backend, got '%s'", cfg.Content.Backend)
	}
	if cfg.HasAnalytics() {
		t.Error("Should not have analytics configured")
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("Expected CORS origins [*], got %v", cfg.CORSOrigins)
	}
	if cfg.BackupCron != "0 3 * * *" {
		t.Errorf("Expected nightly backup cron, got '%s'", cfg.BackupCron)
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("ADMIN_EMAILS", " Admin@Example.org, ,staff@example.org")
	t.Setenv("CONTENT_BACKEND", " SQLite ")
	t.Setenv("CACHE_LIST_TTL", "30s")
	t.Setenv("CONTENT_FALLBACK_ON_EMPTY", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if len(cfg.AdminEmails) != 2 {
		t.Fatalf("Expected 2 admin emails, got %v", cfg.AdminEmails)
	}
	if cfg.AdminEmails[0] != "admin@example.org" || cfg.AdminEmails[1] != "staff@example.org" {
		t.Errorf("Admin emails should be trimmed and lowercased, got %v", cfg.AdminEmails)
	}
	if cfg.Content.Backend != "sqlite" {
		t.Errorf("Expected backend 'sqlite', got '%s'", cfg.Content.Backend)
	}
	if cfg.Cache.ListTTL != 30*time.Second {
		t.Errorf("Expected list TTL 30s, got %v", cfg.Cache.ListTTL)
	}
	if cfg.Content.FallbackOnEmpty {
		t.Error("Fallback on empty should be disabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Should validate: %v", err)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("CACHE_ITEM_TTL", "ten minutes")

	if _, err := Load(); err == nil {
		t.Error("Expected error for invalid CACHE_ITEM_TTL")
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		SessionSecret: "x",
		Content:       ContentConfig{Backend: "supabase"},
		Supabase:      SupabaseConfig{URL: "https://x.supabase.co", Key: "anon"},
		Cache:         CacheConfig{ListTTL: time.Minute, ItemTTL: time.Minute, PageTTL: time.Minute},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("Should not error with complete config: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing session secret", func(c *Config) { c.SessionSecret = "" }},
		{"missing supabase key", func(c *Config) { c.Supabase.Key = "" }},
		{"unknown backend", func(c *Config) { c.Content.Backend = "mongo" }},
		{"sqlite without path", func(c *Config) { c.Content.Backend = "sqlite"; c.Content.SQLitePath = "" }},
		{"zero ttl", func(c *Config) { c.Cache.PageTTL = 0 }},
	}
	for _, tt := range tests {
		cfg := base
		tt.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}
