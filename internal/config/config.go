// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration
type Config struct {
	Port          string   `env:"PORT" envDefault:"8080"`
	BaseURL       string   `env:"BASE_URL" envDefault:"http://localhost:8080"`
	SessionSecret string   `env:"SESSION_SECRET"`
	SecureCookies bool     `env:"SECURE_COOKIES" envDefault:"false"`
	AdminEmails   []string `env:"ADMIN_EMAILS" envSeparator:","`
	OrgInbox      string   `env:"ORG_INBOX" envDefault:"hello@community.local"`
	LogLevel      string   `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL   string   `env:"DATABASE_URL"`
	RedisAddr     string   `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	SiteName      string   `env:"SITE_NAME" envDefault:"Riverside Community Association"`
	CORSOrigins   []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	BackupCron    string   `env:"BACKUP_CRON" envDefault:"0 3 * * *"`

	Content  ContentConfig
	Supabase SupabaseConfig
	Cache    CacheConfig
	SMTP     SMTPConfig
}

// ContentConfig selects the remote content backend
type ContentConfig struct {
	Backend         string `env:"CONTENT_BACKEND" envDefault:"supabase"`
	SQLitePath      string `env:"CONTENT_SQLITE_PATH" envDefault:"community.db"`
	FallbackOnEmpty bool   `env:"CONTENT_FALLBACK_ON_EMPTY" envDefault:"true"`
}

// SupabaseConfig holds Supabase project credentials
type SupabaseConfig struct {
	URL       string `env:"SUPABASE_URL"`
	Key       string `env:"SUPABASE_KEY"`
	JWTSecret string `env:"SUPABASE_JWT_SECRET"`
}

// CacheConfig holds read-through cache TTLs
type CacheConfig struct {
	ListTTL       time.Duration `env:"CACHE_LIST_TTL" envDefault:"5m"`
	ItemTTL       time.Duration `env:"CACHE_ITEM_TTL" envDefault:"10m"`
	PageTTL       time.Duration `env:"CACHE_PAGE_TTL" envDefault:"2m"`
	SweepInterval time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"10m"`
}

// SMTPConfig holds outgoing mail settings. An empty Addr logs mail to stdout.
type SMTPConfig struct {
	Addr string `env:"SMTP_ADDR"`
	From string `env:"SMTP_FROM" envDefault:"no-reply@community.local"`
}

// Load reads configuration from environment variables
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	emails := make([]string, 0, len(cfg.AdminEmails))
	for _, e := range cfg.AdminEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			emails = append(emails, e)
		}
	}
	cfg.AdminEmails = emails
	cfg.Content.Backend = strings.ToLower(strings.TrimSpace(cfg.Content.Backend))

	return cfg, nil
}

// HasSupabase returns true if Supabase credentials are complete
func (c Config) HasSupabase() bool {
	return c.Supabase.URL != "" && c.Supabase.Key != ""
}

// HasAnalytics returns true if a Postgres database is configured for page views
func (c Config) HasAnalytics() bool {
	return c.DatabaseURL != ""
}

// HasSMTP returns true if outgoing mail should use SMTP
func (c Config) HasSMTP() bool {
	return c.SMTP.Addr != ""
}

// Validate checks cross-field requirements
func (c Config) Validate() error {
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET must be set")
	}
	switch c.Content.Backend {
	case "supabase":
		if !c.HasSupabase() {
			return fmt.Errorf("CONTENT_BACKEND=supabase requires SUPABASE_URL and SUPABASE_KEY")
		}
	case "sqlite":
		if c.Content.SQLitePath == "" {
			return fmt.Errorf("CONTENT_BACKEND=sqlite requires CONTENT_SQLITE_PATH")
		}
	default:
		return fmt.Errorf("unknown CONTENT_BACKEND %q", c.Content.Backend)
	}
	if c.Cache.ListTTL <= 0 || c.Cache.ItemTTL <= 0 || c.Cache.PageTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	return nil
}
