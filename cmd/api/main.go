// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	scs "github.com/alexedwards/scs/v2"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	supa "github.com/supabase-community/supabase-go"

	"github.com/briangreenhill/communitysite/internal/analytics"
	"github.com/briangreenhill/communitysite/internal/auth"
	"github.com/briangreenhill/communitysite/internal/backup"
	"github.com/briangreenhill/communitysite/internal/cache"
	"github.com/briangreenhill/communitysite/internal/config"
	"github.com/briangreenhill/communitysite/internal/content"
	"github.com/briangreenhill/communitysite/internal/email"
	"github.com/briangreenhill/communitysite/internal/http/routes"
	"github.com/briangreenhill/communitysite/internal/jobs"
	"github.com/briangreenhill/communitysite/internal/media"
	"github.com/briangreenhill/communitysite/internal/metrics"
	"github.com/briangreenhill/communitysite/internal/store"
	"github.com/briangreenhill/communitysite/internal/store/sqlite"
	"github.com/briangreenhill/communitysite/internal/store/supabase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	log.Printf("starting app on :%s", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector("communitysite")

	// Supabase client, shared by the content store and media storage
	var client *supa.Client
	if cfg.HasSupabase() {
		client, err = supa.NewClient(cfg.Supabase.URL, cfg.Supabase.Key, nil)
		if err != nil {
			log.Fatalf("supabase error: %v", err)
		}
	}

	// Content store
	var st store.Store
	switch cfg.Content.Backend {
	case "sqlite":
		db, err := sqlite.Open(cfg.Content.SQLitePath)
		if err != nil {
			log.Fatalf("sqlite error: %v", err)
		}
		defer db.Close()
		st = db
	default:
		st = supabase.NewWithClient(client, supabase.DefaultBreakerConfig(), logger.With().Str("component", "store").Logger())
	}

	// Background jobs
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer asynqClient.Close()
	jobClient := jobs.NewClient(asynqClient, logger.With().Str("component", "jobs").Logger())

	// Content services over one read-through cache
	c := cache.NewStore(cfg.Cache.SweepInterval, cache.WithObserver(collector))
	opts := content.DefaultOptions()
	opts.ListTTL = cfg.Cache.ListTTL
	opts.ItemTTL = cfg.Cache.ItemTTL
	opts.PageTTL = cfg.Cache.PageTTL
	opts.FallbackOnEmpty = cfg.Content.FallbackOnEmpty
	opts.Recorder = collector
	opts.Logger = logger.With().Str("component", "content").Logger()
	opts.ObjectsRemoved = func(ctx context.Context, _ string, paths []string) {
		jobClient.EnqueueMediaRemove(context.WithoutCancel(ctx), media.GalleryBucket, paths)
	}
	catalog := content.NewCatalog(st, c, opts)

	// Analytics
	var views analytics.Recorder = analytics.Nop{}
	if cfg.HasAnalytics() {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db error: %v", err)
		}
		defer pool.Close()
		pg := analytics.NewPostgres(pool, logger.With().Str("component", "analytics").Logger())
		if err := pg.Migrate(ctx); err != nil {
			log.Fatalf("analytics migrate error: %v", err)
		}
		views = pg
	}

	// Media
	var storage media.Storage = media.Disabled{}
	if client != nil {
		storage = media.NewSupabase(client.Storage, logger.With().Str("component", "media").Logger())
	}

	// Mail sender
	var sender email.Sender = email.StdoutSender{Log: logger}
	if cfg.HasSMTP() {
		sender = email.NewSMTPSender(cfg.SMTP.Addr, cfg.SMTP.From)
	}

	// Sessions
	sess := scs.New()
	sess.Lifetime = 12 * time.Hour
	sess.Cookie.HttpOnly = true
	sess.Cookie.SameSite = http.SameSiteLaxMode
	sess.Cookie.Secure = cfg.SecureCookies

	// Templates with custom functions
	tmpl, err := routes.ParseTemplates("web/templates/*.tmpl")
	if err != nil {
		log.Fatalf("template error: %v", err)
	}

	// Router / server
	s := routes.New(routes.ServerOptions{
		Sess:      sess,
		Tmpl:      tmpl,
		Catalog:   catalog,
		Cache:     c,
		Magic:     auth.MagicLink{Secret: []byte(cfg.SessionSecret), BaseURL: cfg.BaseURL},
		Tokens:    auth.TokenVerifier{Secret: []byte(cfg.Supabase.JWTSecret), Admins: auth.Allowlist(cfg.AdminEmails)},
		Email:     sender,
		Media:     storage,
		Backups:   backup.New(st, backup.Domains(catalog.All()), logger.With().Str("component", "backup").Logger()),
		Jobs:      jobClient,
		Analytics: views,
		Metrics:   collector,
		Logger:    logger,
		Cfg:       cfg,
		StaticDir: "web/static",
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown")
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	logger.Info().Msg("server stopped")
}
