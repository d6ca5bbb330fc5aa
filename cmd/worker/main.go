package main

import (
	"log"
	"os"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	supa "github.com/supabase-community/supabase-go"

	"github.com/briangreenhill/communitysite/internal/backup"
	"github.com/briangreenhill/communitysite/internal/cache"
	"github.com/briangreenhill/communitysite/internal/config"
	"github.com/briangreenhill/communitysite/internal/content"
	"github.com/briangreenhill/communitysite/internal/jobs"
	"github.com/briangreenhill/communitysite/internal/media"
	"github.com/briangreenhill/communitysite/internal/store"
	"github.com/briangreenhill/communitysite/internal/store/sqlite"
	"github.com/briangreenhill/communitysite/internal/store/supabase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("process", "worker").Logger()

	var client *supa.Client
	if cfg.HasSupabase() {
		client, err = supa.NewClient(cfg.Supabase.URL, cfg.Supabase.Key, nil)
		if err != nil {
			log.Fatalf("supabase error: %v", err)
		}
	}

	var st store.Store
	if cfg.Content.Backend == "sqlite" {
		db, err := sqlite.Open(cfg.Content.SQLitePath)
		if err != nil {
			log.Fatalf("sqlite error: %v", err)
		}
		defer db.Close()
		st = db
	} else {
		if client == nil {
			log.Fatal("worker requires SUPABASE_URL and SUPABASE_KEY")
		}
		st = supabase.NewWithClient(client, supabase.DefaultBreakerConfig(), logger)
	}

	var storage media.Storage = media.Disabled{}
	if client != nil {
		storage = media.NewSupabase(client.Storage, logger)
	}

	// The worker only needs the domain list; its cache is never read.
	catalog := content.NewCatalog(st, cache.NewStore(0), content.DefaultOptions())

	h := &jobs.Handlers{
		Backups: backup.New(st, backup.Domains(catalog.All()), logger),
		Storage: storage,
		Log:     logger,
	}

	redis := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	srv := asynq.NewServer(redis, asynq.Config{
		Concurrency:    4,
		StrictPriority: false,
		Queues: map[string]int{
			jobs.QueueMaintenance: 3,
			jobs.QueueDefault:     5, // user-triggered media cleanup first
		},
	})
	mux := asynq.NewServeMux()
	h.Register(mux)

	if cfg.BackupCron != "" {
		task, err := jobs.NewBackupExportTask(jobs.BackupExportPayload{Scheduled: true})
		if err != nil {
			log.Fatalf("backup task error: %v", err)
		}
		scheduler := asynq.NewScheduler(redis, nil)
		id, err := scheduler.Register(cfg.BackupCron, task)
		if err != nil {
			log.Fatalf("schedule backup %q: %v", cfg.BackupCron, err)
		}
		logger.Info().Str("entry", id).Str("cron", cfg.BackupCron).Msg("backup scheduled")
		if err := scheduler.Start(); err != nil {
			log.Fatalf("scheduler error: %v", err)
		}
		defer scheduler.Shutdown()
	}

	log.Println("Worker running...")
	if err := srv.Run(mux); err != nil {
		log.Fatal(err)
	}
}
