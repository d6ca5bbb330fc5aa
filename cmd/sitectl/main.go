package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/briangreenhill/communitysite/internal/backup"
	"github.com/briangreenhill/communitysite/internal/cache"
	"github.com/briangreenhill/communitysite/internal/config"
	"github.com/briangreenhill/communitysite/internal/content"
	"github.com/briangreenhill/communitysite/internal/store"
	"github.com/briangreenhill/communitysite/internal/store/sqlite"
	"github.com/briangreenhill/communitysite/internal/store/supabase"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "sitectl",
		Short:   "Maintenance tasks for the community site content",
		Version: version,
	}

	root.AddCommand(
		newBackupCmd(),
		newSeedCmd(),
		newContentCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every subcommand works against
type env struct {
	store   store.Store
	catalog *content.Catalog
	backups *backup.Service
	close   func()
}

func openEnv(verbose bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	e := &env{close: func() {}}
	switch cfg.Content.Backend {
	case "sqlite":
		db, err := sqlite.Open(cfg.Content.SQLitePath)
		if err != nil {
			return nil, err
		}
		e.store = db
		e.close = func() { _ = db.Close() }
	case "supabase":
		if !cfg.HasSupabase() {
			return nil, fmt.Errorf("CONTENT_BACKEND=supabase requires SUPABASE_URL and SUPABASE_KEY")
		}
		st, err := supabase.New(cfg.Supabase.URL, cfg.Supabase.Key, supabase.DefaultBreakerConfig(), logger)
		if err != nil {
			return nil, err
		}
		e.store = st
	default:
		return nil, fmt.Errorf("unknown CONTENT_BACKEND %q", cfg.Content.Backend)
	}

	opts := content.DefaultOptions()
	opts.Logger = logger
	opts.FallbackOnEmpty = cfg.Content.FallbackOnEmpty
	e.catalog = content.NewCatalog(e.store, cache.NewStore(0), opts)
	e.backups = backup.New(e.store, backup.Domains(e.catalog.All()), logger)
	return e, nil
}
