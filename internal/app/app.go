// Package app assembles the services shared by the commands from config.
package app

import (
	"context"
	"fmt"

	"github.com/dvloznov/txn-recurrence/internal/config"
	"github.com/dvloznov/txn-recurrence/internal/gcs"
	"github.com/dvloznov/txn-recurrence/internal/ingest"
	"github.com/dvloznov/txn-recurrence/internal/jobs"
	jobsmem "github.com/dvloznov/txn-recurrence/internal/jobs/inmemory"
	"github.com/dvloznov/txn-recurrence/internal/logger"
	"github.com/dvloznov/txn-recurrence/internal/pipeline"
	"github.com/dvloznov/txn-recurrence/internal/recurrence"
	"github.com/dvloznov/txn-recurrence/internal/store"
	"github.com/dvloznov/txn-recurrence/internal/store/inmemory"
	"github.com/dvloznov/txn-recurrence/internal/store/postgres"
	"github.com/rs/zerolog"
)

// App holds the wired core services.
type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	Store    store.Repository
	Ingest   *ingest.Service
	Matcher  *recurrence.Matcher
	Storage  *gcs.StorageService
	Importer *pipeline.Importer
}

// Open connects the configured store and builds the services on top of it.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.NewWithLevel(cfg.Log.Level, cfg.Log.Format)

	st, err := OpenStore(logger.WithContext(ctx, log), cfg)
	if err != nil {
		return nil, err
	}

	storage := gcs.NewStorageService()
	ingester := ingest.NewService(st)
	matcher := recurrence.NewMatcher(st)

	return &App{
		Config:   cfg,
		Log:      log,
		Store:    st,
		Ingest:   ingester,
		Matcher:  matcher,
		Storage:  storage,
		Importer: pipeline.NewImporter(storage, ingester, matcher),
	}, nil
}

// OpenStore returns the store selected by store.driver.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Repository, error) {
	log := logger.FromContext(ctx)

	switch cfg.Store.Driver {
	case config.DriverMemory:
		log.Warn().Msg("using in-memory store; data is lost on exit")
		return inmemory.New(), nil

	case config.DriverPostgres:
		if err := cfg.RequireDatabase(); err != nil {
			return nil, err
		}
		st, err := postgres.New(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("OpenStore: %w", err)
		}
		log.Info().Int32("max_conns", cfg.Database.MaxConns).Msg("connected to postgres")
		return st, nil

	default:
		return nil, fmt.Errorf("OpenStore: unknown store driver %q", cfg.Store.Driver)
	}
}

// NewQueue builds the in-process job queue from the jobs.* settings.
func (a *App) NewQueue(store jobs.JobStore) *jobsmem.Queue {
	return jobsmem.NewQueue(a.Config.Jobs.Buffer, store,
		jobsmem.WithWorkers(a.Config.Jobs.Workers),
		jobsmem.WithMaxRetries(a.Config.Jobs.MaxRetries),
		jobsmem.WithBackoff(a.Config.Jobs.Backoff),
	)
}

// Context returns ctx carrying the app logger.
func (a *App) Context(ctx context.Context) context.Context {
	return logger.WithContext(ctx, a.Log)
}

// Close releases the store.
func (a *App) Close() {
	a.Store.Close()
}
