package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dvloznov/txn-recurrence/internal/api"
	"github.com/dvloznov/txn-recurrence/internal/app"
	"github.com/dvloznov/txn-recurrence/internal/config"
	"github.com/dvloznov/txn-recurrence/internal/jobs"
	"github.com/dvloznov/txn-recurrence/internal/jobs/inmemory"
	"github.com/dvloznov/txn-recurrence/internal/logger"
)

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", "", "Path to config file (default: ./config.yaml if present)")
		port       = flag.Int("port", 0, "HTTP server port (overrides server.port)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	ctx := context.Background()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to open store")
	}
	defer a.Close()
	log := a.Log

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := a.NewQueue(jobStore)

	// Start worker in background to process import jobs
	workerCtx, cancelWorker := context.WithCancel(a.Context(ctx))
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, jobs.NewImportHandler(a.Importer)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}
	log.Info().Int("workers", cfg.Jobs.Workers).Msg("Job worker started")

	handler := api.NewRouter(api.Services{
		Store:     a.Store,
		Ingester:  a.Ingest,
		Matcher:   a.Matcher,
		Publisher: jobQueue,
		Jobs:      jobStore,
	}, log)

	// Create HTTP server
	addr := ":" + strconv.Itoa(cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", addr).Str("store", cfg.Store.Driver).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
