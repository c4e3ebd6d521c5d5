package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/txn-recurrence/internal/app"
	"github.com/dvloznov/txn-recurrence/internal/config"
	"github.com/dvloznov/txn-recurrence/internal/jobs"
	"github.com/dvloznov/txn-recurrence/internal/jobs/inmemory"
	"github.com/dvloznov/txn-recurrence/internal/logger"
	"github.com/robfig/cron/v3"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to config file (default: ./config.yaml if present)")
		userID     = flag.Int64("user", 0, "User ID to import feeds for (required)")
		schedule   = flag.String("schedule", "", `Cron spec to re-import on (e.g. "@daily"); empty runs once`)
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: worker -user <id> [-schedule <spec>] <feed-uri>...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	sources := flag.Args()
	if *userID <= 0 || len(sources) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}

	a, err := app.Open(context.Background(), cfg)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to open store")
	}
	defer a.Close()
	log := a.Log

	// Create context that cancels on interrupt
	ctx, stop := signal.NotifyContext(a.Context(context.Background()), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobStore := inmemory.NewStore()
	jobQueue := a.NewQueue(jobStore)

	if err := jobQueue.Start(ctx, jobs.NewImportHandler(a.Importer)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Int64("user_id", *userID).Strs("sources", sources).Str("schedule", *schedule).Msg("Worker service started")

	if *schedule == "" {
		ids, err := enqueueAll(ctx, jobQueue, *userID, sources)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to enqueue imports")
		}
		failed, err := waitForJobs(ctx, jobStore, ids, 100*time.Millisecond)
		if err != nil {
			log.Error().Err(err).Msg("Interrupted while waiting for imports")
		}
		shutdown(ctx, jobQueue)
		if failed > 0 || err != nil {
			os.Exit(1)
		}
		return
	}

	c := cron.New()
	_, err = c.AddFunc(*schedule, func() {
		if _, err := enqueueAll(ctx, jobQueue, *userID, sources); err != nil {
			log.Error().Err(err).Msg("Scheduled import failed to enqueue")
		}
	})
	if err != nil {
		log.Fatal().Err(err).Str("schedule", *schedule).Msg("Invalid cron schedule")
	}
	c.Start()

	<-ctx.Done()
	log.Info().Msg("Shutting down worker service...")

	<-c.Stop().Done()
	shutdown(ctx, jobQueue)
}

func shutdown(ctx context.Context, q *inmemory.Queue) {
	log := logger.FromContext(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop the queue and wait for in-flight jobs
	if err := q.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}

// enqueueAll publishes one import job per source and returns the job ids.
func enqueueAll(ctx context.Context, pub jobs.Publisher, userID int64, sources []string) ([]string, error) {
	log := logger.FromContext(ctx)

	ids := make([]string, 0, len(sources))
	for _, src := range sources {
		job := &jobs.ImportFeedJob{UserID: userID, SourceURI: src}
		if err := pub.PublishImportFeed(ctx, job); err != nil {
			return ids, fmt.Errorf("enqueue %s: %w", src, err)
		}
		log.Info().Str("job_id", job.JobID).Str("source", src).Msg("Import job enqueued")
		ids = append(ids, job.JobID)
	}
	return ids, nil
}

// waitForJobs polls until every job is completed or failed and returns the
// number of failed jobs.
func waitForJobs(ctx context.Context, store jobs.JobStore, ids []string, poll time.Duration) (int, error) {
	log := logger.FromContext(ctx)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	pending := make(map[string]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
	}

	failed := 0
	for len(pending) > 0 {
		for id := range pending {
			job, err := store.GetJob(ctx, id)
			if err != nil {
				return failed, fmt.Errorf("get job %s: %w", id, err)
			}
			switch job.Status {
			case jobs.JobStatusCompleted:
				log.Info().Str("job_id", id).Int("created", job.Created).Int("existing", job.Existing).
					Int("invalid", job.Invalid).Int("attached", job.Attached).Msg("Import completed")
				delete(pending, id)
			case jobs.JobStatusFailed:
				log.Error().Str("job_id", id).Str("error", job.Error).Msg("Import failed")
				failed++
				delete(pending, id)
			}
		}
		if len(pending) == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return failed, ctx.Err()
		case <-ticker.C:
		}
	}
	return failed, nil
}
