package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/txn-recurrence/internal/jobs"
	"github.com/dvloznov/txn-recurrence/internal/logger"
	"github.com/google/uuid"
)

// Queue is a channel-backed job publisher and consumer for single-instance
// deployments and tests.
type Queue struct {
	jobChan   chan *jobs.ImportFeedJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool

	workers    int
	maxRetries int
	backoff    time.Duration
}

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets the number of concurrent workers. Default 5.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithMaxRetries sets the retry budget for jobs published without one.
func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		if n >= 0 {
			q.maxRetries = n
		}
	}
}

// WithBackoff sets the base retry delay; attempt n waits n times this.
func WithBackoff(d time.Duration) Option {
	return func(q *Queue) {
		q.backoff = d
	}
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before PublishImportFeed blocks.
func NewQueue(bufferSize int, store jobs.JobStore, opts ...Option) *Queue {
	q := &Queue{
		jobChan:    make(chan *jobs.ImportFeedJob, bufferSize),
		closeChan:  make(chan struct{}),
		store:      store,
		workers:    5,
		maxRetries: jobs.DefaultMaxRetries,
		backoff:    time.Second,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// PublishImportFeed implements the Publisher interface.
func (q *Queue) PublishImportFeed(ctx context.Context, job *jobs.ImportFeedJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = q.maxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start implements the Consumer interface.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job and schedules a retry on failure.
func (q *Queue) processJob(ctx context.Context, job *jobs.ImportFeedJob, handler jobs.JobHandler) {
	log := logger.FromContext(ctx)

	job.Status = jobs.JobStatusRunning
	now := time.Now().UTC()
	job.StartedAt = &now
	job.CompletedAt = nil

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}

	err := handler(ctx, job)

	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt

	retry := false
	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""

	case job.RetryCount < job.MaxRetries && !errors.Is(err, jobs.ErrNoRetry):
		job.Error = err.Error()
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		retry = true

	default:
		job.Error = err.Error()
		job.Status = jobs.JobStatusFailed
		log.Error().Str("job_id", job.JobID).Err(err).Msg("job failed")
	}

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}

	if !retry {
		return
	}

	backoff := time.Duration(job.RetryCount) * q.backoff
	log.Warn().Str("job_id", job.JobID).Int("retry", job.RetryCount).
		Dur("backoff", backoff).Err(err).Msg("job failed, retrying")

	next := *job
	next.Status = jobs.JobStatusPending
	next.StartedAt = nil
	next.CompletedAt = nil
	time.AfterFunc(backoff, func() {
		if err := q.PublishImportFeed(ctx, &next); err != nil {
			log.Error().Str("job_id", next.JobID).Err(err).Msg("re-enqueue failed")
		}
	})
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
