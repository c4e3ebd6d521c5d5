package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/dvloznov/txn-recurrence/internal/jobs"
	"github.com/dvloznov/txn-recurrence/internal/pipeline"
)

// MockImporter is a mock implementation of jobs.FeedImporter for testing.
type MockImporter struct {
	ImportFeedFunc func(ctx context.Context, userID int64, uri string) (*pipeline.Report, error)
}

func (m *MockImporter) ImportFeed(ctx context.Context, userID int64, uri string) (*pipeline.Report, error) {
	return m.ImportFeedFunc(ctx, userID, uri)
}

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.ImportFeedJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := store.GetJob(context.Background(), jobID)
	t.Fatalf("job %s did not reach %s, last state %+v", jobID, want, job)
	return nil
}

func startQueue(t *testing.T, store *Store, handler jobs.JobHandler) *Queue {
	t.Helper()
	q := NewQueue(10, store, WithWorkers(2), WithMaxRetries(2), WithBackoff(5*time.Millisecond))
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestQueue_CompletesImportJob(t *testing.T) {
	store := NewStore()
	im := &MockImporter{
		ImportFeedFunc: func(ctx context.Context, userID int64, uri string) (*pipeline.Report, error) {
			return &pipeline.Report{UserID: userID, Total: 3, Created: 2, Existing: 1, Attached: 3}, nil
		},
	}
	q := startQueue(t, store, jobs.NewImportHandler(im))

	job := &jobs.ImportFeedJob{UserID: 7, SourceURI: "gs://feeds/a.json"}
	if err := q.PublishImportFeed(context.Background(), job); err != nil {
		t.Fatalf("PublishImportFeed() error = %v", err)
	}
	if job.JobID == "" || job.MaxRetries != 2 {
		t.Errorf("published job = %+v, want generated id and queue retry budget", job)
	}

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if got.Total != 3 || got.Created != 2 || got.Existing != 1 || got.Attached != 3 {
		t.Errorf("job counts = %+v", got)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Error("job timestamps not set")
	}
}

func TestQueue_RetriesTransientFailure(t *testing.T) {
	store := NewStore()
	var calls int32
	im := &MockImporter{
		ImportFeedFunc: func(ctx context.Context, userID int64, uri string) (*pipeline.Report, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return nil, errors.New("connection reset")
			}
			return &pipeline.Report{}, nil
		},
	}
	q := startQueue(t, store, jobs.NewImportHandler(im))

	job := &jobs.ImportFeedJob{UserID: 1, SourceURI: "feed.json"}
	if err := q.PublishImportFeed(context.Background(), job); err != nil {
		t.Fatalf("PublishImportFeed() error = %v", err)
	}

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if got.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", got.RetryCount)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("importer called %d times, want 2", calls)
	}
}

func TestQueue_UnknownUserIsNotRetried(t *testing.T) {
	store := NewStore()
	var calls int32
	im := &MockImporter{
		ImportFeedFunc: func(ctx context.Context, userID int64, uri string) (*pipeline.Report, error) {
			atomic.AddInt32(&calls, 1)
			return &pipeline.Report{}, domain.ErrNotFound
		},
	}
	q := startQueue(t, store, jobs.NewImportHandler(im))

	job := &jobs.ImportFeedJob{UserID: 404, SourceURI: "feed.json"}
	_ = q.PublishImportFeed(context.Background(), job)

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if got.RetryCount != 0 || got.Error == "" {
		t.Errorf("failed job = %+v", got)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("importer called %d times, want 1", calls)
	}
}

func TestQueue_ExhaustsRetries(t *testing.T) {
	store := NewStore()
	var calls int32
	im := &MockImporter{
		ImportFeedFunc: func(ctx context.Context, userID int64, uri string) (*pipeline.Report, error) {
			atomic.AddInt32(&calls, 1)
			return nil, errors.New("timeout")
		},
	}
	q := startQueue(t, store, jobs.NewImportHandler(im))

	job := &jobs.ImportFeedJob{UserID: 1, SourceURI: "feed.json"}
	_ = q.PublishImportFeed(context.Background(), job)

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if got.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", got.RetryCount)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("importer called %d times, want 3", calls)
	}
}

func TestQueue_PublishAfterStop(t *testing.T) {
	q := NewQueue(1, NewStore())
	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := q.PublishImportFeed(context.Background(), &jobs.ImportFeedJob{UserID: 1}); err == nil {
		t.Error("PublishImportFeed() on stopped queue succeeded")
	}
	if err := q.Start(context.Background(), func(ctx context.Context, job jobs.Job) error { return nil }); err == nil {
		t.Error("Start() on stopped queue succeeded")
	}
}
