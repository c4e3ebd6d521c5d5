package jobs

import (
	"context"
	"errors"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeImportFeed imports an aggregator feed for one user.
	JobTypeImportFeed JobType = "import_feed"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// DefaultMaxRetries applies to jobs published without MaxRetries.
const DefaultMaxRetries = 3

// ErrNoRetry marks handler errors that retrying cannot fix, such as an
// unknown user or an undecodable feed.
var ErrNoRetry = errors.New("not retryable")

// ImportFeedJob imports the feed at SourceURI for UserID.
type ImportFeedJob struct {
	JobID     string `json:"job_id"`
	UserID    int64  `json:"user_id"`
	SourceURI string `json:"source_uri"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`

	// Counts from the last run's import report.
	Total    int `json:"total"`
	Created  int `json:"created"`
	Existing int `json:"existing"`
	Invalid  int `json:"invalid"`
	Attached int `json:"attached"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *ImportFeedJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *ImportFeedJob) GetType() JobType {
	return JobTypeImportFeed
}

// GetStatus implements the Job interface.
func (j *ImportFeedJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher enqueues jobs.
type Publisher interface {
	PublishImportFeed(ctx context.Context, job *ImportFeedJob) error
	Close() error
}

// Consumer runs a handler over queued jobs.
type Consumer interface {
	// Start launches the workers and returns immediately.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error is retried unless it wraps
// ErrNoRetry or the job is out of retries.
type JobHandler func(ctx context.Context, job Job) error

// JobStore records job state.
type JobStore interface {
	SaveJob(ctx context.Context, job *ImportFeedJob) error
	GetJob(ctx context.Context, jobID string) (*ImportFeedJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*ImportFeedJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// UserID filters jobs by user; zero matches all.
	UserID int64

	Status JobStatus

	Limit  int
	Offset int
}
