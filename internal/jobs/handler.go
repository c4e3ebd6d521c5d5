package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/dvloznov/txn-recurrence/internal/feed"
	"github.com/dvloznov/txn-recurrence/internal/logger"
	"github.com/dvloznov/txn-recurrence/internal/pipeline"
)

// FeedImporter is implemented by pipeline.Importer.
type FeedImporter interface {
	ImportFeed(ctx context.Context, userID int64, uri string) (*pipeline.Report, error)
}

// NewImportHandler returns a JobHandler that runs ImportFeedJobs through im
// and copies the report counts onto the job.
func NewImportHandler(im FeedImporter) JobHandler {
	return func(ctx context.Context, job Job) error {
		j, ok := job.(*ImportFeedJob)
		if !ok {
			return fmt.Errorf("unsupported job type %s: %w", job.GetType(), ErrNoRetry)
		}

		log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
			"job_id":  j.JobID,
			"user_id": j.UserID,
			"source":  j.SourceURI,
		})
		ctx = logger.WithContext(ctx, log)

		report, err := im.ImportFeed(ctx, j.UserID, j.SourceURI)
		if report != nil {
			j.Total = report.Total
			j.Created = report.Created
			j.Existing = report.Existing
			j.Invalid = report.Invalid
			j.Attached = report.Attached
		}
		if err != nil {
			log.Error().Err(err).Int("attempt", j.RetryCount+1).Msg("import failed")
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, feed.ErrMalformed) {
				return fmt.Errorf("%w: %w", ErrNoRetry, err)
			}
			return err
		}
		return nil
	}
}
