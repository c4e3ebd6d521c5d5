package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/dvloznov/txn-recurrence/internal/logger"
	"github.com/dvloznov/txn-recurrence/internal/pipeline"
)

type MockImporter struct {
	ImportFeedFunc func(ctx context.Context, userID int64, uri string) (*pipeline.Report, error)
}

func (m *MockImporter) ImportFeed(ctx context.Context, userID int64, uri string) (*pipeline.Report, error) {
	return m.ImportFeedFunc(ctx, userID, uri)
}

func TestImportHandler_TagsLogWithJobFields(t *testing.T) {
	tests := []struct {
		name        string
		importErr   error
		wantNoRetry bool
	}{
		{name: "transient failure retries", importErr: errors.New("bucket unavailable")},
		{name: "unknown user stops", importErr: fmt.Errorf("user 7: %w", domain.ErrNotFound), wantNoRetry: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			ctx := logger.WithContext(context.Background(), logger.NewWithWriter(buf))

			im := &MockImporter{
				ImportFeedFunc: func(ctx context.Context, userID int64, uri string) (*pipeline.Report, error) {
					ctxLog := logger.FromContext(ctx)
					ctxLog.Info().Msg("importing")
					return &pipeline.Report{Total: 4, Invalid: 1}, tt.importErr
				},
			}
			job := &ImportFeedJob{JobID: "job-1", UserID: 7, SourceURI: "gs://feeds/a.json"}

			err := NewImportHandler(im)(ctx, job)
			if err == nil {
				t.Fatal("handler error = nil, want import failure")
			}
			if got := errors.Is(err, ErrNoRetry); got != tt.wantNoRetry {
				t.Errorf("errors.Is(err, ErrNoRetry) = %v, want %v", got, tt.wantNoRetry)
			}
			if job.Total != 4 || job.Invalid != 1 {
				t.Errorf("report counts not copied: total=%d invalid=%d", job.Total, job.Invalid)
			}

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			if len(lines) != 2 {
				t.Fatalf("got %d log lines, want 2: %s", len(lines), buf.String())
			}
			for _, line := range lines {
				var entry map[string]interface{}
				if err := json.Unmarshal([]byte(line), &entry); err != nil {
					t.Fatalf("log line is not JSON: %q", line)
				}
				if entry["job_id"] != "job-1" || entry["source"] != "gs://feeds/a.json" {
					t.Errorf("%q missing job fields: %v", entry["message"], entry)
				}
				if entry["user_id"] != float64(7) {
					t.Errorf("%q user_id = %v, want 7", entry["message"], entry["user_id"])
				}
			}
		})
	}
}

func TestImportHandler_RejectsOtherJobTypes(t *testing.T) {
	im := &MockImporter{
		ImportFeedFunc: func(ctx context.Context, userID int64, uri string) (*pipeline.Report, error) {
			t.Fatal("importer called for unsupported job")
			return nil, nil
		},
	}

	err := NewImportHandler(im)(context.Background(), otherJob{})
	if !errors.Is(err, ErrNoRetry) {
		t.Errorf("error = %v, want ErrNoRetry", err)
	}
}

type otherJob struct{}

func (otherJob) GetID() string        { return "other-1" }
func (otherJob) GetType() JobType     { return JobType("other") }
func (otherJob) GetStatus() JobStatus { return JobStatusPending }
