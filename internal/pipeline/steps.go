package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/dvloznov/txn-recurrence/internal/feed"
	"github.com/dvloznov/txn-recurrence/internal/logger"
)

// PipelineStep represents a single step in the import pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	UserID    int64
	SourceURI string
	Raw       []byte
	Records   []feed.Record

	// Ingested holds the stored transaction for each valid record, in feed
	// order. resultIdx maps each of them back to its line in Report.Results.
	Ingested  []*domain.Transaction
	resultIdx []int

	Report *Report
}

// FetchFeedStep reads the feed document from storage.
type FetchFeedStep struct {
	storage StorageService
}

func (s *FetchFeedStep) Execute(ctx context.Context, state *PipelineState) error {
	data, err := s.storage.Fetch(ctx, state.SourceURI)
	if err != nil {
		return fmt.Errorf("FetchFeedStep: %w", err)
	}
	state.Raw = data
	return nil
}

// DecodeFeedStep parses the raw document into records.
type DecodeFeedStep struct{}

func (s *DecodeFeedStep) Execute(ctx context.Context, state *PipelineState) error {
	records, err := feed.Decode(state.Raw)
	if err != nil {
		return fmt.Errorf("DecodeFeedStep: %w", err)
	}
	state.Records = records
	return nil
}

// IngestStep stores every record. Invalid records are reported and skipped;
// any other failure stops the import.
type IngestStep struct {
	ingester Ingester
}

func (s *IngestStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	state.Report.Total = len(state.Records)

	for _, rec := range state.Records {
		tx, created, err := s.ingester.Ingest(ctx, rec, state.UserID)
		if errors.Is(err, domain.ErrValidation) {
			log.Warn().Str("external_id", rec.ExternalID).Err(err).Msg("skipping invalid record")
			state.Report.add(RecordResult{ExternalID: rec.ExternalID, Outcome: OutcomeInvalid, Error: err.Error()})
			continue
		}
		if err != nil {
			return fmt.Errorf("IngestStep: %w", err)
		}

		outcome := OutcomeExisting
		if created {
			outcome = OutcomeCreated
		}
		state.Report.add(RecordResult{ExternalID: rec.ExternalID, Outcome: outcome, TransactionID: tx.ID})
		state.Ingested = append(state.Ingested, tx)
		state.resultIdx = append(state.resultIdx, len(state.Report.Results)-1)
	}
	return nil
}

// MatchStep attaches every ingested transaction to a series. Records seen in
// an earlier import are attached again, which is a no-op for transactions
// already in a series and completes imports interrupted before matching.
type MatchStep struct {
	attacher Attacher
}

func (s *MatchStep) Execute(ctx context.Context, state *PipelineState) error {
	for i, tx := range state.Ingested {
		series, err := s.attacher.Attach(ctx, tx)
		if err != nil {
			return fmt.Errorf("MatchStep: %w", err)
		}
		if i < len(state.resultIdx) {
			state.Report.Results[state.resultIdx[i]].SeriesID = series.ID
		}
		state.Report.Attached++
	}
	return nil
}
