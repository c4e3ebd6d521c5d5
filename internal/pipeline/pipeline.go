// Package pipeline imports whole aggregator feeds for a user: fetch, decode,
// ingest each record, then attach each stored transaction to a series.
package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/txn-recurrence/internal/feed"
	"github.com/dvloznov/txn-recurrence/internal/logger"
)

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// Importer wires the import steps to their dependencies.
type Importer struct {
	storage  StorageService
	ingester Ingester
	attacher Attacher
}

// NewImporter creates an importer. storage may be nil when only
// ImportRecords is used.
func NewImporter(storage StorageService, ingester Ingester, attacher Attacher) *Importer {
	return &Importer{storage: storage, ingester: ingester, attacher: attacher}
}

// ImportFeed fetches the feed at uri and imports it for userID.
func (im *Importer) ImportFeed(ctx context.Context, userID int64, uri string) (*Report, error) {
	if im.storage == nil {
		return nil, fmt.Errorf("ImportFeed: no storage configured")
	}

	state := &PipelineState{UserID: userID, SourceURI: uri, Report: &Report{UserID: userID, SourceURI: uri}}
	p := NewPipeline(
		&FetchFeedStep{storage: im.storage},
		&DecodeFeedStep{},
		&IngestStep{ingester: im.ingester},
		&MatchStep{attacher: im.attacher},
	)
	return im.run(ctx, p, state)
}

// ImportRecords imports already decoded records for userID.
func (im *Importer) ImportRecords(ctx context.Context, userID int64, records []feed.Record) (*Report, error) {
	state := &PipelineState{UserID: userID, Records: records, Report: &Report{UserID: userID}}
	p := NewPipeline(
		&IngestStep{ingester: im.ingester},
		&MatchStep{attacher: im.attacher},
	)
	return im.run(ctx, p, state)
}

func (im *Importer) run(ctx context.Context, p *Pipeline, state *PipelineState) (*Report, error) {
	ctx = logger.WithUser(ctx, state.UserID)
	log := logger.FromContext(ctx)

	if err := p.Execute(ctx, state); err != nil {
		return state.Report, err
	}

	r := state.Report
	log.Info().
		Str("source", r.SourceURI).
		Int("total", r.Total).
		Int("created", r.Created).
		Int("existing", r.Existing).
		Int("invalid", r.Invalid).
		Int("attached", r.Attached).
		Msg("feed imported")
	return r, nil
}
