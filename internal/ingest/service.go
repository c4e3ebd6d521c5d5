// Package ingest turns upstream feed records into stored transactions,
// idempotently per (user, external id).
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/dvloznov/txn-recurrence/internal/feed"
	"github.com/dvloznov/txn-recurrence/internal/logger"
)

// TransactionStore is the subset of store.Repository used for ingestion.
type TransactionStore interface {
	GetByExternalID(ctx context.Context, userID int64, externalID string) (*domain.Transaction, error)
	InsertTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error)
}

// Service ingests feed records.
type Service struct {
	store TransactionStore
}

// NewService creates an ingestion service backed by store.
func NewService(store TransactionStore) *Service {
	return &Service{store: store}
}

// Ingest stores rec for userID unless a transaction with the same external id
// already exists for that user, in which case the stored one is returned
// untouched. The bool reports whether a row was created.
func (s *Service) Ingest(ctx context.Context, rec feed.Record, userID int64) (*domain.Transaction, bool, error) {
	log := logger.FromContext(ctx)

	if err := ValidateRecord(rec); err != nil {
		return nil, false, fmt.Errorf("Ingest: record %q: %w", rec.ExternalID, err)
	}

	existing, err := s.store.GetByExternalID(ctx, userID, rec.ExternalID)
	if err == nil {
		log.Debug().Int64("user_id", userID).Str("external_id", rec.ExternalID).
			Int64("transaction_id", existing.ID).Msg("transaction already ingested")
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, fmt.Errorf("Ingest: looking up %q: %w", rec.ExternalID, err)
	}

	created, err := s.store.InsertTransaction(ctx, &domain.Transaction{
		UserID:      userID,
		ExternalID:  rec.ExternalID,
		AccountID:   rec.AccountID,
		Date:        rec.Date,
		Description: rec.Description,
		Amount:      rec.Amount.Decimal,
	})
	switch {
	case err == nil:
		log.Debug().Int64("user_id", userID).Str("external_id", rec.ExternalID).
			Int64("transaction_id", created.ID).Msg("transaction ingested")
		return created, true, nil

	case errors.Is(err, domain.ErrConflict):
		// A concurrent import of the same record won the insert.
		existing, err := s.store.GetByExternalID(ctx, userID, rec.ExternalID)
		if err != nil {
			return nil, false, fmt.Errorf("Ingest: fetching %q after conflict: %w", rec.ExternalID, err)
		}
		return existing, false, nil

	default:
		return nil, false, fmt.Errorf("Ingest: inserting %q: %w", rec.ExternalID, err)
	}
}
