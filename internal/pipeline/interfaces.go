package pipeline

import (
	"context"

	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/dvloznov/txn-recurrence/internal/feed"
)

// StorageService fetches raw feed documents.
type StorageService interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Ingester stores a feed record for a user. Implemented by ingest.Service.
type Ingester interface {
	Ingest(ctx context.Context, rec feed.Record, userID int64) (*domain.Transaction, bool, error)
}

// Attacher places a stored transaction into a recurring series. Implemented
// by recurrence.Matcher.
type Attacher interface {
	Attach(ctx context.Context, tx *domain.Transaction) (*domain.RecurringTransaction, error)
}
