package notionsync

import (
	"context"

	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/jomei/notionapi"
)

// NotionService is the slice of the Notion API the sync uses. NotionClient
// implements it; tests substitute a mock.
type NotionService interface {
	CreateSeriesPage(ctx context.Context, databaseID string, props notionapi.Properties) (string, error)
	UpdateSeriesPage(ctx context.Context, pageID string, props notionapi.Properties) error
	ArchivePage(ctx context.Context, pageID string) error

	// QueryPages pages through a database; an empty next cursor ends the scan.
	QueryPages(ctx context.Context, databaseID, cursor string) (pages []notionapi.Page, next string, err error)
}

// SeriesLister lists a user's recurring series. Implemented by recurrence.Matcher.
type SeriesLister interface {
	ListRecurringSeries(ctx context.Context, userID int64) ([]*domain.RecurringTransaction, error)
}
