package notionsync

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"
)

// MockNotionService is a mock implementation of NotionService for testing.
type MockNotionService struct {
	CreateSeriesPageFunc func(ctx context.Context, databaseID string, props notionapi.Properties) (string, error)
	UpdateSeriesPageFunc func(ctx context.Context, pageID string, props notionapi.Properties) error
	ArchivePageFunc      func(ctx context.Context, pageID string) error
	QueryPagesFunc       func(ctx context.Context, databaseID, cursor string) ([]notionapi.Page, string, error)

	created  []notionapi.Properties
	updated  []string
	archived []string
}

func (m *MockNotionService) CreateSeriesPage(ctx context.Context, databaseID string, props notionapi.Properties) (string, error) {
	m.created = append(m.created, props)
	if m.CreateSeriesPageFunc != nil {
		return m.CreateSeriesPageFunc(ctx, databaseID, props)
	}
	return "new-page", nil
}

func (m *MockNotionService) UpdateSeriesPage(ctx context.Context, pageID string, props notionapi.Properties) error {
	m.updated = append(m.updated, pageID)
	if m.UpdateSeriesPageFunc != nil {
		return m.UpdateSeriesPageFunc(ctx, pageID, props)
	}
	return nil
}

func (m *MockNotionService) ArchivePage(ctx context.Context, pageID string) error {
	m.archived = append(m.archived, pageID)
	if m.ArchivePageFunc != nil {
		return m.ArchivePageFunc(ctx, pageID)
	}
	return nil
}

func (m *MockNotionService) QueryPages(ctx context.Context, databaseID, cursor string) ([]notionapi.Page, string, error) {
	if m.QueryPagesFunc != nil {
		return m.QueryPagesFunc(ctx, databaseID, cursor)
	}
	return nil, "", nil
}

// MockSeriesLister is a mock implementation of SeriesLister for testing.
type MockSeriesLister struct {
	ListRecurringSeriesFunc func(ctx context.Context, userID int64) ([]*domain.RecurringTransaction, error)
}

func (m *MockSeriesLister) ListRecurringSeries(ctx context.Context, userID int64) ([]*domain.RecurringTransaction, error) {
	return m.ListRecurringSeriesFunc(ctx, userID)
}

func page(id, seriesID string, userID int64) notionapi.Page {
	props := notionapi.Properties{
		PropUserID: &notionapi.NumberProperty{Number: float64(userID)},
	}
	if seriesID != "" {
		props[PropSeriesID] = &notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{PlainText: seriesID}},
		}
	}
	return notionapi.Page{ID: notionapi.ObjectID(id), Properties: props}
}

func series(id, userID int64, desc, amount string) *domain.RecurringTransaction {
	s := &domain.RecurringTransaction{ID: id, UserID: userID}
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		s.Append(domain.Transaction{
			ID:          id*10 + int64(i),
			UserID:      userID,
			Description: desc,
			Amount:      decimal.RequireFromString(amount),
			Date:        date.AddDate(0, i, 0),
		})
	}
	return s
}

func listerOf(series ...*domain.RecurringTransaction) *MockSeriesLister {
	return &MockSeriesLister{
		ListRecurringSeriesFunc: func(ctx context.Context, userID int64) ([]*domain.RecurringTransaction, error) {
			return series, nil
		},
	}
}

// pagedQuery serves pages two at a time to exercise pagination. The cursor
// is the index of the next page.
func pagedQuery(pages ...notionapi.Page) func(ctx context.Context, databaseID, cursor string) ([]notionapi.Page, string, error) {
	return func(ctx context.Context, databaseID, cursor string) ([]notionapi.Page, string, error) {
		start := 0
		if cursor != "" {
			n, err := strconv.Atoi(cursor)
			if err != nil {
				return nil, "", err
			}
			start = n
		}
		end := start + 2
		if end >= len(pages) {
			return pages[start:], "", nil
		}
		return pages[start:end], strconv.Itoa(end), nil
	}
}

func TestSyncRecurringSeries(t *testing.T) {
	notion := &MockNotionService{
		QueryPagesFunc: pagedQuery(
			page("p-netflix", "1", 7),
			page("p-gone", "99", 7),
			page("p-other-user", "5", 8),
			page("p-dup", "1", 7),
			page("p-legacy", "", 7),
		),
	}
	lister := listerOf(
		series(1, 7, "Netflix Subscription", "15.99"),
		series(2, 7, "Gym Membership", "40.00"),
	)

	result, err := SyncRecurringSeries(context.Background(), lister, notion, "db", 7, false)
	if err != nil {
		t.Fatalf("SyncRecurringSeries() error = %v", err)
	}

	want := SyncResult{Created: 1, Updated: 1, Archived: 3}
	if *result != want {
		t.Errorf("result = %+v, want %+v", *result, want)
	}
	if len(notion.updated) != 1 || notion.updated[0] != "p-netflix" {
		t.Errorf("updated = %v, want [p-netflix]", notion.updated)
	}
	for _, id := range notion.archived {
		if id == "p-other-user" || id == "p-netflix" {
			t.Errorf("archived %s", id)
		}
	}
	if len(notion.created) != 1 {
		t.Fatalf("created %d pages, want 1", len(notion.created))
	}
	title, ok := notion.created[0][PropDescription].(notionapi.TitleProperty)
	if !ok || title.Title[0].Text.Content != "Gym Membership" {
		t.Errorf("created page title = %+v", notion.created[0][PropDescription])
	}
}

func TestSyncRecurringSeries_DryRun(t *testing.T) {
	notion := &MockNotionService{
		QueryPagesFunc: pagedQuery(page("p-gone", "99", 7)),
	}
	lister := listerOf(series(1, 7, "Netflix Subscription", "15.99"))

	result, err := SyncRecurringSeries(context.Background(), lister, notion, "db", 7, true)
	if err != nil {
		t.Fatalf("SyncRecurringSeries() error = %v", err)
	}

	if result.Created != 1 || result.Archived != 1 {
		t.Errorf("result = %+v", *result)
	}
	if len(notion.created)+len(notion.updated)+len(notion.archived) != 0 {
		t.Error("dry run wrote to Notion")
	}
}

func TestSyncRecurringSeries_Errors(t *testing.T) {
	t.Run("lister failure aborts", func(t *testing.T) {
		lister := &MockSeriesLister{
			ListRecurringSeriesFunc: func(ctx context.Context, userID int64) ([]*domain.RecurringTransaction, error) {
				return nil, errors.New("db down")
			},
		}
		if _, err := SyncRecurringSeries(context.Background(), lister, &MockNotionService{}, "db", 1, false); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("query failure aborts", func(t *testing.T) {
		notion := &MockNotionService{
			QueryPagesFunc: func(ctx context.Context, databaseID, cursor string) ([]notionapi.Page, string, error) {
				return nil, "", errors.New("rate limited")
			},
		}
		if _, err := SyncRecurringSeries(context.Background(), listerOf(), notion, "db", 1, false); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("page failures are counted", func(t *testing.T) {
		notion := &MockNotionService{
			CreateSeriesPageFunc: func(ctx context.Context, databaseID string, props notionapi.Properties) (string, error) {
				return "", errors.New("validation_error")
			},
		}
		result, err := SyncRecurringSeries(context.Background(), listerOf(series(1, 1, "A", "1.00"), series(2, 1, "B", "2.00")), notion, "db", 1, false)
		if err != nil {
			t.Fatalf("SyncRecurringSeries() error = %v", err)
		}
		if result.Failed != 2 || result.Created != 0 {
			t.Errorf("result = %+v", *result)
		}
	})
}

func TestSeriesToNotionProperties(t *testing.T) {
	s := series(3, 7, "Spotify Premium", "9.99")
	props := SeriesToNotionProperties(s, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	if n := props[PropAmount].(notionapi.NumberProperty).Number; n != 9.99 {
		t.Errorf("Amount = %v, want 9.99", n)
	}
	if n := props[PropTransactions].(notionapi.NumberProperty).Number; n != 2 {
		t.Errorf("Transactions = %v, want 2", n)
	}
	if got := props[PropSeriesID].(notionapi.RichTextProperty).RichText[0].Text.Content; got != "3" {
		t.Errorf("Series ID = %q, want 3", got)
	}
	date := props[PropLastDate].(notionapi.DateProperty).Date.Start
	if !time.Time(*date).Equal(s.Date()) {
		t.Errorf("Last Date = %v, want %v", time.Time(*date), s.Date())
	}

	empty := SeriesToNotionProperties(&domain.RecurringTransaction{ID: 4}, time.Now())
	if _, ok := empty[PropLastDate]; ok {
		t.Error("empty series should have no Last Date")
	}
	if _, ok := empty[PropMembers]; ok {
		t.Error("empty series should have no Members")
	}
}
