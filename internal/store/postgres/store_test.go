package postgres

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/dvloznov/txn-recurrence/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// newTestStore connects to TEST_DATABASE_URL and applies migrations. Tests
// are skipped when it is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	s, err := New(ctx, url, 4)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(s.Close)

	if _, err := Migrate(ctx, s.Pool(), "store_test"); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return s
}

func createTestUser(t *testing.T, s *Store) *domain.User {
	t.Helper()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, &domain.User{Email: uuid.NewString() + "@example.com"})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	t.Cleanup(func() { _ = s.DeleteUserCascade(context.Background(), u.ID) })
	return u
}

func insertTestTx(t *testing.T, s *Store, userID int64, externalID, desc, amount string) *domain.Transaction {
	t.Helper()
	tx, err := s.InsertTransaction(context.Background(), &domain.Transaction{
		UserID:      userID,
		ExternalID:  externalID,
		AccountID:   "acc-1",
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
		Date:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("InsertTransaction() error = %v", err)
	}
	return tx
}

func TestStore_InsertAndConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, s)

	tx := insertTestTx(t, s, u.ID, "ext-1", "Netflix Subscription", "15.99")
	if !tx.Amount.Equal(decimal.RequireFromString("15.99")) {
		t.Errorf("amount = %s, want 15.99", tx.Amount)
	}

	_, err := s.InsertTransaction(ctx, &domain.Transaction{
		UserID: u.ID, ExternalID: "ext-1", AccountID: "acc-1",
		Description: "other", Amount: decimal.NewFromInt(1), Date: time.Now(),
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("duplicate insert error = %v, want ErrConflict", err)
	}

	_, err = s.InsertTransaction(ctx, &domain.Transaction{
		UserID: -1, ExternalID: "ext-1", AccountID: "acc-1",
		Description: "x", Amount: decimal.NewFromInt(1), Date: time.Now(),
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown user insert error = %v, want ErrNotFound", err)
	}

	got, err := s.GetByExternalID(ctx, u.ID, "ext-1")
	if err != nil {
		t.Fatalf("GetByExternalID() error = %v", err)
	}
	if got.ID != tx.ID || got.Description != "Netflix Subscription" {
		t.Errorf("GetByExternalID() = %+v", got)
	}
}

func TestStore_TransactionDateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, s)

	tests := []struct {
		name string
		date time.Time
	}{
		{"late evening west of UTC", time.Date(2024, 1, 31, 22, 30, 0, 0, time.FixedZone("EST", -5*3600))},
		{"early morning east of UTC", time.Date(2024, 3, 1, 0, 15, 0, 0, time.FixedZone("CET", 3600))},
		{"calendar date", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			created, err := s.InsertTransaction(ctx, &domain.Transaction{
				UserID:      u.ID,
				ExternalID:  "date-" + strconv.Itoa(i),
				AccountID:   "acc-1",
				Description: "Gym Membership",
				Amount:      decimal.RequireFromString("40.00"),
				Date:        tt.date,
			})
			if err != nil {
				t.Fatalf("InsertTransaction() error = %v", err)
			}

			got, err := s.GetTransaction(ctx, created.ID)
			if err != nil {
				t.Fatalf("GetTransaction() error = %v", err)
			}
			if !got.Date.Equal(tt.date) {
				t.Errorf("Date = %v, want %v", got.Date, tt.date)
			}
			if got.Date.Location() != time.UTC {
				t.Errorf("Date location = %v, want UTC", got.Date.Location())
			}
		})
	}
}

func TestStore_SeriesLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, s)

	a := insertTestTx(t, s, u.ID, "a", "Netflix Subscription", "15.99")
	b := insertTestTx(t, s, u.ID, "b", "Netflix Subscrption", "15.99")

	var groupID int64
	err := s.WithinUserTx(ctx, u.ID, func(ctx context.Context, stx store.SeriesTx) error {
		var err error
		if groupID, err = stx.CreateGroup(ctx, u.ID); err != nil {
			return err
		}
		if err := stx.AppendMember(ctx, groupID, b.ID); err != nil {
			return err
		}
		return stx.AppendMember(ctx, groupID, a.ID)
	})
	if err != nil {
		t.Fatalf("WithinUserTx() error = %v", err)
	}

	series, err := s.ListRecurringSeries(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListRecurringSeries() error = %v", err)
	}
	if len(series) != 1 || series[0].ID != groupID {
		t.Fatalf("ListRecurringSeries() = %+v", series)
	}
	if series[0].Description() != "Netflix Subscription" {
		t.Errorf("Description() = %q, want last appended member's", series[0].Description())
	}

	err = s.WithinUserTx(ctx, u.ID, func(ctx context.Context, stx store.SeriesTx) error {
		cands, err := stx.CandidateMembers(ctx, u.ID, decimal.RequireFromString("15.99"))
		if err != nil {
			return err
		}
		if len(cands) != 2 {
			t.Errorf("CandidateMembers() returned %d rows, want 2", len(cands))
		}
		return stx.AppendMember(ctx, groupID, a.ID)
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("re-append error = %v, want ErrConflict", err)
	}

	if err := s.DeleteTransaction(ctx, a.ID); err != nil {
		t.Fatalf("DeleteTransaction() error = %v", err)
	}
	if err := s.DeleteTransaction(ctx, b.ID); err != nil {
		t.Fatalf("DeleteTransaction() error = %v", err)
	}
	if _, err := s.GetRecurringTransaction(ctx, groupID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("empty series survived, err = %v", err)
	}
}

func TestStore_RollbackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, s)
	a := insertTestTx(t, s, u.ID, "a", "Gym Membership", "45.00")

	boom := errors.New("boom")
	err := s.WithinUserTx(ctx, u.ID, func(ctx context.Context, stx store.SeriesTx) error {
		g, err := stx.CreateGroup(ctx, u.ID)
		if err != nil {
			return err
		}
		if err := stx.AppendMember(ctx, g, a.ID); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinUserTx() error = %v, want boom", err)
	}

	got, err := s.GetTransaction(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if got.RecurringTransactionID != nil {
		t.Errorf("series reference survived rollback")
	}
}

func TestStore_ConcurrentInsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, s)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.InsertTransaction(ctx, &domain.Transaction{
				UserID: u.ID, ExternalID: "race", AccountID: "acc-1",
				Description: "Spotify Premium", Amount: decimal.RequireFromString("9.99"), Date: time.Now(),
			})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			} else if !errors.Is(err, domain.ErrConflict) {
				t.Errorf("InsertTransaction() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}
}

func TestStore_DeleteUserCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, &domain.User{Email: uuid.NewString() + "@example.com"})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	a := insertTestTx(t, s, u.ID, "a", "Gym Membership", "45.00")

	if err := s.DeleteUserCascade(ctx, u.ID); err != nil {
		t.Fatalf("DeleteUserCascade() error = %v", err)
	}
	if _, err := s.GetTransaction(ctx, a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("transaction survived cascade, err = %v", err)
	}
	if err := s.DeleteUserCascade(ctx, u.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}
