package app

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/txn-recurrence/internal/config"
	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/dvloznov/txn-recurrence/internal/feed"
	jobsmem "github.com/dvloznov/txn-recurrence/internal/jobs/inmemory"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{MaxConns: 1},
		Log:      config.LogConfig{Level: "error"},
		Jobs:     config.JobsConfig{Buffer: 4, Workers: 1, MaxRetries: 1, Backoff: time.Millisecond},
		Store:    config.StoreConfig{Driver: config.DriverMemory},
	}
}

func TestOpen_MemoryWiresImporter(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, memoryConfig())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer a.Close()

	u, err := a.Store.CreateUser(ctx, &domain.User{Email: "app@example.com"})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	gen := feed.NewGenerator(1)
	records := gen.Feed(gen.Subscriptions(2), 3, 0, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	report, err := a.Importer.ImportRecords(a.Context(ctx), u.ID, records)
	if err != nil {
		t.Fatalf("ImportRecords() error = %v", err)
	}
	if report.Created != len(records) {
		t.Errorf("Created = %d, want %d", report.Created, len(records))
	}

	series, err := a.Matcher.ListRecurringSeries(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListRecurringSeries() error = %v", err)
	}
	if len(series) == 0 {
		t.Error("expected recurring series from a generated feed")
	}

	q := a.NewQueue(jobsmem.NewStore())
	if err := q.Close(); err != nil {
		t.Errorf("queue Close() error = %v", err)
	}
}

func TestOpenStore_PostgresRequiresURL(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store.Driver = config.DriverPostgres

	if _, err := OpenStore(context.Background(), cfg); err == nil {
		t.Error("expected error without database.url")
	}
}
