package main

import (
	"testing"
	"time"

	"github.com/dvloznov/txn-recurrence/internal/store/postgres"
)

func TestStatusLines(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	migrations := []postgres.Migration{
		{Version: 1, Name: "init", Checksum: "aaa"},
		{Version: 2, Name: "series_index", Checksum: "bbb"},
		{Version: 3, Name: "jobs", Checksum: "ccc"},
	}
	applied := []postgres.AppliedMigration{
		{Version: 1, Name: "init", Checksum: "aaa", AppliedAt: at, AppliedBy: "migrate-cli"},
		{Version: 2, Name: "series_index", Checksum: "old", AppliedAt: at, AppliedBy: "ops"},
		{Version: 9, Name: "dropped", AppliedAt: at},
	}

	want := []string{
		"[APPLIED] 0001_init (applied 2024-05-01T12:00:00Z by migrate-cli)",
		"[CHANGED] 0002_series_index (applied 2024-05-01T12:00:00Z by ops)",
		"[PENDING] 0003_jobs",
		"[MISSING] 0009_dropped (no migration file)",
	}

	got := statusLines(migrations, applied)
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d: %q", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEmbeddedMigrationsAreReadable(t *testing.T) {
	migrations, err := postgres.ReadMigrations()
	if err != nil {
		t.Fatalf("ReadMigrations() error = %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("expected at least one embedded migration")
	}
	for _, line := range statusLines(migrations, nil) {
		if line[:9] != "[PENDING]" {
			t.Errorf("fresh database line = %q, want pending", line)
		}
	}
}
