package postgres

import (
	"testing"
	"testing/fstest"
)

func TestMigrationPattern(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  string
		name     string
	}{
		{"0001_init.sql", true, "0001", "init"},
		{"0012_add_series_index.sql", true, "0012", "add_series_index"},
		{"001_invalid.sql", false, "", ""},
		{"0001_test", false, "", ""},
		{"0001.sql", false, "", ""},
		{"invalid_0001_test.sql", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			m := migrationPattern.FindStringSubmatch(tt.filename)
			if (m != nil) != tt.valid {
				t.Fatalf("match = %v, want %v", m != nil, tt.valid)
			}
			if !tt.valid {
				return
			}
			if m[1] != tt.version || m[2] != tt.name {
				t.Errorf("got version %q name %q, want %q %q", m[1], m[2], tt.version, tt.name)
			}
		})
	}
}

func TestReadMigrations_SortsAndChecksums(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_second.sql": {Data: []byte("CREATE TABLE b (id INT);")},
		"m/0001_first.sql":  {Data: []byte("CREATE TABLE a (id INT);")},
		"m/README.md":       {Data: []byte("not a migration")},
		"m/0003_same.sql":   {Data: []byte("CREATE TABLE a (id INT);")},
	}

	got, err := readMigrations(fsys, "m")
	if err != nil {
		t.Fatalf("readMigrations() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("readMigrations() returned %d migrations, want 3", len(got))
	}
	for i, want := range []int{1, 2, 3} {
		if got[i].Version != want {
			t.Errorf("migration %d version = %d, want %d", i, got[i].Version, want)
		}
	}
	if got[0].Checksum != got[2].Checksum {
		t.Error("identical content produced different checksums")
	}
	if got[0].Checksum == got[1].Checksum {
		t.Error("different content produced the same checksum")
	}
}

func TestReadMigrations_Embedded(t *testing.T) {
	got, err := ReadMigrations()
	if err != nil {
		t.Fatalf("ReadMigrations() error = %v", err)
	}
	if len(got) == 0 || got[0].Version != 1 {
		t.Fatalf("embedded migrations = %+v, want 0001 first", got)
	}
	for i, m := range got {
		if m.Version != i+1 {
			t.Errorf("migration %d has version %d; versions must be contiguous", i, m.Version)
		}
	}
}
