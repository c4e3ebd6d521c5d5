package gcs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://feeds/2024/01.json", "feeds", "2024/01.json", false},
		{"gs://feeds/x", "feeds", "x", false},
		{"gs://feeds", "", "", true},
		{"gs://feeds/", "", "", true},
		{"gs:///x.json", "", "", true},
		{"/tmp/x.json", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURI() error = %v, wantErr %v", err, tt.wantErr)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("ParseURI() = %q, %q, want %q, %q", bucket, object, tt.wantBucket, tt.wantObject)
			}
		})
	}
}

func TestExtractFilename(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"gs://bucket/feeds/2024-01.json", "2024-01.json"},
		{"gs://bucket/top.json", "top.json"},
		{"gs://bucket", "bucket"},
		{"/var/feeds/local.json", "local.json"},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			if got := ExtractFilename(tt.uri); got != tt.want {
				t.Errorf("ExtractFilename(%q) = %q, want %q", tt.uri, got, tt.want)
			}
		})
	}
}

func TestFetch_LocalPath(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "feed.json")
	if err := os.WriteFile(p, []byte(`[]`), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStorageService()
	got, err := s.Fetch(context.Background(), p)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(got) != "[]" {
		t.Errorf("Fetch() = %q", got)
	}

	if _, err := s.Fetch(context.Background(), filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Fetch() of missing file succeeded")
	}
}
