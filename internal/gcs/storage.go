// Package gcs reads and writes feed documents in Google Cloud Storage. Plain
// filesystem paths are accepted wherever a gs:// URI is, for local runs.
package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const uriScheme = "gs://"

// StorageService fetches and uploads feed files. The zero value creates a
// storage client per call using Application Default Credentials.
type StorageService struct {
	client *storage.Client
}

// NewStorageService creates a service that opens a client per call.
func NewStorageService() *StorageService {
	return &StorageService{}
}

// NewStorageServiceWithClient creates a service sharing client.
func NewStorageServiceWithClient(client *storage.Client) *StorageService {
	return &StorageService{client: client}
}

func (s *StorageService) withClient(ctx context.Context, fn func(*storage.Client) error) error {
	if s.client != nil {
		return fn(s.client)
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()
	return fn(client)
}

// IsURI reports whether uri points into a bucket.
func IsURI(uri string) bool {
	return strings.HasPrefix(uri, uriScheme)
}

// ParseURI splits gs://bucket/object into its parts.
func ParseURI(uri string) (bucket, object string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, uriScheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// Fetch returns the bytes at uri, which is either a gs:// URI or a local path.
func (s *StorageService) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if !IsURI(uri) {
		data, err := os.ReadFile(uri)
		if err != nil {
			return nil, fmt.Errorf("Fetch: reading %s: %w", uri, err)
		}
		return data, nil
	}

	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}

	var data []byte
	err = s.withClient(ctx, func(client *storage.Client) error {
		rc, err := client.Bucket(bucket).Object(object).NewReader(ctx)
		if err != nil {
			return fmt.Errorf("reading object %s/%s: %w", bucket, object, err)
		}
		defer rc.Close()

		data, err = io.ReadAll(rc)
		if err != nil {
			return fmt.Errorf("reading bytes: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}
	return data, nil
}

// UploadFile uploads a local file to bucketName/objectName and returns its URI.
func (s *StorageService) UploadFile(ctx context.Context, bucketName, objectName, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("UploadFile: open file %q: %w", filePath, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	err = s.withClient(ctx, func(client *storage.Client) error {
		w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
		w.ContentType = "application/json"

		if _, err := io.Copy(w, f); err != nil {
			_ = w.Close()
			return fmt.Errorf("copy file to GCS writer: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("finalize upload: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("UploadFile: %w", err)
	}

	return uriScheme + bucketName + "/" + objectName, nil
}

// ExtractFilename returns the last path element of a gs:// URI or local path.
// e.g., "gs://bucket/feeds/2024-01.json" → "2024-01.json"
func ExtractFilename(uri string) string {
	if !IsURI(uri) {
		return filepath.Base(uri)
	}
	trimmed := strings.TrimPrefix(uri, uriScheme)
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}
