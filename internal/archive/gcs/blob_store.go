// Package gcs archives raw marketplace pages in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Config selects the bucket and the metadata stamped on every archived page.
type Config struct {
	Bucket   string
	Metadata map[string]string
}

// BlobStore writes archived pages to one bucket.
type BlobStore struct {
	bucket   *storage.BucketHandle
	name     string
	metadata map[string]string
	closeFn  func() error
}

// New wraps a client owned by the caller.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	return &BlobStore{
		bucket:   client.Bucket(cfg.Bucket),
		name:     cfg.Bucket,
		metadata: cfg.Metadata,
	}, nil
}

// Open dials GCS with Application Default Credentials (or opts) and fails
// fast when the bucket cannot be read. The returned store owns the client.
func Open(ctx context.Context, cfg Config, logger *zap.Logger, opts ...option.ClientOption) (*BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	store, err := New(client, cfg)
	if err == nil {
		_, err = store.bucket.Attrs(ctx)
	}
	if err != nil {
		if closeErr := client.Close(); closeErr != nil && logger != nil {
			logger.Warn("close gcs client", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check archive bucket %q: %w", cfg.Bucket, err)
	}
	store.closeFn = client.Close
	return store, nil
}

// PutObject streams r into the object at key and returns its gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, key string, contentType string, r io.Reader) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("path is required")
	}
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if len(s.metadata) > 0 {
		w.Metadata = s.metadata
	}
	_, copyErr := io.Copy(w, r)
	if err := errors.Join(copyErr, w.Close()); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return "gs://" + s.name + "/" + key, nil
}

// Close releases the client when Open created it.
func (s *BlobStore) Close() error {
	if s.closeFn == nil {
		return nil
	}
	if err := s.closeFn(); err != nil {
		return fmt.Errorf("close gcs client: %w", err)
	}
	return nil
}
