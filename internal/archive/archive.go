// Package archive keeps the raw pages a collector fetched next to the stored snapshot.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/pricing-research/internal/research"
)

const defaultContentType = "text/html; charset=utf-8"

// BlobStore persists page bodies.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Archiver implements research.Archiver on top of a BlobStore.
type Archiver struct {
	store  BlobStore
	prefix string
	logger *zap.Logger
}

// New returns an Archiver writing under prefix.
func New(store BlobStore, prefix string, logger *zap.Logger) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.Named("archive"),
	}, nil
}

// ObjectPath returns the object key of the n-th page of snap.
func (a *Archiver) ObjectPath(snap research.Snapshot, n int) string {
	marketplace := strings.ToLower(snap.Marketplace)
	if marketplace == "" {
		marketplace = "unknown"
	}
	return path.Join(a.prefix, marketplace, snap.ID, fmt.Sprintf("%d.html", n))
}

// Archive writes every page. It stops at the first failure.
func (a *Archiver) Archive(ctx context.Context, snap research.Snapshot, pages []research.RawPage) error {
	if snap.ID == "" {
		return fmt.Errorf("snapshot id is required")
	}
	for i, page := range pages {
		contentType := page.ContentType
		if contentType == "" {
			contentType = defaultContentType
		}
		key := a.ObjectPath(snap, i)
		uri, err := a.store.PutObject(ctx, key, contentType, bytes.NewReader(page.Body))
		if err != nil {
			return fmt.Errorf("archive page %s: %w", page.URL, err)
		}
		a.logger.Debug("page archived",
			zap.String("snapshot_id", snap.ID),
			zap.String("url", page.URL),
			zap.String("uri", uri),
		)
	}
	return nil
}
