package storage

import (
	"context"
	"io"
	"time"

	"github.com/contextforge/contextforge/backend/go-services/internal/document"
)

// DefaultSignedURLTTL is the lifetime of URLs handed to the indexing backend.
const DefaultSignedURLTTL = 600 * time.Second

// SignedURL is a time-limited read credential for one stored object.
type SignedURL struct {
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Gateway stores raw PDF bytes under pdfs/{id}.pdf and mints signed read URLs.
// Implementations never overwrite and never retry.
type Gateway interface {
	Store(ctx context.Context, id string, r io.Reader, size int64, contentType string) error
	MintSignedURL(ctx context.Context, id string, ttl time.Duration) (SignedURL, error)
	Exists(ctx context.Context, id string) (bool, error)
}

func checkContentType(op, path, contentType string) error {
	if contentType != document.PDFContentType {
		return newError(KindRejected, op, path, nil)
	}
	return nil
}
