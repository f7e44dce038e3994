package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/contextforge/contextforge/backend/go-services/internal/document"
	"github.com/contextforge/contextforge/backend/go-services/internal/document/service"
	"github.com/contextforge/contextforge/backend/go-services/internal/ingest"
	"github.com/contextforge/contextforge/backend/go-services/internal/storage"
	"github.com/contextforge/contextforge/backend/go-services/pkg/logger"
	"github.com/google/uuid"
)

// ObjectStore is the part of the storage gateway the pipeline drives.
type ObjectStore interface {
	Store(ctx context.Context, id string, r io.Reader, size int64, contentType string) error
	MintSignedURL(ctx context.Context, id string, ttl time.Duration) (storage.SignedURL, error)
}

// Dispatcher hands a stored document to the indexing backend.
type Dispatcher interface {
	Dispatch(ctx context.Context, req ingest.Request) error
}

// Catalog records documents and mirrors their status.
type Catalog interface {
	Register(ctx context.Context, d *document.Document) error
	SetStatus(ctx context.Context, id string, status document.Status, detail string) error
}

// Pipeline runs the two halves of ingestion for a single document:
// Upload (validate, store, register) and Ingest (mint URL, dispatch).
type Pipeline struct {
	store     ObjectStore
	dispatch  Dispatcher
	catalog   Catalog
	validator Validator
	ttl       time.Duration
	newID     func() string
	now       func() time.Time
}

type Option func(*Pipeline)

// WithSignedURLTTL overrides the 600s signed URL lifetime.
func WithSignedURLTTL(ttl time.Duration) Option {
	return func(p *Pipeline) { p.ttl = ttl }
}

func WithValidator(v Validator) Option {
	return func(p *Pipeline) { p.validator = v }
}

// WithIDGenerator replaces uuid.NewString, mostly for tests.
func WithIDGenerator(f func() string) Option {
	return func(p *Pipeline) { p.newID = f }
}

func New(store ObjectStore, dispatcher Dispatcher, catalog Catalog, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:     store,
		dispatch:  dispatcher,
		catalog:   catalog,
		validator: Validator{Sniff: true},
		ttl:       storage.DefaultSignedURLTTL,
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Upload validates f and writes it to storage under a fresh id. The
// returned document is in the processing state. Validation failures never
// reach the store.
func (p *Pipeline) Upload(ctx context.Context, f File) (*document.Document, error) {
	if err := p.validator.Validate(f); err != nil {
		return nil, err
	}
	id := p.newID()
	rc, err := f.Open()
	if err != nil {
		return nil, invalid("file", "unreadable: %v", err)
	}
	defer rc.Close()
	if err := p.store.Store(ctx, id, rc, f.Size, f.ContentType); err != nil {
		return nil, fmt.Errorf("store %s: %w", f.Name, err)
	}

	d := &document.Document{
		ID:          id,
		Filename:    f.Name,
		StoragePath: document.StoragePath(id),
		ContentType: f.ContentType,
		Size:        f.Size,
		Status:      document.StatusProcessing,
		CreatedAt:   p.now().UTC(),
	}
	if p.catalog != nil {
		if err := p.catalog.Register(ctx, d); err != nil {
			// the object is stored; a missing catalog row only hides it from the list
			logger.With("doc", id, "file", f.Name).Errorf("catalog register failed: %v", err)
		}
	}
	return d, nil
}

// Ingest mints a fresh signed URL for a stored document and dispatches it.
// The URL is never reused. A failure after a successful store leaves the
// object in place.
func (p *Pipeline) Ingest(ctx context.Context, id, filename string) error {
	if id == "" || filename == "" {
		return invalid("docId", "docId and filename required")
	}
	u, err := p.store.MintSignedURL(ctx, id, p.ttl)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.mirror(ctx, id, filename, document.StatusError, err.Error())
		}
		return fmt.Errorf("sign %s: %w", id, err)
	}
	if err := p.dispatch.Dispatch(ctx, ingest.Request{DocID: id, SignedURL: u.URL, Filename: filename}); err != nil {
		p.mirror(ctx, id, filename, document.StatusError, err.Error())
		return err
	}
	p.mirror(ctx, id, filename, document.StatusDone, "")
	return nil
}

// mirror copies an item outcome into the catalog. Documents stored outside
// this process get an entry on first sight; re-ingesting a finished
// document leaves its recorded status alone.
func (p *Pipeline) mirror(ctx context.Context, id, filename string, status document.Status, detail string) {
	if p.catalog == nil {
		return
	}
	log := logger.With("doc", id, "status", status)
	err := p.catalog.SetStatus(ctx, id, status, detail)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrNotFound):
		d := &document.Document{
			ID:          id,
			Filename:    filename,
			StoragePath: document.StoragePath(id),
			ContentType: document.PDFContentType,
			Status:      status,
			Error:       detail,
			CreatedAt:   p.now().UTC(),
		}
		if err := p.catalog.Register(ctx, d); err != nil {
			log.Errorf("catalog register failed: %v", err)
		}
	case errors.Is(err, service.ErrInvalidTransition):
		log.Debugf("catalog status unchanged (already terminal)")
	default:
		log.Errorf("catalog status update failed: %v", err)
	}
}
