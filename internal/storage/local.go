package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"github.com/contextforge/contextforge/backend/go-services/internal/document"
	"github.com/spf13/afero"
)

// BlobRoute is the path prefix under which LocalStorage URLs are served.
const BlobRoute = "/api/blobs/"

// LocalStorage keeps objects on an afero filesystem and mints URLs that
// point back at this service's blob endpoint.
type LocalStorage struct {
	fs        afero.Fs
	signer    *Signer
	publicURL string
}

// NewLocalStorage stores objects under root on the OS filesystem.
func NewLocalStorage(root, publicURL string, signer *Signer) (*LocalStorage, error) {
	if root == "" {
		return nil, fmt.Errorf("local storage root missing")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("local storage root: %w", err)
	}
	return NewLocalStorageFs(afero.NewBasePathFs(afero.NewOsFs(), root), publicURL, signer), nil
}

// NewLocalStorageFs uses an arbitrary filesystem (tests pass afero.NewMemMapFs()).
func NewLocalStorageFs(fsys afero.Fs, publicURL string, signer *Signer) *LocalStorage {
	return &LocalStorage{fs: fsys, signer: signer, publicURL: strings.TrimRight(publicURL, "/")}
}

func (s *LocalStorage) Store(ctx context.Context, id string, r io.Reader, size int64, contentType string) error {
	p := document.StoragePath(id)
	if err := checkContentType("store", p, contentType); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return newError(KindUnavailable, "store", p, err)
	}
	if err := s.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return newError(KindUnavailable, "store", p, err)
	}
	f, err := s.fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return newError(KindConflict, "store", p, nil)
		}
		return newError(KindUnavailable, "store", p, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && size >= 0 && n != size {
		err = fmt.Errorf("short write: %d of %d bytes", n, size)
	}
	if err != nil {
		_ = s.fs.Remove(p)
		return newError(KindUnavailable, "store", p, err)
	}
	return nil
}

func (s *LocalStorage) Exists(_ context.Context, id string) (bool, error) {
	ok, err := afero.Exists(s.fs, document.StoragePath(id))
	if err != nil {
		return false, newError(KindUnavailable, "stat", document.StoragePath(id), err)
	}
	return ok, nil
}

func (s *LocalStorage) MintSignedURL(ctx context.Context, id string, ttl time.Duration) (SignedURL, error) {
	p := document.StoragePath(id)
	ok, err := s.Exists(ctx, id)
	if err != nil {
		return SignedURL{}, err
	}
	if !ok {
		return SignedURL{}, newError(KindNotFound, "sign", p, nil)
	}
	tok, exp, err := s.signer.Sign(p, ttl)
	if err != nil {
		return SignedURL{}, newError(KindUnavailable, "sign", p, err)
	}
	return SignedURL{Path: p, URL: s.publicURL + BlobRoute + tok, ExpiresAt: exp}, nil
}

// Open resolves a signed URL token to the stored object. The caller closes it.
func (s *LocalStorage) Open(_ context.Context, token string) (afero.File, error) {
	p, err := s.signer.Verify(token)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newError(KindNotFound, "open", p, nil)
		}
		return nil, newError(KindUnavailable, "open", p, err)
	}
	return f, nil
}
