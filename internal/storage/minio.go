package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/contextforge/contextforge/backend/go-services/internal/document"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStorage is the S3-compatible storage gateway.
type MinIOStorage struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

// NewMinIOStorage creates a new MinIO storage client and ensures the bucket exists.
func NewMinIOStorage(ctx context.Context, cfg *MinIOConfig) (*MinIOStorage, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	s := &MinIOStorage{client: mc, bucket: cfg.Bucket, now: time.Now}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		exist, xerr := mc.BucketExists(ctx, s.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

// Store refuses to overwrite: the object is stat'ed first and a Conflict is
// returned when it is already present. Ids are random UUIDs, so the window
// between stat and put only matters for a caller reusing an id.
func (s *MinIOStorage) Store(ctx context.Context, id string, r io.Reader, size int64, contentType string) error {
	p := document.StoragePath(id)
	if err := checkContentType("store", p, contentType); err != nil {
		return err
	}
	exists, err := s.stat(ctx, p)
	if err != nil {
		return newError(KindUnavailable, "store", p, err)
	}
	if exists {
		return newError(KindConflict, "store", p, nil)
	}
	_, err = s.client.PutObject(ctx, s.bucket, p, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"doc-id": id},
	})
	if err != nil {
		return newError(KindUnavailable, "store", p, err)
	}
	return nil
}

func (s *MinIOStorage) Exists(ctx context.Context, id string) (bool, error) {
	ok, err := s.stat(ctx, document.StoragePath(id))
	if err != nil {
		return false, newError(KindUnavailable, "stat", document.StoragePath(id), err)
	}
	return ok, nil
}

// MintSignedURL returns a presigned GET URL. The object must exist. A nonce
// query parameter keeps URLs minted within the same second distinct.
func (s *MinIOStorage) MintSignedURL(ctx context.Context, id string, ttl time.Duration) (SignedURL, error) {
	p := document.StoragePath(id)
	exists, err := s.stat(ctx, p)
	if err != nil {
		return SignedURL{}, newError(KindUnavailable, "sign", p, err)
	}
	if !exists {
		return SignedURL{}, newError(KindNotFound, "sign", p, nil)
	}
	params := make(url.Values)
	params.Set("response-content-type", document.PDFContentType)
	params.Set("x-cf-nonce", uuid.NewString())
	issued := s.now()
	u, err := s.client.PresignedGetObject(ctx, s.bucket, p, ttl, params)
	if err != nil {
		return SignedURL{}, newError(KindUnavailable, "sign", p, err)
	}
	return SignedURL{Path: p, URL: u.String(), ExpiresAt: issued.Add(ttl)}, nil
}

func (s *MinIOStorage) stat(ctx context.Context, p string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, p, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isMissing(err) {
		return false, nil
	}
	return false, err
}

func isMissing(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
