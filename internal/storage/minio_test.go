package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 answers the handful of path-style S3 calls MinIOStorage makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string // key -> doc-id metadata
	deny    bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	if len(parts) < 2 || parts[1] == "" {
		// bucket level: MakeBucket / BucketExists
		w.WriteHeader(http.StatusOK)
		return
	}
	key := parts[1]

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deny {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	switch r.Method {
	case http.MethodHead:
		if _, ok := f.objects[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(pdfBytes)))
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		_, _ = io.Copy(io.Discard, r.Body)
		f.objects[key] = r.Header.Get("X-Amz-Meta-Doc-Id")
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) meta(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.objects[key]
	return v, ok
}

func newMinIO(t *testing.T) (*MinIOStorage, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := NewMinIOStorage(context.Background(), &MinIOConfig{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "access",
		SecretKey: "secret-key",
		Bucket:    "contextforge",
		Region:    "us-east-1",
	})
	require.NoError(t, err)
	return s, fake
}

func TestMinIO_StoreAndConflict(t *testing.T) {
	s, fake := newMinIO(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, "doc-1", bytes.NewReader(pdfBytes), int64(len(pdfBytes)), "application/pdf"))
	id, ok := fake.meta("pdfs/doc-1.pdf")
	require.True(t, ok)
	assert.Equal(t, "doc-1", id)

	ok, err := s.Exists(ctx, "doc-1")
	require.NoError(t, err)
	assert.True(t, ok)

	err = s.Store(ctx, "doc-1", bytes.NewReader(pdfBytes), int64(len(pdfBytes)), "application/pdf")
	require.ErrorIs(t, err, ErrConflict)
}

func TestMinIO_RejectsNonPDFWithoutCall(t *testing.T) {
	s, fake := newMinIO(t)
	err := s.Store(context.Background(), "doc-2", strings.NewReader("png"), 3, "image/png")
	require.ErrorIs(t, err, ErrRejected)
	_, ok := fake.meta("pdfs/doc-2.pdf")
	assert.False(t, ok)
}

func TestMinIO_MintSignedURL(t *testing.T) {
	s, _ := newMinIO(t)
	ctx := context.Background()

	_, err := s.MintSignedURL(ctx, "missing", time.Minute)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Store(ctx, "doc-3", bytes.NewReader(pdfBytes), int64(len(pdfBytes)), "application/pdf"))
	a, err := s.MintSignedURL(ctx, "doc-3", 10*time.Minute)
	require.NoError(t, err)
	b, err := s.MintSignedURL(ctx, "doc-3", 10*time.Minute)
	require.NoError(t, err)

	assert.NotEqual(t, a.URL, b.URL)
	assert.Equal(t, "pdfs/doc-3.pdf", a.Path)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), a.ExpiresAt, 5*time.Second)

	u, err := url.Parse(a.URL)
	require.NoError(t, err)
	assert.Equal(t, "/contextforge/pdfs/doc-3.pdf", u.Path)
	assert.Equal(t, "600", u.Query().Get("X-Amz-Expires"))
	assert.Equal(t, "application/pdf", u.Query().Get("response-content-type"))
	assert.NotEmpty(t, u.Query().Get("x-cf-nonce"))
}

func TestMinIO_DeniedIsUnavailable(t *testing.T) {
	s, fake := newMinIO(t)
	fake.mu.Lock()
	fake.deny = true
	fake.mu.Unlock()

	_, err := s.Exists(context.Background(), "doc-4")
	require.ErrorIs(t, err, ErrUnavailable)

	_, err = s.MintSignedURL(context.Background(), "doc-4", time.Minute)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestMinIO_StatClassification(t *testing.T) {
	notFound := minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}
	denied := minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}

	assert.True(t, isMissing(notFound))
	assert.True(t, isMissing(minio.ErrorResponse{StatusCode: http.StatusNotFound}))
	assert.False(t, isMissing(denied))
	assert.False(t, isMissing(errors.New("dial tcp: connection refused")))
}
