package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/contextforge/contextforge/backend/go-services/internal/batches"
	"github.com/contextforge/contextforge/backend/go-services/internal/config"
	"github.com/contextforge/contextforge/backend/go-services/internal/document"
	"github.com/contextforge/contextforge/backend/go-services/internal/document/service"
	"github.com/contextforge/contextforge/backend/go-services/internal/ingest"
	"github.com/contextforge/contextforge/backend/go-services/internal/pipeline"
	"github.com/contextforge/contextforge/backend/go-services/internal/query"
	"github.com/contextforge/contextforge/backend/go-services/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n%%EOF\n")

// fakeBackend stands in for the indexing and answer service.
type fakeBackend struct {
	mu          sync.Mutex
	ingested    []ingest.Request
	ingestCode  int
	queryCode   int
	queryBody   string
	queryCalled int
	queryRaw    []byte
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ingest", func(w http.ResponseWriter, r *http.Request) {
		var req ingest.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.ingested = append(b.ingested, req)
		code := b.ingestCode
		b.mu.Unlock()
		if code == 0 {
			code = http.StatusAccepted
		}
		w.WriteHeader(code)
	})
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.queryCalled++
		b.queryRaw = raw
		code, body := b.queryCode, b.queryBody
		b.mu.Unlock()
		if code == 0 {
			code = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	})
	return mux
}

type testServer struct {
	engine  *gin.Engine
	backend *fakeBackend
	catalog service.Service
	tracker *batches.Tracker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fb := &fakeBackend{}
	upstream := httptest.NewServer(fb.handler())
	t.Cleanup(upstream.Close)

	signer, err := storage.NewSigner("test-secret")
	require.NoError(t, err)
	gw := storage.NewLocalStorageFs(afero.NewMemMapFs(), "http://gateway.test", signer)
	catalog := service.NewMemoryService()
	p := pipeline.New(gw, ingest.NewDispatcher(upstream.URL+"/ingest", nil, time.Second), catalog)
	tracker := batches.NewTracker(batches.NewMemoryStore())
	coord := pipeline.NewCoordinator(p, tracker)

	g := gin.New()
	h := NewIngestHandler(config.UploadConfig{MaxBatch: 10, MaxBytes: 1 << 20}, p, coord, tracker, query.NewRelay(upstream.URL+"/query", nil, time.Second))
	h.Register(g)
	RegisterBlobRoute(g, gw)
	return &testServer{engine: g, backend: fb, catalog: catalog, tracker: tracker}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

type part struct {
	name, contentType string
	data              []byte
}

func multipartRequest(t *testing.T, target, field string, parts ...part) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, p.name))
		hdr.Set("Content-Type", p.contentType)
		w, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = w.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestUploadIngestAndFetchBlob(t *testing.T) {
	s := newTestServer(t)

	w := s.do(multipartRequest(t, "/api/documents/upload", "file", part{"a.pdf", "application/pdf", pdfBytes}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var up map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &up))
	id := up["docId"]
	require.NotEmpty(t, id)
	assert.Equal(t, "pdfs/"+id+".pdf", up["storagePath"])

	w = s.do(jsonRequest(http.MethodPost, "/api/documents/ingest", fmt.Sprintf(`{"docId":%q,"filename":"a.pdf"}`, id)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "queued")

	require.Len(t, s.backend.ingested, 1)
	got := s.backend.ingested[0]
	assert.Equal(t, id, got.DocID)
	assert.Equal(t, "a.pdf", got.Filename)

	// the signed URL resolves to the stored bytes
	u, err := url.Parse(got.SignedURL)
	require.NoError(t, err)
	w = s.do(httptest.NewRequest(http.MethodGet, u.Path, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, pdfBytes, w.Body.Bytes())

	d, err := s.catalog.Get(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, document.StatusDone, d.Status)
}

func TestUploadRejectsNonPDF(t *testing.T) {
	s := newTestServer(t)
	w := s.do(multipartRequest(t, "/api/documents/upload", "file", part{"b.png", "image/png", []byte("\x89PNG\r\n")}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	list, err := s.catalog.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUploadRequiresFile(t *testing.T) {
	s := newTestServer(t)
	w := s.do(multipartRequest(t, "/api/documents/upload", "other", part{"a.pdf", "application/pdf", pdfBytes}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestErrors(t *testing.T) {
	s := newTestServer(t)

	w := s.do(jsonRequest(http.MethodPost, "/api/documents/ingest", `{"docId":"missing","filename":"x.pdf"}`))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, s.backend.ingested)

	w = s.do(jsonRequest(http.MethodPost, "/api/documents/ingest", `{"filename":"x.pdf"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(multipartRequest(t, "/api/documents/upload", "file", part{"a.pdf", "application/pdf", pdfBytes}))
	require.Equal(t, http.StatusOK, w.Code)
	var up map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &up))

	s.backend.ingestCode = http.StatusInternalServerError
	w = s.do(jsonRequest(http.MethodPost, "/api/documents/ingest", fmt.Sprintf(`{"docId":%q,"filename":"a.pdf"}`, up["docId"])))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	require.Len(t, s.backend.ingested, 1, "dispatch is not retried")

	d, err := s.catalog.Get(t.Context(), up["docId"])
	require.NoError(t, err)
	assert.Equal(t, document.StatusError, d.Status)
}

func TestBatchMixedContent(t *testing.T) {
	s := newTestServer(t)

	w := s.do(multipartRequest(t, "/api/documents/batch", "files",
		part{"a.pdf", "application/pdf", pdfBytes},
		part{"b.png", "image/png", []byte("\x89PNG\r\n")},
	))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var resp struct {
		BatchID string `json:"batchId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.BatchID)

	var snap pipeline.Snapshot
	require.Eventually(t, func() bool {
		w := s.do(httptest.NewRequest(http.MethodGet, "/api/batches/"+resp.BatchID, nil))
		if w.Code != http.StatusOK {
			return false
		}
		snap = pipeline.Snapshot{}
		return json.Unmarshal(w.Body.Bytes(), &snap) == nil && !snap.Uploading
	}, 2*time.Second, 10*time.Millisecond)

	require.Len(t, snap.Items, 2)
	assert.Equal(t, document.StatusDone, snap.Items[0].Status)
	assert.Equal(t, document.StatusError, snap.Items[1].Status)
	assert.Empty(t, snap.Items[1].DocID)

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	require.Len(t, s.backend.ingested, 1)
	assert.Equal(t, "a.pdf", s.backend.ingested[0].Filename)
}

func TestBatchLimits(t *testing.T) {
	s := newTestServer(t)

	parts := make([]part, 11)
	for i := range parts {
		parts[i] = part{fmt.Sprintf("f%d.pdf", i), "application/pdf", pdfBytes}
	}
	w := s.do(multipartRequest(t, "/api/documents/batch", "files", parts...))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(multipartRequest(t, "/api/documents/batch", "files"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNewIngestHandlerCapsBatchSize(t *testing.T) {
	h := NewIngestHandler(config.UploadConfig{MaxBatch: 50}, nil, nil, nil, nil)
	assert.Equal(t, config.MaxBatchLimit, h.cfg.MaxBatch)
	h = NewIngestHandler(config.UploadConfig{}, nil, nil, nil, nil)
	assert.Equal(t, config.MaxBatchLimit, h.cfg.MaxBatch)
}

func TestGetBatchUnknown(t *testing.T) {
	s := newTestServer(t)
	w := s.do(httptest.NewRequest(http.MethodGet, "/api/batches/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueryRelaysVerbatim(t *testing.T) {
	s := newTestServer(t)
	s.backend.queryBody = `{"answer":"30 days","citations":["p.4"]}`

	w := s.do(jsonRequest(http.MethodPost, "/api/query", `{"question":"What is the refund policy?"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"answer":"30 days","citations":["p.4"]}`, w.Body.String())
}

func TestQueryForwardsClientBodyUntouched(t *testing.T) {
	s := newTestServer(t)
	s.backend.queryBody = `{"answer":"none"}`

	const sent = `{"question":"q","doc_ids":[],"top_k":3}`
	w := s.do(jsonRequest(http.MethodPost, "/api/query", sent))
	require.Equal(t, http.StatusOK, w.Code)
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	assert.Equal(t, sent, string(s.backend.queryRaw))
}

func TestQueryMalformedJSON(t *testing.T) {
	s := newTestServer(t)
	w := s.do(jsonRequest(http.MethodPost, "/api/query", `{"question":`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, s.backend.queryCalled)
}

func TestQueryUpstreamFailurePassedThrough(t *testing.T) {
	s := newTestServer(t)
	s.backend.queryCode = http.StatusServiceUnavailable
	s.backend.queryBody = `{"detail":"model loading"}`

	w := s.do(jsonRequest(http.MethodPost, "/api/query", `{"question":"What is the refund policy?"}`))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, `{"detail":"model loading"}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "answer")
}

func TestQueryEmptyQuestion(t *testing.T) {
	s := newTestServer(t)
	w := s.do(jsonRequest(http.MethodPost, "/api/query", `{"question":"  "}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, s.backend.queryCalled)
}

func TestQueryBlockedWhileBatchUploading(t *testing.T) {
	s := newTestServer(t)
	// tracked but not yet run, so still uploading
	b := pipeline.NewBatch("busy", []pipeline.File{pipeline.BytesFile("a.pdf", "application/pdf", pdfBytes)})
	s.tracker.Track(b)

	req := jsonRequest(http.MethodPost, "/api/query", `{"question":"q"}`)
	req.Header.Set(BatchHeader, "busy")
	w := s.do(req)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, s.backend.queryCalled)

	// unknown batch ids do not block
	req = jsonRequest(http.MethodPost, "/api/query", `{"question":"q"}`)
	req.Header.Set(BatchHeader, "finished-long-ago")
	w = s.do(req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBlobRejectsBadToken(t *testing.T) {
	s := newTestServer(t)
	w := s.do(httptest.NewRequest(http.MethodGet, "/api/blobs/not-a-token", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	body, _ := io.ReadAll(w.Body)
	assert.Contains(t, string(body), "invalid")
}
