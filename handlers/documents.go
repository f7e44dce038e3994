package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/contextforge/contextforge/backend/go-services/internal/config"
	"github.com/contextforge/contextforge/backend/go-services/internal/document"
	"github.com/contextforge/contextforge/backend/go-services/internal/ingest"
	"github.com/contextforge/contextforge/backend/go-services/internal/pipeline"
	"github.com/contextforge/contextforge/backend/go-services/internal/query"
	"github.com/contextforge/contextforge/backend/go-services/internal/storage"
	"github.com/contextforge/contextforge/backend/go-services/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// BatchHeader names the upload batch a query was composed during. While
// that batch is uploading the query is refused.
const BatchHeader = "X-Upload-Batch"

// Uploader is the single-document half of the pipeline.
type Uploader interface {
	Upload(ctx context.Context, f pipeline.File) (*document.Document, error)
	Ingest(ctx context.Context, id, filename string) error
}

type BatchRunner interface {
	Run(ctx context.Context, b *pipeline.Batch) []pipeline.Result
}

type BatchTracker interface {
	Track(b *pipeline.Batch)
	Get(ctx context.Context, id string) (*pipeline.Snapshot, error)
	Uploading(ctx context.Context, id string) bool
}

type Asker interface {
	Ask(ctx context.Context, req query.Request) (*query.Envelope, error)
}

// BlobOpener resolves signed URL tokens when blobs are served locally.
type BlobOpener interface {
	Open(ctx context.Context, token string) (afero.File, error)
}

// IngestHandler holds dependencies for the upload, ingest and query routes.
type IngestHandler struct {
	cfg     config.UploadConfig
	uploads Uploader
	runner  BatchRunner
	batches BatchTracker
	relay   Asker
	// runCtx is the parent of background batch runs; batches outlive requests.
	runCtx context.Context
}

func NewIngestHandler(cfg config.UploadConfig, u Uploader, runner BatchRunner, batches BatchTracker, relay Asker) *IngestHandler {
	if cfg.MaxBatch <= 0 || cfg.MaxBatch > config.MaxBatchLimit {
		cfg.MaxBatch = config.MaxBatchLimit
	}
	return &IngestHandler{cfg: cfg, uploads: u, runner: runner, batches: batches, relay: relay, runCtx: context.Background()}
}

// Register routes under /api
func (h *IngestHandler) Register(rg gin.IRouter) {
	rg.POST("/api/documents/upload", h.Upload)
	rg.POST("/api/documents/ingest", h.Ingest)
	rg.POST("/api/documents/batch", h.SubmitBatch)
	rg.GET("/api/batches/:id", h.GetBatch)
	rg.POST("/api/query", h.Query)
}

// Upload stores one PDF from multipart field "file" and returns its id.
func (h *IngestHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"file\" is required"})
		return
	}
	d, err := h.uploads.Upload(c.Request.Context(), fromHeader(fh))
	if err != nil {
		status := uploadStatus(err)
		if status >= 500 {
			logger.With("file", fh.Filename).Errorf("upload failed: %v", err)
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "uploaded", "docId": d.ID, "filename": d.Filename, "storagePath": d.StoragePath})
}

type ingestRequest struct {
	DocID    string `json:"docId"`
	Filename string `json:"filename"`
}

// Ingest mints a signed URL for a stored document and hands it to the indexer.
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.uploads.Ingest(c.Request.Context(), req.DocID, req.Filename)
	var de *ingest.DispatchError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "queued", "docId": req.DocID})
	case errors.Is(err, pipeline.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "document not stored"})
	case errors.As(err, &de):
		logger.With("doc", req.DocID).Warnf("dispatch failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		logger.With("doc", req.DocID).Errorf("ingest failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingest failed"})
	}
}

// SubmitBatch accepts 1..MaxBatch files in field "files" and processes them
// in the background. Progress is read back from GET /api/batches/:id.
func (h *IngestHandler) SubmitBatch(c *gin.Context) {
	if h.cfg.MaxBytes > 0 {
		limit := int64(h.cfg.MaxBatch)*h.cfg.MaxBytes + 1<<20
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one file is required in field \"files\""})
		return
	}
	if len(headers) > h.cfg.MaxBatch {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("at most %d files per batch", h.cfg.MaxBatch)})
		return
	}

	// multipart temp files are removed when the request ends, so the batch
	// works on in-memory copies
	files := make([]pipeline.File, 0, len(headers))
	for _, fh := range headers {
		f, err := h.buffer(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		files = append(files, f)
	}

	b := pipeline.NewBatch(uuid.NewString(), files)
	h.batches.Track(b)
	go h.runner.Run(h.runCtx, b)

	logger.With("batch", b.ID, "items", len(files)).Infof("batch accepted")
	c.JSON(http.StatusAccepted, gin.H{"batchId": b.ID, "items": len(files)})
}

func (h *IngestHandler) buffer(fh *multipart.FileHeader) (pipeline.File, error) {
	ct := fh.Header.Get("Content-Type")
	if ct != document.PDFContentType {
		// rejected by the validator before any read; keep the declared size
		return pipeline.File{Name: fh.Filename, ContentType: ct, Size: fh.Size, Open: func() (io.ReadCloser, error) {
			return nil, errors.New("not buffered")
		}}, nil
	}
	rc, err := fh.Open()
	if err != nil {
		return pipeline.File{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	defer rc.Close()
	r := io.Reader(rc)
	if h.cfg.MaxBytes > 0 {
		r = io.LimitReader(rc, h.cfg.MaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return pipeline.File{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return pipeline.BytesFile(fh.Filename, ct, data), nil
}

func (h *IngestHandler) GetBatch(c *gin.Context) {
	s, err := h.batches.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}
	c.JSON(http.StatusOK, s)
}

type queryRequest struct {
	Question string   `json:"question"`
	DocIDs   []string `json:"doc_ids"`
}

// Query relays a question to the answer backend. The upstream status and
// body are passed through untouched, including failures.
func (h *IngestHandler) Query(c *gin.Context) {
	if id := strings.TrimSpace(c.GetHeader(BatchHeader)); id != "" && h.batches.Uploading(c.Request.Context(), id) {
		c.JSON(http.StatusConflict, gin.H{"error": "upload in progress", "batchId": id})
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// decoded only to validate; the upstream gets raw untouched
	var req queryRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	env, err := h.relay.Ask(c.Request.Context(), query.Request{Question: req.Question, DocIDs: req.DocIDs, Raw: raw})
	if errors.Is(err, query.ErrEmptyQuestion) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if env == nil {
		logger.Warnf("query relay failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "answer backend unavailable"})
		return
	}
	if err != nil {
		logger.Debugf("query relay: %v", err)
	}
	ct := env.ContentType
	if ct == "" {
		ct = "application/json"
	}
	c.Data(env.StatusCode, ct, env.Body)
}

// RegisterBlobRoute serves locally stored PDFs by signed token. It stays
// outside any auth group: the indexing backend presents only the URL.
func RegisterBlobRoute(r gin.IRouter, blobs BlobOpener) {
	r.GET(storage.BlobRoute+":token", func(c *gin.Context) {
		f, err := blobs.Open(c.Request.Context(), c.Param("token"))
		switch {
		case err == nil:
		case errors.Is(err, storage.ErrTokenExpired):
			c.JSON(http.StatusGone, gin.H{"error": "signed url expired"})
			return
		case errors.Is(err, storage.ErrTokenInvalid):
			c.JSON(http.StatusForbidden, gin.H{"error": "signed url invalid"})
			return
		case errors.Is(err, storage.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		default:
			logger.Errorf("blob open failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
			return
		}
		defer f.Close()
		st, err := f.Stat()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
			return
		}
		c.Header("Content-Type", document.PDFContentType)
		http.ServeContent(c.Writer, c.Request, st.Name(), st.ModTime(), f)
	})
}

func fromHeader(fh *multipart.FileHeader) pipeline.File {
	return pipeline.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

func uploadStatus(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrValidation), errors.Is(err, storage.ErrRejected):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, storage.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
