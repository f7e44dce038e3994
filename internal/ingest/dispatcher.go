package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/contextforge/contextforge/backend/go-services/pkg/metrics"
)

// Request is the body sent to the indexing backend.
type Request struct {
	DocID     string `json:"doc_id"`
	SignedURL string `json:"signed_url"`
	Filename  string `json:"filename"`
}

// DispatchError reports a transport failure (StatusCode 0) or a non-2xx answer.
type DispatchError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *DispatchError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("dispatch: indexing backend unreachable: %v", e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("dispatch: indexing backend returned %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("dispatch: indexing backend returned %d", e.StatusCode)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// maxErrorBody caps how much of a failing upstream body is kept for logs.
const maxErrorBody = 512

// Dispatcher hands stored documents to the external indexing backend. A 2xx
// means "accepted for processing"; indexing itself is never awaited.
type Dispatcher struct {
	endpoint string
	client   *http.Client
}

// NewDispatcher posts to endpoint (e.g. http://indexer:8000/ingest). A nil
// client gets a default one bounded by timeout.
func NewDispatcher(endpoint string, client *http.Client, timeout time.Duration) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Dispatcher{endpoint: endpoint, client: client}
}

// Dispatch performs exactly one POST. There is no retry.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) error {
	if req.DocID == "" || req.SignedURL == "" {
		return &DispatchError{Err: fmt.Errorf("doc_id and signed_url required")}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return &DispatchError{Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return &DispatchError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		metrics.DispatchTotal.WithLabelValues("unreachable").Inc()
		return &DispatchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		metrics.DispatchTotal.WithLabelValues("rejected").Inc()
		return &DispatchError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	metrics.DispatchTotal.WithLabelValues("queued").Inc()
	return nil
}
