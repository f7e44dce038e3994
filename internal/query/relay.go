package query

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/contextforge/contextforge/backend/go-services/pkg/metrics"
)

// ErrEmptyQuestion is returned before any network call when the question is blank.
var ErrEmptyQuestion = errors.New("question required")

// Request is a question for the answer backend. When Raw is set it is sent
// byte for byte and the other fields are only used for validation.
type Request struct {
	Question string          `json:"question"`
	DocIDs   []string        `json:"doc_ids,omitempty"`
	Raw      json.RawMessage `json:"-"`
}

// Envelope is the raw upstream response. Body is never decoded here.
type Envelope struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// RelayError means no answer is available. StatusCode is the upstream code,
// or 0 when the backend could not be reached.
type RelayError struct {
	StatusCode int
	Err        error
}

func (e *RelayError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("relay: answer backend unreachable: %v", e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("relay: answer backend returned %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("relay: answer backend returned %d", e.StatusCode)
}

func (e *RelayError) Unwrap() error { return e.Err }

// maxBody caps an upstream answer. Answers are text plus excerpts, far below this.
var maxBody int64 = 8 << 20

// Relay forwards questions to the answer backend.
type Relay struct {
	endpoint string
	client   *http.Client
}

func NewRelay(endpoint string, client *http.Client, timeout time.Duration) *Relay {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Relay{endpoint: endpoint, client: client}
}

// Ask posts req and returns the upstream response. On a non-2xx answer both
// the envelope and a *RelayError are returned so callers can pass the real
// upstream status and body through; on transport failure only the error is.
func (r *Relay) Ask(ctx context.Context, req Request) (*Envelope, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, ErrEmptyQuestion
	}
	body := []byte(req.Raw)
	if len(body) == 0 {
		var err error
		if body, err = json.Marshal(req); err != nil {
			return nil, &RelayError{Err: err}
		}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &RelayError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		metrics.RelayResponses.WithLabelValues("unreachable").Inc()
		return nil, &RelayError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		metrics.RelayResponses.WithLabelValues("unreachable").Inc()
		return nil, &RelayError{Err: fmt.Errorf("read upstream body: %w", err)}
	}
	if int64(len(raw)) > maxBody {
		metrics.RelayResponses.WithLabelValues("oversized").Inc()
		return nil, &RelayError{StatusCode: resp.StatusCode, Err: fmt.Errorf("upstream body exceeds %d bytes", maxBody)}
	}
	env := &Envelope{StatusCode: resp.StatusCode, ContentType: resp.Header.Get("Content-Type"), Body: raw}
	metrics.RelayResponses.WithLabelValues(fmt.Sprintf("%dxx", resp.StatusCode/100)).Inc()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return env, &RelayError{StatusCode: resp.StatusCode}
	}
	return env, nil
}
