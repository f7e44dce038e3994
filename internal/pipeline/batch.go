package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/contextforge/contextforge/backend/go-services/internal/document"
)

// item is one file inside a batch.
type item struct {
	file   File
	docID  string
	status document.Status
	err    string
}

// Batch is an ordered set of files submitted together. The batch is
// uploading from creation until every item is terminal.
type Batch struct {
	ID        string
	CreatedAt time.Time

	mu        sync.RWMutex
	items     []*item
	uploading bool
	updatedAt time.Time
}

// ItemSnapshot is the read-only view of one item.
type ItemSnapshot struct {
	Index       int             `json:"index"`
	Filename    string          `json:"filename"`
	ContentType string          `json:"contentType"`
	Size        int64           `json:"size"`
	DocID       string          `json:"docId,omitempty"`
	Status      document.Status `json:"status"`
	Error       string          `json:"error,omitempty"`
}

// Snapshot is a point-in-time copy of a batch, safe to serialize.
type Snapshot struct {
	ID        string         `json:"id"`
	Uploading bool           `json:"uploading"`
	Items     []ItemSnapshot `json:"items"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Event describes a single item transition.
type Event struct {
	BatchID  string
	Index    int
	Filename string
	DocID    string
	From     document.Status
	To       document.Status
	Detail   string
	At       time.Time
}

// NewBatch enqueues files in order. Every item starts in uploading.
func NewBatch(id string, files []File) *Batch {
	now := time.Now().UTC()
	b := &Batch{ID: id, CreatedAt: now, updatedAt: now}
	for _, f := range files {
		b.items = append(b.items, &item{file: f, status: document.StatusUploading})
	}
	b.uploading = len(b.items) > 0
	return b
}

// Uploading reports whether any item is still in flight.
func (b *Batch) Uploading() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.uploading
}

func (b *Batch) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// Status returns the current status of item i.
func (b *Batch) Status(i int) document.Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.items[i].status
}

func (b *Batch) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := Snapshot{
		ID:        b.ID,
		Uploading: b.uploading,
		Items:     make([]ItemSnapshot, len(b.items)),
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.updatedAt,
	}
	for i, it := range b.items {
		s.Items[i] = ItemSnapshot{
			Index:       i,
			Filename:    it.file.Name,
			ContentType: it.file.ContentType,
			Size:        it.file.Size,
			DocID:       it.docID,
			Status:      it.status,
			Error:       it.err,
		}
	}
	return s
}

// enqueued returns the synthetic "" -> uploading events for all items.
func (b *Batch) enqueued() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Event, len(b.items))
	for i, it := range b.items {
		out[i] = Event{
			BatchID:  b.ID,
			Index:    i,
			Filename: it.file.Name,
			To:       document.StatusUploading,
			At:       b.CreatedAt,
		}
	}
	return out
}

func (b *Batch) file(i int) File {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.items[i].file
}

// transition moves item i to next. Terminal items never move again.
func (b *Batch) transition(i int, next document.Status, docID, detail string) (Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	it := b.items[i]
	if !it.status.CanTransition(next) {
		return Event{}, fmt.Errorf("item %d: %s -> %s not allowed", i, it.status, next)
	}
	ev := Event{
		BatchID:  b.ID,
		Index:    i,
		Filename: it.file.Name,
		From:     it.status,
		To:       next,
		Detail:   detail,
		At:       time.Now().UTC(),
	}
	it.status = next
	if docID != "" {
		it.docID = docID
	}
	if next == document.StatusError {
		it.err = detail
	}
	ev.DocID = it.docID
	b.updatedAt = ev.At
	return ev, nil
}

// finish clears the uploading flag once every item is terminal.
func (b *Batch) finish() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, it := range b.items {
		if !it.status.Terminal() {
			return false
		}
	}
	b.uploading = false
	b.updatedAt = time.Now().UTC()
	return true
}
