package batches

import (
	"context"
	"sync"
	"time"

	"github.com/contextforge/contextforge/backend/go-services/internal/pipeline"
	"github.com/contextforge/contextforge/backend/go-services/pkg/logger"
)

// Tracker follows running batches. It is a pipeline.Observer: every item
// transition is persisted as a fresh snapshot. Live batches are answered
// from memory, finished ones from the store.
type Tracker struct {
	store   Store
	timeout time.Duration

	mu   sync.RWMutex
	live map[string]*pipeline.Batch
}

const finalSaveAttempts = 2

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, timeout: 2 * time.Second, live: make(map[string]*pipeline.Batch)}
}

// Track registers b as running and persists its initial snapshot.
func (t *Tracker) Track(b *pipeline.Batch) {
	t.mu.Lock()
	t.live[b.ID] = b
	t.mu.Unlock()
	_ = t.save(b)
}

func (t *Tracker) ItemChanged(b *pipeline.Batch, _ pipeline.Event) {
	_ = t.save(b)
}

// BatchFinished persists the final snapshot and drops b from memory. If the
// store keeps refusing it, b stays live so readers never fall back to a
// stored snapshot that still says uploading.
func (t *Tracker) BatchFinished(b *pipeline.Batch) {
	var err error
	for attempt := 0; attempt < finalSaveAttempts; attempt++ {
		if err = t.save(b); err == nil {
			break
		}
	}
	if err != nil {
		logger.With("batch", b.ID).Errorf("final snapshot not persisted, serving from memory: %v", err)
		return
	}
	t.mu.Lock()
	delete(t.live, b.ID)
	t.mu.Unlock()
}

// Get returns the latest snapshot of batch id.
func (t *Tracker) Get(ctx context.Context, id string) (*pipeline.Snapshot, error) {
	t.mu.RLock()
	b, ok := t.live[id]
	t.mu.RUnlock()
	if ok {
		s := b.Snapshot()
		return &s, nil
	}
	return t.store.Get(ctx, id)
}

// Uploading reports whether batch id is still in flight. Unknown batches
// are not uploading.
func (t *Tracker) Uploading(ctx context.Context, id string) bool {
	s, err := t.Get(ctx, id)
	if err != nil {
		return false
	}
	return s.Uploading
}

func (t *Tracker) save(b *pipeline.Batch) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	err := t.store.Save(ctx, b.Snapshot())
	if err != nil {
		logger.With("batch", b.ID).Warnf("snapshot save failed: %v", err)
	}
	return err
}
