package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/contextforge/contextforge/backend/go-services/internal/document"
)

var (
	ErrNotFound          = errors.New("document not found")
	ErrExists            = errors.New("document already exists")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Repository is the catalog persistence contract shared by the memory and Mongo backends.
type Repository interface {
	Create(ctx context.Context, d *document.Document) error
	Get(ctx context.Context, id string) (*document.Document, error)
	List(ctx context.Context) ([]*document.Document, error)
	SetStatus(ctx context.Context, id string, status document.Status, detail string) error
}

// MemoryRepo is an in-memory catalog used when MongoDB is not configured and in tests.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*document.Document
	now   func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*document.Document), now: time.Now}
}

func (m *MemoryRepo) Create(_ context.Context, d *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[d.ID]; ok {
		return ErrExists
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = m.now()
	}
	d.UpdatedAt = d.CreatedAt
	cp := *d
	m.store[d.ID] = &cp
	return nil
}

func (m *MemoryRepo) Get(_ context.Context, id string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, ErrNotFound
}

// List returns copies of all documents, newest first.
func (m *MemoryRepo) List(_ context.Context) ([]*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*document.Document, 0, len(m.store))
	for _, d := range m.store {
		cp := *d
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// SetStatus applies a status transition atomically under the repo lock.
func (m *MemoryRepo) SetStatus(_ context.Context, id string, status document.Status, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	if !d.Status.CanTransition(status) {
		return ErrInvalidTransition
	}
	d.Status = status
	d.Error = detail
	d.UpdatedAt = m.now()
	return nil
}
