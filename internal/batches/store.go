package batches

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/contextforge/contextforge/backend/go-services/internal/pipeline"
	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("batch not found")

// Store keeps batch snapshots so progress can be polled after the request
// that started the batch has returned.
type Store interface {
	Save(ctx context.Context, s pipeline.Snapshot) error
	Get(ctx context.Context, id string) (*pipeline.Snapshot, error)
}

// MemoryStore is used when Redis is not configured.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]pipeline.Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]pipeline.Snapshot)}
}

func (m *MemoryStore) Save(_ context.Context, s pipeline.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[s.ID] = s
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*pipeline.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

// RedisStore keeps snapshots as JSON under "batch:<id>". Every save
// refreshes the TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. Prefix may be empty.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "batch:"
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisStore) Save(ctx context.Context, s pipeline.Snapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(s.ID), b, r.ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, id string) (*pipeline.Snapshot, error) {
	b, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var s pipeline.Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
