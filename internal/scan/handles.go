package scan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// HandleStore remembers the scan handle issued for a file so a redelivered
// message resumes polling instead of uploading the file again.
type HandleStore interface {
	// Get returns the handle for key and whether one was found.
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, dataID string) error
	Delete(ctx context.Context, key string) error
}

// HandleKey derives the HandleStore key from the file contents.
func HandleKey(contents []byte) string {
	sum := sha256.Sum256(contents)
	return hex.EncodeToString(sum[:])
}

// MemoryHandleStore keeps handles in process memory. Handles are lost on
// restart, which only costs a resubmission.
type MemoryHandleStore struct {
	mu      sync.Mutex
	handles map[string]string
}

func NewMemoryHandleStore() *MemoryHandleStore {
	return &MemoryHandleStore{handles: make(map[string]string)}
}

func (m *MemoryHandleStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.handles[key]
	return id, ok, nil
}

func (m *MemoryHandleStore) Put(_ context.Context, key, dataID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handles[key] = dataID
	return nil
}

func (m *MemoryHandleStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handles, key)
	return nil
}

// DefaultHandleTTL bounds how long a handle is kept in Redis. Scan services
// purge results after a while, so older handles are useless anyway.
const DefaultHandleTTL = 24 * time.Hour

// RedisHandleStore shares handles between consumer replicas.
type RedisHandleStore struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisHandleStore(rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisHandleStore {
	if prefix == "" {
		prefix = "seft:scan:"
	}
	if ttl <= 0 {
		ttl = DefaultHandleTTL
	}
	return &RedisHandleStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *RedisHandleStore) Get(ctx context.Context, key string) (string, bool, error) {
	id, err := r.rdb.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (r *RedisHandleStore) Put(ctx context.Context, key, dataID string) error {
	return r.rdb.Set(ctx, r.prefix+key, dataID, r.ttl).Err()
}

func (r *RedisHandleStore) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.prefix+key).Err()
}
