package identity

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revocations records signed-out session ids.
type Revocations interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

type RedisRevocations struct {
	rdb *redis.Client
}

func NewRedisRevocations(rdb *redis.Client) *RedisRevocations {
	return &RedisRevocations{rdb: rdb}
}

func revocationKey(sessionID string) string {
	return "session:revoked:" + sessionID
}

func (r *RedisRevocations) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	return r.rdb.Set(ctx, revocationKey(sessionID), 1, ttl).Err()
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, revocationKey(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryRevocations is used with the memory store driver.
type MemoryRevocations struct {
	mu      sync.Mutex
	expires map[string]time.Time
}

func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{expires: make(map[string]time.Time)}
}

func (m *MemoryRevocations) Revoke(_ context.Context, sessionID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[sessionID] = time.Now().Add(ttl)
	return nil
}

func (m *MemoryRevocations) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.expires[sessionID]
	if !ok {
		return false, nil
	}
	if time.Now().After(exp) {
		delete(m.expires, sessionID)
		return false, nil
	}
	return true, nil
}
