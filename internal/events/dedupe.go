package events

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// DefaultDedupeTTL is how long a message id is remembered.
const DefaultDedupeTTL = 24 * time.Hour

// Deduper reports whether an inbound message id is seen for the first time.
type Deduper interface {
	FirstSeen(ctx context.Context, messageID string) (bool, error)
	// Forget releases a claimed id so the message can be retried.
	Forget(ctx context.Context, messageID string) error
}

// RedisDeduper remembers message ids with SETNX.
type RedisDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper keyed under prefix.
func NewRedisDeduper(client *redis.Client, prefix string, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	if prefix == "" {
		prefix = "uwb:intake:"
	}
	return &RedisDeduper{client: client, prefix: prefix, ttl: ttl}
}

// FirstSeen implements Deduper. An empty id is always first seen.
func (d *RedisDeduper) FirstSeen(ctx context.Context, messageID string) (bool, error) {
	id := strings.TrimSpace(messageID)
	if id == "" {
		return true, nil
	}
	ok, err := d.client.SetNX(ctx, d.prefix+id, time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		return false, eris.Wrapf(err, "events: dedupe %s", id)
	}
	return ok, nil
}

// Forget implements Deduper.
func (d *RedisDeduper) Forget(ctx context.Context, messageID string) error {
	id := strings.TrimSpace(messageID)
	if id == "" {
		return nil
	}
	if err := d.client.Del(ctx, d.prefix+id).Err(); err != nil {
		return eris.Wrapf(err, "events: forget %s", id)
	}
	return nil
}

// MemoryDeduper is an in-process Deduper for single-node runs and tests.
type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryDeduper creates a MemoryDeduper.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &MemoryDeduper{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

// FirstSeen implements Deduper.
func (m *MemoryDeduper) FirstSeen(_ context.Context, messageID string) (bool, error) {
	id := strings.TrimSpace(messageID)
	if id == "" {
		return true, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, exp := range m.seen {
		if now.After(exp) {
			delete(m.seen, k)
		}
	}
	if _, ok := m.seen[id]; ok {
		return false, nil
	}
	m.seen[id] = now.Add(m.ttl)
	return true, nil
}

// Forget implements Deduper.
func (m *MemoryDeduper) Forget(_ context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, strings.TrimSpace(messageID))
	return nil
}
