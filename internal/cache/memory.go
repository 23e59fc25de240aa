package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is a process-local Cache used in tests and when the gateway runs
// without Redis. Same first-write-wins policy as the Redis implementation.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memEntry
}

type memEntry struct {
	entry     *Entry
	expiresAt time.Time
}

func NewMemory() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memEntry)}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, nil
	}
	return e.entry, nil
}

func (c *MemoryCache) Put(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok && time.Now().Before(existing.expiresAt) {
		return nil // first write wins
	}
	c.entries[key] = memEntry{entry: entry, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}
