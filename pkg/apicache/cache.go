// Package apicache is a TTL keyed cache for upstream API payloads.
// Entries live in memory only and are replaced wholesale on refresh; expired
// entries are lazily ignored on read and physically removed on overwrite or
// invalidation. The key space is the small fixed set of gateway cache keys
// (weather per city, currency, crypto, fixtures), so no eviction sweep runs.
package apicache

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type entry struct {
	fetchedAt time.Time
	ttl       time.Duration
	payload   []byte
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached payload for key, or ok=false when the key is absent
// or its entry has outlived the TTL it was stored with.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.fetchedAt) >= e.ttl {
		return nil, false
	}
	return e.payload, true
}

// Put unconditionally overwrites the entry for key.
func (c *Cache) Put(key string, payload []byte, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{fetchedAt: c.now(), ttl: ttl, payload: payload}
	c.mu.Unlock()
}

// Invalidate removes a single key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		logrus.Debugf("[CACHE] invalidated %s", key)
	}
	c.mu.Unlock()
}

// InvalidateAll clears every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
	logrus.Info("[CACHE] cleared all entries")
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
