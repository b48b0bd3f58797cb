package prepop

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize caps the number of cached API responses
const DefaultCacheSize = 100

// Cache holds decoded API responses keyed by request fingerprint.
// Entries expire after their own TTL; when the cache is full the least recently used entry goes.
type Cache struct {
	entries *lru.Cache[string, cacheEntry]
	now     func() time.Time
}

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// NewCache creates a cache holding at most size entries. A nil clock means time.Now.
func NewCache(size int, now func() time.Time) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if now == nil {
		now = time.Now
	}
	entries, _ := lru.New[string, cacheEntry](size) // only fails for size <= 0
	return &Cache{entries: entries, now: now}
}

// Get returns a live entry. Expired entries are dropped on read.
func (c *Cache) Get(key string) (any, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		c.entries.Remove(key)
		return nil, false
	}
	return e.value, true
}

// Set stores value for ttl and sweeps expired entries
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := c.now()
	c.sweep(now)
	c.entries.Add(key, cacheEntry{value: value, expiresAt: now.Add(ttl)})
}

// Len is the number of stored entries, expired or not
func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) sweep(now time.Time) {
	for _, key := range c.entries.Keys() {
		if e, ok := c.entries.Peek(key); ok && !now.Before(e.expiresAt) {
			c.entries.Remove(key)
		}
	}
}
