package cache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache implements in-memory caching with TTL expiry and an optional
// entry cap. Past the cap the entry closest to expiry is evicted.
type MemoryCache struct {
	mu         sync.Mutex
	cache      *gocache.Cache
	maxEntries int
}

// NewMemoryCache creates a new memory cache; maxEntries <= 0 means unbounded
func NewMemoryCache(defaultTTL time.Duration, cleanupInterval time.Duration, maxEntries int) *MemoryCache {
	return &MemoryCache{
		cache:      gocache.New(defaultTTL, cleanupInterval),
		maxEntries: maxEntries,
	}
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	if val, found := c.cache.Get(key); found {
		return val.([]byte), true
	}
	return nil, false
}

// Set stores a value in the cache with the given TTL
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 {
		if _, exists := c.cache.Get(key); !exists {
			for c.cache.ItemCount() >= c.maxEntries {
				c.evictOne()
			}
		}
	}
	c.cache.Set(key, value, ttl)
	return nil
}

// evictOne drops the entry closest to expiry; entries without expiry go last
func (c *MemoryCache) evictOne() {
	var victim string
	var soonest int64
	found := false
	for k, item := range c.cache.Items() {
		exp := item.Expiration
		if exp == 0 {
			exp = 1<<63 - 1
		}
		if !found || exp < soonest || (exp == soonest && k < victim) {
			victim, soonest, found = k, exp, true
		}
	}
	if found {
		c.cache.Delete(victim)
	}
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(key string) error {
	c.cache.Delete(key)
	return nil
}

// Clear removes all values from the cache
func (c *MemoryCache) Clear() error {
	c.cache.Flush()
	return nil
}

// Len returns the number of unexpired entries
func (c *MemoryCache) Len() int {
	return len(c.cache.Items())
}
