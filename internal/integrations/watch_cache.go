package integrations

import (
	"sync"
	"time"
)

// watchCache stores recent watch-history answers so vote and detail requests
// do not hit Tautulli for every nomination.
type watchCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]watchCacheEntry
}

type watchCacheEntry struct {
	watched   bool
	expiresAt time.Time
}

func newWatchCache(ttl time.Duration, maxEntries int, now func() time.Time) *watchCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if now == nil {
		now = time.Now
	}
	return &watchCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]watchCacheEntry),
	}
}

func (c *watchCache) Get(key string) (watched bool, ok bool) {
	if c == nil {
		return false, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return false, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return false, false
	}
	return entry.watched, true
}

func (c *watchCache) Store(key string, watched bool) {
	if c == nil {
		return
	}
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = watchCacheEntry{watched: watched, expiresAt: expiry}
}

func (c *watchCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]watchCacheEntry)
	c.mu.Unlock()
}

func (c *watchCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *watchCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *watchCache) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}

func watchCacheKey(plexUserID, ratingKey string) string {
	return plexUserID + "|" + ratingKey
}
