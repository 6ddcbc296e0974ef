package pricing

import (
	"sync"
	"time"
)

// cellCache is a tiny in-memory TTL cache for per-cell surge ratios. It
// sits in front of Redis so a burst of quotes for the same area costs one
// lookup. Capacity numbers never live here, only the pricing signal.
type cellCache struct {
	mu    sync.RWMutex
	store map[string]cellEntry
	ttl   time.Duration
}

type cellEntry struct {
	ratio float64
	ts    time.Time
}

func newCellCache(ttl time.Duration) *cellCache {
	return &cellCache{store: make(map[string]cellEntry), ttl: ttl}
}

func (c *cellCache) get(key string) (float64, bool) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, key)
		c.mu.Unlock()
		return 0, false
	}
	return e.ratio, true
}

func (c *cellCache) set(key string, ratio float64) {
	c.mu.Lock()
	c.store[key] = cellEntry{ratio: ratio, ts: time.Now()}
	c.mu.Unlock()
}
