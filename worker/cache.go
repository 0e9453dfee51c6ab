package worker

import (
	"sync"
	"time"
)

// keepAliveMaxAge matches the original cache policy: one entry, valid for a
// year measured from last use.
const keepAliveMaxAge = 365 * 24 * time.Hour

// keepAliveCache holds the single keep-alive asset used to keep the worker
// warm. Cache-first: a fresh entry is served without touching the network,
// and serving it refreshes its expiry.
type keepAliveCache struct {
	mu          sync.Mutex
	body        []byte
	contentType string
	lastUsed    time.Time
	maxAge      time.Duration

	now func() time.Time
}

func newKeepAliveCache() *keepAliveCache {
	return &keepAliveCache{
		maxAge: keepAliveMaxAge,
		now:    time.Now,
	}
}

// Get returns the cached asset when present and fresh, refreshing its
// last-used stamp.
func (c *keepAliveCache) Get() ([]byte, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.body == nil {
		return nil, "", false
	}
	if c.now().Sub(c.lastUsed) > c.maxAge {
		c.body = nil
		c.contentType = ""
		return nil, "", false
	}
	c.lastUsed = c.now()
	return c.body, c.contentType, true
}

// Put stores the asset.
func (c *keepAliveCache) Put(body []byte, contentType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.body = body
	c.contentType = contentType
	c.lastUsed = c.now()
}

// Reset empties the bucket; install pre-populates an empty cache.
func (c *keepAliveCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.body = nil
	c.contentType = ""
}
