package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// ResponseCache is a bounded FIFO cache of provider responses keyed by
// provider, model and prompt. Identical prompts in one process skip the gate.
type ResponseCache struct {
	capacity int

	mu      sync.Mutex
	entries map[string]string
	order   []string

	metrics *Metrics
}

// NewResponseCache returns a cache holding at most capacity entries.
// A capacity of 0 disables caching.
func NewResponseCache(capacity int, m *Metrics) *ResponseCache {
	return &ResponseCache{
		capacity: capacity,
		entries:  make(map[string]string, capacity),
		metrics:  m,
	}
}

// CacheKey hashes the identifying parts of a request.
func CacheKey(provider, model, prompt string) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached response for key.
func (c *ResponseCache) Get(key string) (string, bool) {
	if c == nil || c.capacity <= 0 {
		return "", false
	}
	c.mu.Lock()
	v, ok := c.entries[key]
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.cacheLookup(ok)
	}
	return v, ok
}

// Put stores a response, evicting the oldest entry when full.
func (c *ResponseCache) Put(key, response string) {
	if c == nil || c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		c.entries[key] = response
		return
	}
	for len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = response
	c.order = append(c.order, key)
	if c.metrics != nil {
		c.metrics.cacheSize.Set(float64(len(c.entries)))
	}
}

// Len returns the number of cached responses.
func (c *ResponseCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
