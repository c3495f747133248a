package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseCache_FIFOEviction(t *testing.T) {
	c := NewResponseCache(2, nil)

	c.Put("a", "1")
	c.Put("b", "2")
	c.Put("a", "1b") // update keeps position
	c.Put("c", "3")

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")
	v, ok := c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, "3", v)
	assert.Equal(t, 2, c.Len())
}

func TestResponseCache_Disabled(t *testing.T) {
	c := NewResponseCache(0, nil)
	c.Put("a", "1")
	_, ok := c.Get("a")
	assert.False(t, ok)

	var nilCache *ResponseCache
	nilCache.Put("a", "1")
	_, ok = nilCache.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, nilCache.Len())
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, CacheKey("ollama", "llama3", "p"), CacheKey("ollama", "llama3", "p"))
	assert.NotEqual(t, CacheKey("ollama", "llama3", "p"), CacheKey("gemini", "llama3", "p"))
	assert.NotEqual(t, CacheKey("ab", "c", "p"), CacheKey("a", "bc", "p"))
}
