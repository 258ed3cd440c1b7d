package embedder

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dshills/devmatch-mcp/pkg/types"
)

// Cache defaults
const (
	DefaultCacheSize = 10000
	DefaultCacheTTL  = 24 * time.Hour
)

// Cache is an expiring LRU of embeddings keyed by aspect and normalized-text hash.
// Stored values are private copies: Set replaces the entry atomically and Get
// hands out a deep copy so callers cannot corrupt cached vectors.
type Cache struct {
	cache *expirable.LRU[string, *types.Embedding]
}

// NewCache creates a new embedding cache with LRU eviction and a TTL
func NewCache(maxLen int, ttl time.Duration) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		cache: expirable.NewLRU[string, *types.Embedding](maxLen, nil, ttl),
	}
}

// CacheKey derives the cache key for an aspect and content hash
func CacheKey(aspect types.Aspect, hash string) string {
	return string(aspect) + ":" + hash
}

// Get retrieves a deep copy of an embedding from cache
func (c *Cache) Get(key string) (*types.Embedding, bool) {
	emb, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return emb.Clone(), true
}

// Set stores a copy of emb under key, replacing any previous value
func (c *Cache) Set(key string, emb *types.Embedding) {
	if emb == nil {
		return
	}
	c.cache.Add(key, emb.Clone())
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}
