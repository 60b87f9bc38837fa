package embedding

import (
	"container/list"
	"context"
	"sync"
)

// cacheKey scopes a cached vector to the model that produced it.
type cacheKey struct {
	model string
	text  string
}

type cacheEntry struct {
	key    cacheKey
	vector []float32
}

// EmbeddingCache is a bounded LRU of query embeddings. Vectors are copied in and out,
// so callers may modify what they get back.
type EmbeddingCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[cacheKey]*list.Element
	order    *list.List // front is most recently used
	hits     uint64
	misses   uint64
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

// NewEmbeddingCache creates a cache holding at most capacity vectors (minimum 1).
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &EmbeddingCache{
		capacity: capacity,
		entries:  make(map[cacheKey]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the vector stored for model and text and marks it recently used.
func (c *EmbeddingCache) Get(model, text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[cacheKey{model, text}]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(elem)
	return append([]float32(nil), elem.Value.(*cacheEntry).vector...), true
}

// Put stores the vector for model and text, evicting the least recently used entry when full.
func (c *EmbeddingCache) Put(model, text string, vector []float32) {
	key := cacheKey{model, text}
	vector = append([]float32(nil), vector...)

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		elem.Value.(*cacheEntry).vector = vector
		c.order.MoveToFront(elem)
		return
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, vector: vector})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Stats returns the entry count and hit/miss counters.
func (c *EmbeddingCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: c.order.Len(), Hits: c.hits, Misses: c.misses}
}

// CachedEmbedder memoizes single-text embeddings of the wrapped Embedder.
// Batch calls pass through uncached.
type CachedEmbedder struct {
	Embedder
	cache *EmbeddingCache
}

// NewCachedEmbedder wraps inner with an LRU of the given capacity.
func NewCachedEmbedder(inner Embedder, capacity int) *CachedEmbedder {
	return &CachedEmbedder{Embedder: inner, cache: NewEmbeddingCache(capacity)}
}

// Embed returns the cached vector for text, embedding and caching it on a miss.
// Failed embeddings are not cached.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	model := c.Model()
	if v, ok := c.cache.Get(model, text); ok {
		return v, nil
	}
	v, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Put(model, text, v)
	return v, nil
}

// CacheStats reports the query cache counters.
func (c *CachedEmbedder) CacheStats() CacheStats {
	return c.cache.Stats()
}
