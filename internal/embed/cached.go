package embed

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize is the number of vectors kept when no size is
// configured.
const DefaultEmbeddingCacheSize = 1000

type cacheKey [sha256.Size]byte

// CachedEmbedder memoises another Embedder in an LRU keyed by model and
// text. Queries repeated against the retriever, and passages unchanged
// between re-index runs, are embedded once.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[cacheKey, []float32]

	hits   atomic.Int64
	misses atomic.Int64
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner. cacheSize <= 0 uses DefaultEmbeddingCacheSize.
func NewCachedEmbedder(inner Embedder, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultEmbeddingCacheSize
	}
	// lru.New only fails on a non-positive size.
	cache, _ := lru.New[cacheKey, []float32](cacheSize)
	return &CachedEmbedder{inner: inner, cache: cache}
}

func (c *CachedEmbedder) key(text string) cacheKey {
	h := sha256.New()
	h.Write([]byte(c.inner.ModelName()))
	h.Write([]byte{0})
	h.Write([]byte(text))
	var k cacheKey
	h.Sum(k[:0])
	return k
}

func (c *CachedEmbedder) lookup(k cacheKey) ([]float32, bool) {
	vec, ok := c.cache.Get(k)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return vec, ok
}

// Embed returns the cached vector for text or asks the inner embedder.
// Errors are not cached.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	k := c.key(text)
	if vec, ok := c.lookup(k); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(k, vec)
	return vec, nil
}

// EmbedBatch sends only the uncached texts to the inner embedder, in one
// batch, with duplicates inside the batch collapsed. Output order matches
// texts.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	keys := make([]cacheKey, len(texts))
	pending := make(map[cacheKey][]int)
	var todo []string
	for i, text := range texts {
		keys[i] = c.key(text)
		if vec, ok := c.lookup(keys[i]); ok {
			out[i] = vec
			continue
		}
		if _, queued := pending[keys[i]]; !queued {
			todo = append(todo, text)
		}
		pending[keys[i]] = append(pending[keys[i]], i)
	}
	if len(todo) == 0 {
		return out, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, todo)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(todo) {
		return nil, fmt.Errorf("%s returned %d vectors for %d texts", c.inner.ModelName(), len(fresh), len(todo))
	}
	for j, text := range todo {
		k := c.key(text)
		c.cache.Add(k, fresh[j])
		for _, i := range pending[k] {
			out[i] = fresh[j]
		}
	}
	return out, nil
}

// CacheStats returns hit and miss counts since creation.
func (c *CachedEmbedder) CacheStats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *CachedEmbedder) Dimensions() int                    { return c.inner.Dimensions() }
func (c *CachedEmbedder) ModelName() string                  { return c.inner.ModelName() }
func (c *CachedEmbedder) Available(ctx context.Context) bool { return c.inner.Available(ctx) }

// Close drops the cache and closes the inner embedder.
func (c *CachedEmbedder) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}

// Inner returns the wrapped embedder.
func (c *CachedEmbedder) Inner() Embedder {
	return c.inner
}
