package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 512

// CachedEmbedder wraps an Embedder with an LRU cache keyed by text+model, so
// repeated queries (and repeated chunks across re-indexed versions) skip the
// network round trip entirely.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps inner with an LRU cache of the given size.
func NewCachedEmbedder(inner Embedder, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedEmbedder{inner: inner, cache: cache}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	combined := text + "\x00" + c.inner.ModelName()
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	rememberDimensions(c.inner.ModelName(), len(vec))
	return vec, nil
}

func (c *CachedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	uncachedIdx := make([]int, 0, len(texts))
	uncachedTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		key := c.cacheKey(text)
		if vec, ok := c.cache.Get(key); ok {
			results[i] = vec
		} else {
			uncachedIdx = append(uncachedIdx, i)
			uncachedTexts = append(uncachedTexts, text)
		}
	}

	if len(uncachedTexts) == 0 {
		return results, nil
	}

	fresh, err := c.inner.EmbedDocuments(ctx, uncachedTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range uncachedIdx {
		results[idx] = fresh[j]
		c.cache.Add(c.cacheKey(texts[idx]), fresh[j])
	}
	if len(fresh) > 0 {
		rememberDimensions(c.inner.ModelName(), len(fresh[0]))
	}

	return results, nil
}

func (c *CachedEmbedder) Dimensions() int {
	if d, ok := lookupDimensions(c.inner.ModelName()); ok {
		return d
	}
	return c.inner.Dimensions()
}

func (c *CachedEmbedder) ModelName() string { return c.inner.ModelName() }

func (c *CachedEmbedder) Close() error { return c.inner.Close() }

// Inner returns the wrapped embedder.
func (c *CachedEmbedder) Inner() Embedder { return c.inner }

var (
	dimensionsMu    sync.RWMutex
	dimensionsCache = map[string]int{}
)

// rememberDimensions records the observed output width for a model name.
// The cache is append-only for the life of the process: once a model's
// dimension is known it never changes, so entries are never evicted.
func rememberDimensions(model string, dims int) {
	if model == "" || dims == 0 {
		return
	}
	dimensionsMu.Lock()
	defer dimensionsMu.Unlock()
	if _, ok := dimensionsCache[model]; !ok {
		dimensionsCache[model] = dims
	}
}

// lookupDimensions returns the memoized dimension for a model name, if any
// embedding for that model has been observed yet in this process.
func lookupDimensions(model string) (int, bool) {
	dimensionsMu.RLock()
	defer dimensionsMu.RUnlock()
	d, ok := dimensionsCache[model]
	return d, ok
}

// ResetDimensionsCache clears the process-wide dimensions memoization. It
// exists only for test isolation between cases that use different model
// names that happen to collide, or that assert on cache-miss behavior.
func ResetDimensionsCache() {
	dimensionsMu.Lock()
	defer dimensionsMu.Unlock()
	dimensionsCache = map[string]int{}
}
