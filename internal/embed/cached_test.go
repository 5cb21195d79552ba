package embed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEmbedder is a test double that counts calls.
type mockEmbedder struct {
	embedCalls  atomic.Int64
	batchCalls  atomic.Int64
	batchInputs atomic.Int64
	closed      atomic.Bool
	dimensions  int
	modelName   string
	err         error
}

func newMockEmbedder(dims int) *mockEmbedder {
	return &mockEmbedder{dimensions: dims, modelName: "mock-model"}
}

// vectorFor returns a distinct vector per text length.
func (m *mockEmbedder) vectorFor(text string) []float32 {
	vec := make([]float32, m.dimensions)
	vec[len(text)%m.dimensions] = 1
	return vec
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.embedCalls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.vectorFor(text), nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	m.batchInputs.Add(int64(len(texts)))
	if m.err != nil {
		return nil, m.err
	}
	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = m.vectorFor(text)
	}
	return result, nil
}

func (m *mockEmbedder) Dimensions() int                 { return m.dimensions }
func (m *mockEmbedder) ModelName() string               { return m.modelName }
func (m *mockEmbedder) Available(_ context.Context) bool { return !m.closed.Load() }

func (m *mockEmbedder) Close() error {
	m.closed.Store(true)
	return nil
}

func TestCachedEmbedder_CacheHit_ReturnsWithoutCallingInner(t *testing.T) {
	// Given: a cached embedder
	inner := newMockEmbedder(16)
	cached := NewCachedEmbedder(inner, 100)
	defer func() { _ = cached.Close() }()
	ctx := context.Background()

	// When: I embed the same text twice
	first, err1 := cached.Embed(ctx, "hybrid retrieval")
	second, err2 := cached.Embed(ctx, "hybrid retrieval")

	// Then: the inner embedder is called once and results match
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, int64(1), inner.embedCalls.Load())
	assert.Equal(t, first, second)

	hits, misses := cached.CacheStats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCachedEmbedder_CacheMiss_CallsInnerForNewText(t *testing.T) {
	// Given: a cached embedder
	inner := newMockEmbedder(16)
	cached := NewCachedEmbedder(inner, 100)
	ctx := context.Background()

	// When: I embed three different texts
	for _, text := range []string{"one", "two", "three"} {
		_, err := cached.Embed(ctx, text)
		require.NoError(t, err)
	}

	// Then: each reaches the inner embedder
	assert.Equal(t, int64(3), inner.embedCalls.Load())
}

func TestCachedEmbedder_KeyIncludesModelName(t *testing.T) {
	// Given: two cached embedders over different models
	a := NewCachedEmbedder(newMockEmbedder(16), 10)
	other := newMockEmbedder(16)
	other.modelName = "other-model"
	b := NewCachedEmbedder(other, 10)

	// Then: the same text keys differently
	assert.NotEqual(t, a.key("text"), b.key("text"))
	assert.Equal(t, a.key("text"), a.key("text"))
}

func TestCachedEmbedder_InnerError_NotCached(t *testing.T) {
	// Given: an inner embedder that fails
	inner := newMockEmbedder(16)
	inner.err = errors.New("backend down")
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	// When: I embed twice
	_, err1 := cached.Embed(ctx, "text")
	_, err2 := cached.Embed(ctx, "text")

	// Then: both calls fail and both reach the inner embedder
	require.Error(t, err1)
	require.Error(t, err2)
	assert.Equal(t, int64(2), inner.embedCalls.Load())
}

func TestCachedEmbedder_EmbedBatch_OnlyMissesReachInner(t *testing.T) {
	// Given: a cache holding "a"
	inner := newMockEmbedder(16)
	cached := NewCachedEmbedder(inner, 100)
	ctx := context.Background()
	_, err := cached.Embed(ctx, "a")
	require.NoError(t, err)

	// When: I embed a batch containing "a" and two new texts
	vecs, err := cached.EmbedBatch(ctx, []string{"a", "bb", "ccc"})

	// Then: results are in input order and only the misses were sent
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, inner.vectorFor("a"), vecs[0])
	assert.Equal(t, inner.vectorFor("bb"), vecs[1])
	assert.Equal(t, inner.vectorFor("ccc"), vecs[2])
	assert.Equal(t, int64(1), inner.batchCalls.Load())
	assert.Equal(t, int64(2), inner.batchInputs.Load())

	// And: a repeated batch is served entirely from cache
	_, err = cached.EmbedBatch(ctx, []string{"bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inner.batchCalls.Load())
}

func TestCachedEmbedder_EmbedBatch_CollapsesDuplicates(t *testing.T) {
	// Given: a batch where the same passage text appears three times
	inner := newMockEmbedder(16)
	cached := NewCachedEmbedder(inner, 100)

	// When: embedding the batch
	vecs, err := cached.EmbedBatch(context.Background(), []string{"page 1", "body", "page 1", "page 1"})

	// Then: the inner embedder saw each distinct text once and every slot is filled
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.batchInputs.Load())
	for i, text := range []string{"page 1", "body", "page 1", "page 1"} {
		assert.Equal(t, inner.vectorFor(text), vecs[i])
	}
}

// shortEmbedder drops the last vector of every batch.
type shortEmbedder struct{ *mockEmbedder }

func (s shortEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := s.mockEmbedder.EmbedBatch(ctx, texts)
	if err != nil || len(vecs) == 0 {
		return vecs, err
	}
	return vecs[:len(vecs)-1], nil
}

func TestCachedEmbedder_EmbedBatch_ShortInnerBatch(t *testing.T) {
	// Given: an inner embedder that returns one vector too few
	cached := NewCachedEmbedder(shortEmbedder{newMockEmbedder(16)}, 10)

	// When: embedding two texts
	vecs, err := cached.EmbedBatch(context.Background(), []string{"a", "bb"})

	// Then: an error, not a panic, and nothing half-cached is returned
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 vectors for 2 texts")
	assert.Nil(t, vecs)
	assert.Zero(t, cached.cache.Len())
}

func TestGetInfo_ReportsCacheStats(t *testing.T) {
	cached := NewCachedEmbedder(newMockEmbedder(16), 10)
	ctx := context.Background()
	_, _ = cached.Embed(ctx, "q")
	_, _ = cached.Embed(ctx, "q")

	info := GetInfo(ctx, cached)

	assert.True(t, info.Cached)
	assert.Equal(t, int64(1), info.CacheHits)
	assert.Equal(t, int64(1), info.CacheMisses)
}

func TestCachedEmbedder_EmbedBatch_Empty(t *testing.T) {
	cached := NewCachedEmbedder(newMockEmbedder(16), 10)

	vecs, err := cached.EmbedBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.NotNil(t, vecs)
	assert.Empty(t, vecs)
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	inner := newMockEmbedder(32)
	cached := NewCachedEmbedder(inner, 0)

	assert.Equal(t, 32, cached.Dimensions())
	assert.Equal(t, "mock-model", cached.ModelName())
	assert.True(t, cached.Available(context.Background()))
	assert.Same(t, inner, cached.Inner())
}

func TestCachedEmbedder_Close_ClosesInner(t *testing.T) {
	inner := newMockEmbedder(16)
	cached := NewCachedEmbedder(inner, 10)

	require.NoError(t, cached.Close())

	assert.True(t, inner.closed.Load())
	assert.False(t, cached.Available(context.Background()))
}

func TestCachedEmbedder_Eviction_OldestEvictedFirst(t *testing.T) {
	// Given: a cache of size 2
	inner := newMockEmbedder(16)
	cached := NewCachedEmbedder(inner, 2)
	ctx := context.Background()

	// When: I embed three texts, then the first again
	for _, text := range []string{"a", "bb", "ccc", "a"} {
		_, err := cached.Embed(ctx, text)
		require.NoError(t, err)
	}

	// Then: "a" was evicted and recomputed
	assert.Equal(t, int64(4), inner.embedCalls.Load())
}

func TestCachedEmbedder_ConcurrentAccess_NoRace(t *testing.T) {
	cached := NewCachedEmbedder(newMockEmbedder(16), 100)
	ctx := context.Background()
	texts := []string{"a", "b", "c", "d", "e"}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = cached.Embed(ctx, texts[j%len(texts)])
			}
		}()
	}
	wg.Wait()

	hits, misses := cached.CacheStats()
	assert.Equal(t, int64(1000), hits+misses)
}
