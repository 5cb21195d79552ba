package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "github.com/Aman-CERP/hybridrag/internal/errors"
)

// fakeOllama serves /api/tags and /api/embed with dims-sized vectors.
type fakeOllama struct {
	models     []string
	dims       int
	embedCalls atomic.Int64
	failFirst  int64 // number of initial embed calls answered with 503
	lastModel  atomic.Value
}

func (f *fakeOllama) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		resp := OllamaModelListResponse{}
		for _, m := range f.models {
			resp.Models = append(resp.Models, OllamaModelInfo{Name: m})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		n := f.embedCalls.Add(1)
		if n <= f.failFirst {
			http.Error(w, "loading model", http.StatusServiceUnavailable)
			return
		}
		var req OllamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.lastModel.Store(req.Model)

		var inputs []string
		switch v := req.Input.(type) {
		case string:
			inputs = []string{v}
		case []any:
			for _, s := range v {
				inputs = append(inputs, s.(string))
			}
		}
		resp := OllamaEmbedResponse{Model: req.Model}
		for i, text := range inputs {
			vec := make([]float64, f.dims)
			vec[(len(text)+i)%f.dims] = 2
			resp.Embeddings = append(resp.Embeddings, vec)
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func newFakeOllama(t *testing.T, f *fakeOllama) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbedder_DiscoversModelAndDimensions(t *testing.T) {
	// Given: a server with a tagged model installed
	f := &fakeOllama{models: []string{"nomic-embed-text:latest"}, dims: 8}
	srv := newFakeOllama(t, f)

	// When: I create the embedder
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL + "/"})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	// Then: the tagged name resolves and dimensions are detected
	assert.Equal(t, "ollama:nomic-embed-text:latest", e.ModelName())
	assert.Equal(t, 8, e.Dimensions())
	assert.True(t, e.Available(context.Background()))
}

func TestOllamaEmbedder_FallsBackToInstalledModel(t *testing.T) {
	f := &fakeOllama{models: []string{"all-minilm:l6-v2"}, dims: 4}
	srv := newFakeOllama(t, f)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL})

	require.NoError(t, err)
	assert.Equal(t, "ollama:all-minilm:l6-v2", e.ModelName())
}

func TestOllamaEmbedder_NoModel_ReturnsUnavailable(t *testing.T) {
	f := &fakeOllama{models: []string{"llama3"}, dims: 4}
	srv := newFakeOllama(t, f)

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, FallbackModels: []string{}})

	require.Error(t, err)
	assert.ErrorIs(t, err, herrors.Sentinel(herrors.ErrCodeEmbedderUnavailable))
}

func TestOllamaEmbedder_EmbedBatch_NormalizesAndBatches(t *testing.T) {
	// Given: an embedder with batch size 2
	f := &fakeOllama{dims: 4}
	srv := newFakeOllama(t, f)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: srv.URL, Dimensions: 4, BatchSize: 2, SkipHealthCheck: true,
	})
	require.NoError(t, err)

	// When: I embed three texts and one blank
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", " ", "bb", "ccc"})

	// Then: blank text is not sent, the rest go in two requests
	require.NoError(t, err)
	require.Len(t, vecs, 4)
	assert.Equal(t, int64(2), f.embedCalls.Load())
	assert.Zero(t, norm(vecs[1]))
	for _, i := range []int{0, 2, 3} {
		assert.InDelta(t, 1.0, norm(vecs[i]), 1e-6)
	}
	assert.Equal(t, DefaultOllamaModel, f.lastModel.Load())
}

func TestOllamaEmbedder_RetriesTransientFailure(t *testing.T) {
	// Given: a server that fails the first request with 503
	f := &fakeOllama{dims: 4, failFirst: 1}
	srv := newFakeOllama(t, f)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: srv.URL, Dimensions: 4, MaxRetries: 1, SkipHealthCheck: true,
	})
	require.NoError(t, err)

	// When: I embed
	vec, err := e.Embed(context.Background(), "retry me")

	// Then: the retry succeeds
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, int64(2), f.embedCalls.Load())
}

func TestOllamaEmbedder_ClientErrorNotRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: srv.URL, Dimensions: 4, MaxRetries: 3, SkipHealthCheck: true,
	})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "text")

	require.Error(t, err)
	assert.Equal(t, herrors.ErrCodeEmbeddingFailed, herrors.GetCode(err))
}

func TestOllamaEmbedder_DimensionMismatch(t *testing.T) {
	f := &fakeOllama{dims: 8}
	srv := newFakeOllama(t, f)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: srv.URL, Dimensions: 4, MaxRetries: 0, SkipHealthCheck: true,
	})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "text")

	assert.ErrorIs(t, err, herrors.Sentinel(herrors.ErrCodeDimensionMismatch))
}

func TestOllamaEmbedder_Close(t *testing.T) {
	f := &fakeOllama{dims: 4}
	srv := newFakeOllama(t, f)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: srv.URL, Dimensions: 4, SkipHealthCheck: true,
	})
	require.NoError(t, err)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err = e.Embed(context.Background(), "text")
	assert.ErrorIs(t, err, ErrEmbedderClosed)
	assert.False(t, e.Available(context.Background()))
}

func TestOllamaEmbedder_RateLimiterConfigured(t *testing.T) {
	f := &fakeOllama{dims: 4}
	srv := newFakeOllama(t, f)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: srv.URL, Dimensions: 4, RequestsPerSecond: 50, SkipHealthCheck: true,
	})
	require.NoError(t, err)
	require.NotNil(t, e.limiter)

	for i := 0; i < 3; i++ {
		_, err := e.Embed(context.Background(), "limited")
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), f.embedCalls.Load())
}
