package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	herrors "github.com/Aman-CERP/hybridrag/internal/errors"
)

// OllamaEmbedder generates embeddings through Ollama's HTTP API.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	limiter   *rate.Limiter
	config    OllamaConfig
	modelName string
	dims      int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates an Ollama embedder. Unless SkipHealthCheck is
// set it resolves an installed model and detects the dimension.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	defaults := DefaultOllamaConfig()
	if cfg.Host == "" {
		cfg.Host = defaults.Host
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.FallbackModels == nil {
		cfg.FallbackModels = defaults.FallbackModels
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = OllamaPoolSize
	}

	// IdleConnTimeout stays short: CLI indexing runs are short-lived.
	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	// No client-level timeout: each request gets its own context deadline.
	e := &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, OllamaConnectTimeout+cfg.Timeout)
		defer cancel()

		name, err := e.findAvailableModel(checkCtx)
		if err != nil {
			transport.CloseIdleConnections()
			return nil, herrors.New(herrors.ErrCodeEmbedderUnavailable, "failed to reach Ollama or find an embedding model", err).
				WithDetail("host", cfg.Host).
				WithSuggestion("start Ollama and run 'ollama pull " + cfg.Model + "', or set embeddings.provider: static")
		}
		e.modelName = name

		if e.dims == 0 {
			vecs, err := e.embedRequest(checkCtx, []string{"dimension detection"})
			if err != nil {
				transport.CloseIdleConnections()
				return nil, fmt.Errorf("failed to detect embedding dimensions: %w", err)
			}
			e.dims = len(vecs[0])
		}
		slog.Info("ollama_embedder_ready",
			slog.String("model", e.modelName),
			slog.Int("dimensions", e.dims))
	}

	return e, nil
}

func (e *OllamaEmbedder) listModels(ctx context.Context) ([]OllamaModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result OllamaModelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Models, nil
}

// findAvailableModel matches the configured model, then each fallback,
// against installed models by full name or by name without tag.
func (e *OllamaEmbedder) findAvailableModel(ctx context.Context) (string, error) {
	models, err := e.listModels(ctx)
	if err != nil {
		return "", err
	}

	available := make(map[string]string, len(models)*2)
	for _, m := range models {
		name := strings.ToLower(m.Name)
		available[name] = m.Name
		base, _, _ := strings.Cut(name, ":")
		if _, exists := available[base]; !exists {
			available[base] = m.Name
		}
	}

	candidates := append([]string{e.config.Model}, e.config.FallbackModels...)
	for _, c := range candidates {
		name := strings.ToLower(c)
		if actual, ok := available[name]; ok {
			return actual, nil
		}
		base, _, _ := strings.Cut(name, ":")
		if actual, ok := available[base]; ok {
			return actual, nil
		}
	}
	return "", fmt.Errorf("no embedding model available (tried %s)", strings.Join(candidates, ", "))
}

// Embed implements Embedder. Blank text embeds to the zero vector.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements Embedder. Texts are sent in batches of BatchSize;
// blank texts are not sent.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, ErrEmbedderClosed
	}

	results := make([][]float32, len(texts))
	var pendingIdx []int
	var pendingText []string
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.dims)
			continue
		}
		pendingIdx = append(pendingIdx, i)
		pendingText = append(pendingText, text)
	}

	for start := 0; start < len(pendingText); start += e.config.BatchSize {
		end := min(start+e.config.BatchSize, len(pendingText))

		vecs, err := e.embedWithRetry(ctx, pendingText[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch %d-%d: %w", start, end, err)
		}
		for j, v := range vecs {
			results[pendingIdx[start+j]] = v
		}
	}
	return results, nil
}

func (e *OllamaEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	cfg := herrors.DefaultRetryConfig()
	cfg.MaxRetries = e.config.MaxRetries
	cfg.ShouldRetry = herrors.IsRetryable
	cfg.Jitter = true
	cfg.OnRetry = func(retry int, wait time.Duration, err error) {
		slog.Warn("ollama_embed_retry",
			slog.Int("retry", retry),
			slog.Int("batch", len(texts)),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()))
	}
	return herrors.RetryWithResult(ctx, cfg, func() ([][]float32, error) {
		return e.embedRequest(ctx, texts)
	})
}

// embedRequest performs one /api/embed call and normalizes the vectors.
// Transport failures and 5xx responses are retryable.
func (e *OllamaEmbedder) embedRequest(ctx context.Context, texts []string) ([][]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}
	body, err := json.Marshal(OllamaEmbedRequest{Model: e.modelName, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, herrors.New(herrors.ErrCodeEmbedderUnavailable, "ollama request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		code := herrors.ErrCodeEmbeddingFailed
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			code = herrors.ErrCodeEmbedderUnavailable
		}
		return nil, herrors.Newf(code, "embedding failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result OllamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}

	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if len(emb) == 0 {
			return nil, fmt.Errorf("empty embedding returned for input %d", i)
		}
		if e.dims != 0 && len(emb) != e.dims {
			return nil, herrors.Newf(herrors.ErrCodeDimensionMismatch,
				"model %s returned %d dimensions, expected %d", e.modelName, len(emb), e.dims)
		}
		v := make([]float32, len(emb))
		for j, x := range emb {
			v[j] = float32(x)
		}
		out[i] = normalizeVector(v)
	}
	return out, nil
}

// Dimensions implements Embedder.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dims
}

// ModelName implements Embedder.
func (e *OllamaEmbedder) ModelName() string {
	return "ollama:" + e.modelName
}

// Available implements Embedder with a quick /api/tags probe.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, OllamaConnectTimeout)
	defer cancel()
	_, err := e.listModels(ctx)
	return err == nil
}

// Close releases idle connections.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
