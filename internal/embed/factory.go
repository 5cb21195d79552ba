package embed

import (
	"context"
	"fmt"
	"strings"
	"time"

	herrors "github.com/Aman-CERP/hybridrag/internal/errors"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings (offline, deterministic).
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses the Ollama API.
	ProviderOllama ProviderType = "ollama"

	// ProviderNone disables the vector side; retrieval is lexical only.
	ProviderNone ProviderType = "none"
)

// Config selects and configures an embedder.
type Config struct {
	Provider   ProviderType
	Model      string
	Host       string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration

	// RequestsPerSecond limits Ollama request rate (0 = unlimited).
	RequestsPerSecond float64

	// CacheSize is the LRU size; negative disables the cache.
	CacheSize int
}

// NewEmbedder creates the embedder cfg names, wrapped in a cache unless
// CacheSize is negative. ProviderNone returns (nil, nil).
func NewEmbedder(ctx context.Context, cfg Config) (Embedder, error) {
	var embedder Embedder

	switch cfg.Provider {
	case ProviderNone:
		return nil, nil

	case ProviderStatic, "":
		embedder = NewStaticEmbedder(cfg.Dimensions)

	case ProviderOllama:
		ocfg := DefaultOllamaConfig()
		if cfg.Host != "" {
			ocfg.Host = cfg.Host
		}
		if cfg.Model != "" {
			ocfg.Model = cfg.Model
		}
		if cfg.BatchSize > 0 {
			ocfg.BatchSize = cfg.BatchSize
		}
		if cfg.Timeout > 0 {
			ocfg.Timeout = cfg.Timeout
		}
		ocfg.Dimensions = cfg.Dimensions
		ocfg.RequestsPerSecond = cfg.RequestsPerSecond

		e, err := NewOllamaEmbedder(ctx, ocfg)
		if err != nil {
			return nil, fmt.Errorf("ollama unavailable: %w", err)
		}
		embedder = e

	default:
		return nil, herrors.Newf(herrors.ErrCodeUnknownBackend, "unknown embedding provider %q", cfg.Provider).
			WithSuggestion("use one of: " + strings.Join(ValidProviders(), ", "))
	}

	if cfg.CacheSize >= 0 {
		embedder = NewCachedEmbedder(embedder, cfg.CacheSize)
	}
	return embedder, nil
}

// ParseProvider converts a string to ProviderType. Unknown names are
// returned as-is so NewEmbedder can reject them.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "static":
		return ProviderStatic
	case "ollama":
		return ProviderOllama
	case "none", "off", "disabled":
		return ProviderNone
	default:
		return ProviderType(s)
	}
}

// String returns the string representation of ProviderType.
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders returns all valid provider names.
func ValidProviders() []string {
	return []string{
		string(ProviderStatic),
		string(ProviderOllama),
		string(ProviderNone),
	}
}

// IsValidProvider checks if a provider name is valid.
func IsValidProvider(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range ValidProviders() {
		if lower == p {
			return true
		}
	}
	return false
}

// EmbedderInfo describes an embedder for status output.
type EmbedderInfo struct {
	Provider    ProviderType `json:"provider"`
	Model       string       `json:"model"`
	Dimensions  int          `json:"dimensions"`
	Available   bool         `json:"available"`
	Cached      bool         `json:"cached"`
	CacheHits   int64        `json:"cache_hits,omitempty"`
	CacheMisses int64        `json:"cache_misses,omitempty"`
}

// GetInfo returns information about an embedder.
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	if embedder == nil {
		return EmbedderInfo{Provider: ProviderNone}
	}
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.Inner()
		info.Cached = true
		info.CacheHits, info.CacheMisses = cached.CacheStats()
	}
	switch inner.(type) {
	case *OllamaEmbedder:
		info.Provider = ProviderOllama
	default:
		info.Provider = ProviderStatic
	}
	return info
}
