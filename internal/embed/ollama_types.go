package embed

import "time"

const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is a general-purpose text embedding model.
	DefaultOllamaModel = "nomic-embed-text"

	// OllamaConnectTimeout bounds the startup health check.
	OllamaConnectTimeout = 10 * time.Second

	// OllamaPoolSize is the HTTP connection pool size.
	OllamaPoolSize = 4

	// DefaultRequestsPerSecond limits request rate to the backend. Zero
	// disables limiting.
	DefaultRequestsPerSecond = 0
)

// FallbackOllamaModels are tried in order if the configured model is not
// installed.
var FallbackOllamaModels = []string{
	"mxbai-embed-large",
	"all-minilm",
}

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	Host           string
	Model          string
	FallbackModels []string

	// Dimensions overrides auto-detection (0 = detect on startup).
	Dimensions int

	BatchSize int

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// RequestsPerSecond limits request rate (0 = unlimited).
	RequestsPerSecond float64

	MaxRetries int
	PoolSize   int

	// SkipHealthCheck skips model discovery at construction (tests).
	SkipHealthCheck bool
}

// DefaultOllamaConfig returns the defaults.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:              DefaultOllamaHost,
		Model:             DefaultOllamaModel,
		FallbackModels:    FallbackOllamaModels,
		BatchSize:         DefaultBatchSize,
		Timeout:           DefaultTimeout,
		RequestsPerSecond: DefaultRequestsPerSecond,
		MaxRetries:        3,
		PoolSize:          OllamaPoolSize,
	}
}

// OllamaEmbedRequest is the /api/embed request body.
type OllamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string
}

// OllamaEmbedResponse is the /api/embed response body.
type OllamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaModelListResponse is the /api/tags response body.
type OllamaModelListResponse struct {
	Models []OllamaModelInfo `json:"models"`
}

// OllamaModelInfo describes an installed model.
type OllamaModelInfo struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}
