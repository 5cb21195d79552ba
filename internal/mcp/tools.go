package mcp

// Tool names.
const (
	ToolSearch      = "search"
	ToolIndexStatus = "index_status"
)

// Result limits for the search tool.
const (
	DefaultTopK = 5
	MaxTopK     = 50
)

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the natural language or keyword query"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"maximum number of passages to return, default 5, max 50"`
}

// SearchOutput defines the structured output of the search tool.
type SearchOutput struct {
	Query   string               `json:"query"`
	Results []SearchResultOutput `json:"results" jsonschema:"passages ordered best first"`
}

// SearchResultOutput is one retrieved passage.
type SearchResultOutput struct {
	ID           string  `json:"id" jsonschema:"stable passage id"`
	Source       string  `json:"source,omitempty" jsonschema:"document the passage was cut from, relative to the corpus root"`
	Content      string  `json:"content" jsonschema:"passage text"`
	Score        float64 `json:"score" jsonschema:"fused relevance score"`
	VectorScore  float64 `json:"vector_score" jsonschema:"semantic similarity, 0 if the semantic signal missed"`
	LexicalScore float64 `json:"lexical_score" jsonschema:"keyword score normalized by the best keyword score"`
	MatchReason  string  `json:"match_reason,omitempty" jsonschema:"which signals matched"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Corpus      CorpusInfo      `json:"corpus"`
	Embeddings  EmbeddingInfo   `json:"embeddings"`
	Retrieval   RetrievalInfo   `json:"retrieval"`
	Consistency ConsistencyInfo `json:"consistency"`
}

// CorpusInfo describes what has been indexed.
type CorpusInfo struct {
	Dir         string `json:"dir"`
	DataDir     string `json:"data_dir"`
	Documents   int    `json:"documents"`
	Passages    int    `json:"passages"`
	Vectors     int    `json:"vectors"`
	LastIndexed string `json:"last_indexed,omitempty"`
}

// EmbeddingInfo contains the configured and the active embedder.
type EmbeddingInfo struct {
	// Config values
	Provider string `json:"provider"`
	Model    string `json:"model"`

	// Runtime state, so clients can judge semantic quality
	ActualProvider  string `json:"actual_provider"`
	ActualModel     string `json:"actual_model"`
	Dimensions      int    `json:"dimensions"`
	Status          string `json:"status"`           // "ready", "unavailable" or "disabled"
	SemanticQuality string `json:"semantic_quality"` // "high" (ollama), "low" (static) or "none"
}

// RetrievalInfo describes fusion settings and the vector circuit.
type RetrievalInfo struct {
	Alpha          float64 `json:"alpha"`
	Fusion         string  `json:"fusion"`
	LexicalBackend string  `json:"lexical_backend"`
	VectorEnabled  bool    `json:"vector_enabled"`
	BreakerState   string  `json:"breaker_state"`
	Generation     uint64  `json:"generation"`
}

// ConsistencyInfo summarizes the cross-store check.
type ConsistencyInfo struct {
	Consistent bool `json:"consistent"`
	Issues     int  `json:"issues"`
}
