package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/hybridrag/internal/config"
	"github.com/Aman-CERP/hybridrag/internal/embed"
	"github.com/Aman-CERP/hybridrag/internal/index"
	"github.com/Aman-CERP/hybridrag/internal/search"
	"github.com/Aman-CERP/hybridrag/pkg/version"
)

// Backend is what the server needs from the index. *index.Service
// implements it.
type Backend interface {
	Search(ctx context.Context, query string, topK int) ([]search.Result, error)
	Status(ctx context.Context) (*index.Status, error)
	Sources(ctx context.Context) ([]string, error)
	CorpusDir() string
}

var _ Backend = (*index.Service)(nil)

// Server bridges MCP clients with the hybrid retriever.
type Server struct {
	mcp     *mcp.Server
	backend Backend
	config  *config.Config
	logger  *slog.Logger

	resMu     sync.Mutex
	published map[string]struct{}
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name: ToolSearch,
		Description: "Search the indexed document corpus. Combines keyword (BM25) and semantic similarity, " +
			"so both exact terms and paraphrases are found. Returns the best passages as markdown.",
	},
	{
		Name: ToolIndexStatus,
		Description: "Report how many documents and passages are indexed, which embedder is active, " +
			"and whether semantic search is available. Use before searching to check the index is ready.",
	},
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. It must not write to stdout when serving stdio.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates an MCP server over backend.
func NewServer(backend Backend, cfg *config.Config, opts ...Option) (*Server, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		backend: backend,
		config:    cfg,
		logger:    slog.Default(),
		published: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{Name: version.Name, Version: version.Version}, nil)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return version.Name, version.Version
}

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

// CallTool invokes a tool by name. search returns markdown; index_status
// returns *IndexStatusOutput.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolSearch:
		input := SearchInput{}
		if q, ok := args["query"].(string); ok {
			input.Query = q
		}
		if k, ok := args["top_k"].(float64); ok {
			input.TopK = int(k)
		}
		_, md, err := s.search(ctx, input)
		return md, err
	case ToolIndexStatus:
		return s.indexStatus(ctx)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

// search runs the search tool and returns both renderings.
func (s *Server) search(ctx context.Context, input SearchInput) (SearchOutput, string, error) {
	defaultK := s.config.Search.TopK
	if defaultK <= 0 {
		defaultK = DefaultTopK
	}
	topK := clampLimit(input.TopK, defaultK, 1, MaxTopK)

	start := time.Now()
	requestID := generateRequestID()
	s.logger.Info("mcp_search_started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.Int("top_k", topK))

	results, err := s.backend.Search(ctx, input.Query, topK)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("mcp_search_failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return SearchOutput{}, "", MapError(err)
	}

	s.logger.Info("mcp_search_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)))

	out := SearchOutput{Query: input.Query, Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, ToSearchResultOutput(r))
	}
	return out, FormatSearchResults(input.Query, results), nil
}

func (s *Server) indexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	st, err := s.backend.Status(ctx)
	if err != nil {
		return nil, MapError(err)
	}

	out := &IndexStatusOutput{
		Corpus: CorpusInfo{
			Dir:       st.CorpusDir,
			DataDir:   st.DataDir,
			Documents: st.Sources,
			Passages:  st.Passages,
			Vectors:   st.Vectors,
		},
		Embeddings: embeddingInfo(s.config, st.Embedder),
		Retrieval: RetrievalInfo{
			Alpha:          st.Retriever.Alpha,
			Fusion:         st.Retriever.Fusion,
			LexicalBackend: st.LexicalEngine,
			VectorEnabled:  st.Retriever.VectorEnabled,
			BreakerState:   st.Retriever.BreakerState,
			Generation:     st.Retriever.Generation,
		},
	}
	if !st.IndexedAt.IsZero() {
		out.Corpus.LastIndexed = st.IndexedAt.Format(time.RFC3339)
	}
	if st.Consistency != nil {
		out.Consistency = ConsistencyInfo{
			Consistent: st.Consistency.Consistent(),
			Issues:     len(st.Consistency.Inconsistencies),
		}
	}
	return out, nil
}

func embeddingInfo(cfg *config.Config, info embed.EmbedderInfo) EmbeddingInfo {
	out := EmbeddingInfo{
		Provider:       cfg.Embeddings.Provider,
		Model:          cfg.Embeddings.Model,
		ActualProvider: string(info.Provider),
		ActualModel:    info.Model,
		Dimensions:     info.Dimensions,
	}
	switch info.Provider {
	case embed.ProviderNone:
		out.ActualModel = "none"
		out.Status = "disabled"
		out.SemanticQuality = "none"
	case embed.ProviderOllama:
		out.SemanticQuality = "high"
	default:
		out.SemanticQuality = "low"
	}
	if out.Status == "" {
		out.Status = "unavailable"
		if info.Available {
			out.Status = "ready"
		}
	}
	return out
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolSearch, Description: tools[0].Description}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolIndexStatus, Description: tools[1].Description}, s.mcpIndexStatusHandler)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

// mcpSearchHandler returns markdown as text content and the results as
// structured content.
func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	out, md, err := s.search(ctx, input)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: md}},
	}, out, nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	out, err := s.indexStatus(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

// Serve runs the server on the named transport until ctx is cancelled.
// Only stdio is supported.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short id for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
