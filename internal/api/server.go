// Package api serves the hybrid retriever over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	herrors "github.com/Aman-CERP/hybridrag/internal/errors"
	"github.com/Aman-CERP/hybridrag/internal/search"
	"github.com/Aman-CERP/hybridrag/pkg/version"
)

// Defaults for the HTTP adapter.
const (
	DefaultTopK     = 5
	MaxTopK         = 50
	maxRequestBytes = 64 * 1024
	shutdownTimeout = 5 * time.Second
)

// Searcher is the part of the index service the API calls.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]search.Result, error)
}

// SearchRequest is the body of POST /v1/search.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// SearchResponse is returned by POST /v1/search.
type SearchResponse struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
	TookMS  float64         `json:"took_ms"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Server routes HTTP requests to a Searcher.
type Server struct {
	searcher    Searcher
	metrics     *Metrics
	logger      *slog.Logger
	defaultTopK int
	router      chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics enables GET /metrics and request instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithDefaultTopK sets top_k for requests that omit it.
func WithDefaultTopK(k int) Option {
	return func(s *Server) {
		if k > 0 {
			s.defaultTopK = k
		}
	}
}

// NewServer builds the router.
func NewServer(searcher Searcher, opts ...Option) (*Server, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}
	s := &Server{
		searcher:    searcher,
		logger:      slog.Default(),
		defaultTopK: DefaultTopK,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)
	if s.metrics != nil {
		r.Use(s.metricsMiddleware)
	}

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	}
	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Code: "NOT_FOUND", Message: "no such endpoint"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return herrors.NetworkError(fmt.Sprintf("cannot listen on %s", addr), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http_server_started", slog.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("http_server_stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Code:    herrors.ErrCodeInvalidInput,
			Message: fmt.Sprintf("invalid request body: %v", err),
		})
		return
	}
	if req.TopK < 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Code:    herrors.ErrCodeInvalidTopK,
			Message: "top_k must be positive",
		})
		return
	}
	topK := req.TopK
	if topK == 0 {
		topK = s.defaultTopK
	}
	topK = min(topK, MaxTopK)

	start := time.Now()
	results, err := s.searcher.Search(r.Context(), req.Query, topK)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if results == nil {
		results = []search.Result{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{
		Query:   req.Query,
		Results: results,
		TookMS:  float64(time.Since(start).Microseconds()) / 1000,
	})
}

// writeError maps an error to a status code by its category.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case herrors.GetCode(err) == herrors.ErrCodeIndexLocked:
		status = http.StatusServiceUnavailable
	case herrors.IsConfigError(err):
		status = http.StatusBadRequest
	case herrors.GetCategory(err) == herrors.CategoryNetwork:
		status = http.StatusServiceUnavailable
	}

	resp := ErrorResponse{Code: herrors.GetCode(err), Message: err.Error()}
	var he *herrors.HybridError
	if errors.As(err, &he) {
		resp.Message = he.Message
		resp.Suggestion = he.Suggestion
	}
	if resp.Code == "" {
		resp.Code = herrors.ErrCodeInternal
	}
	if status >= http.StatusInternalServerError {
		s.logger.LogAttrs(context.Background(), slog.LevelError, "http_search_failed", herrors.LogAttrs(err)...)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
