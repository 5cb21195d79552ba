package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MaxResourceSize is the largest document returned as a resource (1MB).
const MaxResourceSize = 1024 * 1024

// RegisterResources publishes every indexed source document as a file://
// resource and withdraws documents that are no longer indexed. Call it
// before serving and again after each reindex.
func (s *Server) RegisterResources(ctx context.Context) error {
	sources, err := s.backend.Sources(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}

	s.resMu.Lock()
	defer s.resMu.Unlock()

	current := make(map[string]struct{}, len(sources))
	added := 0
	for _, src := range sources {
		current[src] = struct{}{}
		if _, ok := s.published[src]; !ok {
			s.registerFileResource(src)
			added++
		}
	}
	var stale []string
	for src := range s.published {
		if _, ok := current[src]; !ok {
			stale = append(stale, "file://"+src)
		}
	}
	if len(stale) > 0 {
		s.mcp.RemoveResources(stale...)
	}
	s.published = current

	s.logger.Info("mcp_resources_registered",
		slog.Int("count", len(sources)),
		slog.Int("added", added),
		slog.Int("removed", len(stale)))
	return nil
}

func (s *Server) registerFileResource(rel string) {
	uri := "file://" + rel
	desc := rel
	if info, err := os.Stat(filepath.Join(s.backend.CorpusDir(), filepath.FromSlash(rel))); err == nil {
		desc = fmt.Sprintf("%s (%s)", rel, humanSize(info.Size()))
	}
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        filepath.Base(rel),
			URI:         uri,
			Description: desc,
			MIMEType:    MimeTypeForPath(rel),
		},
		func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.readResource(ctx, rel)
		},
	)
}

// readResource returns a document's current content from disk.
func (s *Server) readResource(_ context.Context, rel string) (*mcp.ReadResourceResult, error) {
	if !isValidPath(rel) {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid path: %s", rel))
	}

	full := filepath.Join(s.backend.CorpusDir(), filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MCPError{
				Code:    ErrCodeFileNotFound,
				Message: fmt.Sprintf("file not found: %s", rel),
			}
		}
		return nil, MapError(err)
	}
	if info.Size() > MaxResourceSize {
		return nil, &MCPError{
			Code:    ErrCodeFileTooLarge,
			Message: fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), MaxResourceSize),
		}
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      "file://" + rel,
			MIMEType: MimeTypeForPath(rel),
			Text:     string(content),
		}},
	}, nil
}

// isValidPath rejects absolute paths and any path that climbs out of the
// corpus root.
func isValidPath(path string) bool {
	if path == "" || filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
		return false
	}
	if len(path) >= 2 && path[1] == ':' {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(filepath.Clean(path)), "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

func humanSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
	)
	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
