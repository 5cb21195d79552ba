package mcp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "github.com/Aman-CERP/hybridrag/internal/errors"
)

func TestMapError_NilError(t *testing.T) {
	// Given: nil error
	// When: mapping the error
	result := MapError(nil)

	// Then: returns nil
	assert.Nil(t, result)
}

func TestMapError_Sentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     int
		contains string
	}{
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout, "timed out"},
		{"canceled", context.Canceled, ErrCodeTimeout, "canceled"},
		{"missing file", fmt.Errorf("read: %w", fs.ErrNotExist), ErrCodeFileNotFound, "no longer exists"},
		{"unknown", errors.New("boom"), ErrCodeInternalError, "Internal server error"},
		{"wrapped deadline", fmt.Errorf("search: %w", context.DeadlineExceeded), ErrCodeTimeout, "timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When: mapping the error
			result := MapError(tt.err)

			// Then: code and message match
			require.NotNil(t, result)
			assert.Equal(t, tt.code, result.Code)
			assert.Contains(t, result.Message, tt.contains)
		})
	}
}

func TestMapError_PassesThroughMCPError(t *testing.T) {
	// Given: an MCP error wrapped once
	orig := NewInvalidParamsError("query is blank")
	err := fmt.Errorf("tool: %w", orig)

	// When: mapping the error
	result := MapError(err)

	// Then: the original is returned
	assert.Same(t, orig, result)
}

func TestMapError_HybridErrors(t *testing.T) {
	tests := []struct {
		name string
		err  *herrors.HybridError
		code int
	}{
		{"locked", herrors.New(herrors.ErrCodeIndexLocked, "index is locked", nil), ErrCodeIndexLocked},
		{"corpus missing", herrors.New(herrors.ErrCodeCorpusNotFound, "corpus not found", nil), ErrCodeIndexNotFound},
		{"corrupt", herrors.New(herrors.ErrCodeCorruptIndex, "bad index", nil), ErrCodeIndexNotFound},
		{"embedding", herrors.New(herrors.ErrCodeEmbeddingFailed, "embed failed", nil), ErrCodeEmbeddingFailed},
		{"embedder down", herrors.New(herrors.ErrCodeEmbedderUnavailable, "ollama down", nil), ErrCodeEmbeddingFailed},
		{"network", herrors.New(herrors.ErrCodeNetworkTimeout, "slow", nil), ErrCodeTimeout},
		{"validation", herrors.New(herrors.ErrCodeInvalidTopK, "k must be positive", nil), ErrCodeInvalidParams},
		{"internal", herrors.New(herrors.ErrCodeSearchFailed, "search failed", nil), ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When: mapping a wrapped hybrid error
			result := MapError(fmt.Errorf("outer: %w", tt.err))

			// Then: the code follows the error code or category
			require.NotNil(t, result)
			assert.Equal(t, tt.code, result.Code)
			assert.Contains(t, result.Message, tt.err.Message)
		})
	}
}

func TestMapError_HybridErrorSuggestion(t *testing.T) {
	// Given: a hybrid error with a suggestion
	err := herrors.New(herrors.ErrCodeIndexLocked, "index is locked", nil).
		WithSuggestion("Wait for the running index to finish")

	// When: mapping the error
	result := MapError(err)

	// Then: the suggestion is appended
	assert.Equal(t, "index is locked. Wait for the running index to finish", result.Message)
}

func TestMCPError_Error(t *testing.T) {
	// Given: an MCP error
	err := &MCPError{Code: ErrCodeTimeout, Message: "slow"}

	// Then: the string carries code and message
	assert.Equal(t, "MCP error -32003: slow", err.Error())
}

func TestErrorConstructors(t *testing.T) {
	assert.Equal(t, ErrCodeInvalidParams, NewInvalidParamsError("x").Code)

	notFound := NewMethodNotFoundError("grep")
	assert.Equal(t, ErrCodeMethodNotFound, notFound.Code)
	assert.Contains(t, notFound.Message, "grep")
}
