// Package mcp exposes the hybrid retriever to AI clients over the Model
// Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	herrors "github.com/Aman-CERP/hybridrag/internal/errors"
)

// JSON-RPC error codes. The -320xx range is application defined.
const (
	ErrCodeIndexNotFound   = -32001
	ErrCodeEmbeddingFailed = -32002
	ErrCodeTimeout         = -32003
	ErrCodeFileNotFound    = -32004
	ErrCodeFileTooLarge    = -32005
	ErrCodeIndexLocked     = -32006

	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError is the error a tool or resource handler returns to the client.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// codeByHybridCode maps application error codes that clients can act on.
var codeByHybridCode = map[string]int{
	herrors.ErrCodeIndexLocked:         ErrCodeIndexLocked,
	herrors.ErrCodeCorpusNotFound:      ErrCodeIndexNotFound,
	herrors.ErrCodeCorruptIndex:        ErrCodeIndexNotFound,
	herrors.ErrCodeEmbeddingFailed:     ErrCodeEmbeddingFailed,
	herrors.ErrCodeEmbedderUnavailable: ErrCodeEmbeddingFailed,
}

// codeByCategory is consulted when the code itself has no mapping.
var codeByCategory = map[herrors.Category]int{
	herrors.CategoryNetwork:    ErrCodeTimeout,
	herrors.CategoryValidation: ErrCodeInvalidParams,
}

// MapError converts an error from the index into an MCPError. Hybrid
// errors keep their message and suggestion; anything unrecognised becomes
// a generic internal error so internals are not leaked to clients.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var he *herrors.HybridError
	if errors.As(err, &he) {
		msg := he.Message
		if he.Suggestion != "" {
			msg += ". " + he.Suggestion
		}
		code, ok := codeByHybridCode[he.Code]
		if !ok {
			if code, ok = codeByCategory[he.Category]; !ok {
				code = ErrCodeInternalError
			}
		}
		return &MCPError{Code: code, Message: msg}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, fs.ErrNotExist):
		return &MCPError{Code: ErrCodeFileNotFound, Message: "Document no longer exists on disk."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError reports bad tool arguments.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError reports an unknown tool.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}
