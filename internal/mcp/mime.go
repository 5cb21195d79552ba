package mcp

import (
	"path/filepath"
	"strings"
)

var mimeTypes = map[string]string{
	".txt":  "text/plain",
	".text": "text/plain",
	".md":   "text/markdown",
	".mdx":  "text/markdown",
	".rst":  "text/x-rst",
	".html": "text/html",
	".htm":  "text/html",
	".csv":  "text/csv",
	".json": "application/json",
	".xml":  "text/xml",
}

// MimeTypeForPath returns the MIME type for a corpus document, defaulting
// to text/plain.
func MimeTypeForPath(path string) string {
	if mime, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	return "text/plain"
}
