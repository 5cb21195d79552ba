// Package ingest turns a directory of text files into retrievable passages:
// documents are loaded, cleaned, and chunked, and every chunk receives a
// stable content-derived id.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultMaxFileSize skips files larger than 10 MiB.
const DefaultMaxFileSize int64 = 10 << 20

// DefaultExtensions are the file extensions loaded when none are configured.
var DefaultExtensions = []string{".txt"}

// Document is one loaded source file.
type Document struct {
	// Path is relative to the loaded directory, slash-separated.
	Path string
	Text string
}

// LoadOptions controls directory loading.
type LoadOptions struct {
	Extensions  []string
	MaxFileSize int64

	// SkipDirs are directory paths (absolute or relative to the root)
	// that are never descended into, such as the data directory.
	SkipDirs []string

	// NoIgnoreFiles disables .gitignore and .hybridragignore at the root.
	NoIgnoreFiles bool
}

// LoadDir walks dir and reads every regular file with a matching extension.
// Hidden files and directories, binary files and oversized files are
// skipped, as are paths matched by the root ignore files. Documents are
// returned sorted by path.
func LoadDir(ctx context.Context, dir string, opts LoadOptions) ([]Document, error) {
	absRoot, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat corpus directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus path is not a directory: %s", absRoot)
	}

	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	skip := make(map[string]bool, len(opts.SkipDirs))
	for _, d := range opts.SkipDirs {
		if !filepath.IsAbs(d) {
			d = filepath.Join(absRoot, d)
		}
		skip[filepath.Clean(d)] = true
	}

	var ignore *Ignore
	if !opts.NoIgnoreFiles {
		if ignore, err = LoadIgnore(absRoot); err != nil {
			return nil, err
		}
	}

	docs := make([]Document, 0)
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			return nil // unreadable entries are skipped
		}
		if path == absRoot {
			return nil
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}

		if d.IsDir() {
			if isHidden(d.Name()) || skip[path] || ignore.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || isHidden(d.Name()) || !HasExtension(path, exts) {
			return nil
		}
		if ignore.Match(rel, false) {
			return nil
		}

		fi, err := d.Info()
		if err != nil || fi.Size() > maxSize {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if isBinary(data) {
			return nil
		}

		docs = append(docs, Document{
			Path: filepath.ToSlash(rel),
			Text: strings.TrimSpace(string(data)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

// HasExtension reports whether path ends with one of exts, ignoring case.
func HasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// isBinary looks for a NUL byte in the first 512 bytes.
func isBinary(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.IndexByte(head, 0) >= 0
}
