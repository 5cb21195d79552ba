package watcher

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/hybridrag/internal/ingest"
)

// Operation is a file system operation type.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
	// OpConfigChange reports an edit to the project config file.
	OpConfigChange
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	case OpConfigChange:
		return "CONFIG_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change, relative to the watched root with slash
// separators.
type FileEvent struct {
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// ConfigFiles are reported as OpConfigChange regardless of Extensions. Ignore
// files count, since they change what gets loaded.
var ConfigFiles = []string{".hybridrag.yaml", ".hybridrag.yml", ".hybridragignore", ".gitignore"}

// Options configures a Watcher.
type Options struct {
	// DebounceWindow is the quiet period before a batch is emitted.
	DebounceWindow time.Duration
	// PollInterval is the scan interval in polling mode.
	PollInterval time.Duration
	// EventBufferSize bounds the batch channel.
	EventBufferSize int
	// Extensions limits file events to these suffixes. Empty means
	// ingest.DefaultExtensions.
	Extensions []string
	// SkipDirs are relative directories never watched, typically the data
	// directory.
	SkipDirs []string
	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 100,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = d.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	if len(o.Extensions) == 0 {
		o.Extensions = ingest.DefaultExtensions
	}
	return o
}

// filter decides which paths matter. It mirrors ingest.LoadDir so the
// watcher never fires for a file the loader would skip.
type filter struct {
	extensions []string
	skip       map[string]bool
}

func newFilter(o Options) filter {
	f := filter{extensions: o.Extensions, skip: make(map[string]bool, len(o.SkipDirs))}
	for _, d := range o.SkipDirs {
		f.skip[filepath.ToSlash(filepath.Clean(d))] = true
	}
	return f
}

// skipDir reports whether the directory rel should not be descended.
func (f filter) skipDir(rel string) bool {
	if rel == "." || rel == "" {
		return false
	}
	rel = filepath.ToSlash(rel)
	if f.skip[rel] {
		return true
	}
	return hidden(rel)
}

// classify returns the operation to report for a file event, or false to
// drop it.
func (f filter) classify(rel string, op Operation) (Operation, bool) {
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == "" {
		return 0, false
	}
	for _, name := range ConfigFiles {
		if rel == name {
			return OpConfigChange, true
		}
	}
	if hidden(rel) {
		return 0, false
	}
	if dir := pathDir(rel); dir != "" {
		for d := range f.skip {
			if dir == d || strings.HasPrefix(dir, d+"/") {
				return 0, false
			}
		}
	}
	if !ingest.HasExtension(rel, f.extensions) {
		return 0, false
	}
	return op, true
}

func hidden(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

func pathDir(rel string) string {
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		return rel[:i]
	}
	return ""
}
