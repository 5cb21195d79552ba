package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a corpus directory and emits debounced batches of
// relevant file events.
type Watcher struct {
	opts      Options
	filter    filter
	debouncer *Debouncer
	fsWatcher *fsnotify.Watcher
	poller    *PollingWatcher
	logger    *slog.Logger

	batches chan []FileEvent
	errors  chan error
	stopCh  chan struct{}

	mu      sync.RWMutex
	root    string
	stopped bool
	dropped atomic.Uint64
}

// New creates a watcher. fsnotify is used unless it fails to initialise or
// opts.ForcePolling is set.
func New(opts Options, logger *slog.Logger) (*Watcher, error) {
	opts = opts.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		opts:      opts,
		filter:    newFilter(opts),
		debouncer: NewDebouncer(opts.DebounceWindow),
		logger:    logger,
		batches:   make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fsWatcher = fsw
			return w, nil
		}
		logger.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
	}
	w.poller = NewPollingWatcher(opts.PollInterval, opts)
	return w, nil
}

// Start watches root until ctx is cancelled or Stop is called. It blocks.
func (w *Watcher) Start(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: not a directory", root)
	}

	w.mu.Lock()
	w.root = abs
	w.mu.Unlock()

	go w.forward(ctx)

	w.logger.Info("watcher_started", slog.String("root", abs), slog.String("mode", w.Mode()))
	if w.fsWatcher != nil {
		return w.runFsnotify(ctx, abs)
	}
	return w.runPolling(ctx, abs)
}

func (w *Watcher) runFsnotify(ctx context.Context, root string) error {
	if err := w.addRecursive(root); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handle(root, ev)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context, root string) error {
	go func() {
		for ev := range w.poller.Events() {
			w.debouncer.Add(ev)
		}
	}()
	err := w.poller.Start(ctx, root)
	if ctx.Err() != nil {
		_ = w.Stop()
	}
	return err
}

func (w *Watcher) handle(root string, ev fsnotify.Event) {
	rel, err := filepath.Rel(root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}
	if isDir {
		if ev.Op&fsnotify.Create != 0 && !w.filter.skipDir(rel) {
			if err := w.addRecursive(ev.Name); err != nil {
				w.emitError(err)
			}
		}
		return
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&fsnotify.Remove != 0:
		op = OpDelete
	case ev.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	op, ok := w.filter.classify(rel, op)
	if !ok {
		return
	}
	w.debouncer.Add(FileEvent{Path: rel, Operation: op, Timestamp: time.Now()})
}

// addRecursive watches dir and every non-skipped directory below it.
func (w *Watcher) addRecursive(dir string) error {
	w.mu.RLock()
	root := w.root
	w.mu.RUnlock()

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		if w.filter.skipDir(rel) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *Watcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			w.emit(batch)
		}
	}
}

func (w *Watcher) emit(batch []FileEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped || len(batch) == 0 {
		return
	}
	select {
	case w.batches <- batch:
	default:
		n := w.dropped.Add(1)
		w.logger.Warn("watch_batch_dropped",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("total_dropped", n))
	}
}

func (w *Watcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Stop releases resources and closes Events and Errors. Safe to call more
// than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	if w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
	if w.poller != nil {
		_ = w.poller.Stop()
	}
	close(w.batches)
	close(w.errors)
	return nil
}

// Events returns debounced batches, each sorted by path.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.batches
}

// Errors returns non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Mode reports "fsnotify" or "polling".
func (w *Watcher) Mode() string {
	if w.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}

// DroppedBatches returns how many batches were dropped on a full buffer.
func (w *Watcher) DroppedBatches() uint64 {
	return w.dropped.Load()
}
