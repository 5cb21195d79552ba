package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher detects changes by rescanning the tree every interval.
// It is the fallback when fsnotify cannot be used, for example on network
// mounts.
type PollingWatcher struct {
	interval time.Duration
	filter   filter
	events   chan FileEvent

	mu      sync.Mutex
	state   map[string]fileSnapshot
	stopCh  chan struct{}
	stopped bool
	root    string
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

// NewPollingWatcher creates a polling watcher.
func NewPollingWatcher(interval time.Duration, opts Options) *PollingWatcher {
	opts = opts.WithDefaults()
	return &PollingWatcher{
		interval: interval,
		filter:   newFilter(opts),
		events:   make(chan FileEvent, opts.EventBufferSize),
		state:    make(map[string]fileSnapshot),
		stopCh:   make(chan struct{}),
	}
}

// Start records a baseline then polls until ctx is done or Stop is called.
func (p *PollingWatcher) Start(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	baseline, err := p.snapshot(abs)
	if err != nil {
		return fmt.Errorf("perform initial scan: %w", err)
	}

	p.mu.Lock()
	p.root = abs
	p.state = baseline
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.poll(); err != nil {
				slog.Warn("poll_failed", slog.String("error", err.Error()))
			}
		}
	}
}

// snapshot walks root and returns the state of every relevant file.
func (p *PollingWatcher) snapshot(root string) (map[string]fileSnapshot, error) {
	state := make(map[string]fileSnapshot)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p.filter.skipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := p.filter.classify(rel, OpModify); !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		state[filepath.ToSlash(rel)] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
		return nil
	})
	return state, err
}

func (p *PollingWatcher) poll() error {
	p.mu.Lock()
	root := p.root
	p.mu.Unlock()

	current, err := p.snapshot(root)
	if err != nil {
		return fmt.Errorf("walk directory for changes: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for rel, snap := range current {
		prev, existed := p.state[rel]
		switch {
		case !existed:
			p.emit(rel, OpCreate, now)
		case prev != snap:
			p.emit(rel, OpModify, now)
		}
	}
	for rel := range p.state {
		if _, ok := current[rel]; !ok {
			p.emit(rel, OpDelete, now)
		}
	}
	p.state = current
	return nil
}

// emit must be called with mu held.
func (p *PollingWatcher) emit(rel string, op Operation, at time.Time) {
	if p.stopped {
		return
	}
	op, ok := p.filter.classify(rel, op)
	if !ok {
		return
	}
	select {
	case p.events <- FileEvent{Path: rel, Operation: op, Timestamp: at}:
	default:
		slog.Warn("polling_buffer_full", slog.String("path", rel), slog.String("op", op.String()))
	}
}

// Events returns the channel of raw events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Stop halts polling and closes Events. Safe to call more than once.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	return nil
}
