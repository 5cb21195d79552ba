// Package watcher reports changes to corpus files so the index can be
// rebuilt. fsnotify is used when available with polling as a fallback.
// Events are debounced and filtered to the configured extensions, so a burst
// of saves yields one batch.
package watcher
