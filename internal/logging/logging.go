package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum level: debug, info, warn or error.
	Level string
	// FilePath enables file logging with rotation. Empty disables it.
	FilePath string
	// MaxSizeMB is the size at which the file rotates. Default 10.
	MaxSizeMB int
	// MaxFiles is the number of rotated files kept. Default 5.
	MaxFiles int
	// Stderr also writes to stderr.
	Stderr bool
	// Text switches stderr output to slog's text format.
	Text bool
}

// DefaultConfig logs info and above to stderr only.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		MaxSizeMB: 10,
		MaxFiles:  5,
		Stderr:    true,
	}
}

// Setup builds a logger from cfg. The returned cleanup closes the log file
// and is never nil.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	cleanup := func() {}

	var handlers []slog.Handler
	if cfg.FilePath != "" {
		if cfg.MaxSizeMB <= 0 {
			cfg.MaxSizeMB = 10
		}
		if cfg.MaxFiles <= 0 {
			cfg.MaxFiles = 5
		}
		w, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, slog.NewJSONHandler(w, opts))
		cleanup = func() {
			_ = w.Sync()
			_ = w.Close()
		}
	}
	if cfg.Stderr {
		if cfg.Text {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		}
	}

	switch len(handlers) {
	case 0:
		return Discard(), cleanup, nil
	case 1:
		return slog.New(handlers[0]), cleanup, nil
	default:
		return slog.New(fanout(handlers)), cleanup, nil
	}
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ParseLevel maps a level name to slog.Level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
