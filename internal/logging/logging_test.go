package logging

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestSetup_FileOnly(t *testing.T) {
	// Given: file logging at warn without stderr
	path := filepath.Join(t.TempDir(), "logs", LogFileName)

	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: path})
	require.NoError(t, err)

	// When: logging below and at the threshold
	logger.Info("search_completed")
	logger.Warn("vector_search_degraded", slog.String("breaker", "open"))
	cleanup()

	// Then: only the warning is written as JSON
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	e := ParseLine(lines[0])
	assert.True(t, e.Valid)
	assert.Equal(t, "WARN", e.Level)
	assert.Equal(t, "vector_search_degraded", e.Msg)
	assert.Equal(t, "open", e.Attrs["breaker"])
}

func TestSetup_NoOutputsDiscards(t *testing.T) {
	logger, cleanup, err := Setup(Config{})
	require.NoError(t, err)
	defer cleanup()

	assert.False(t, logger.Enabled(context.Background(), slog.LevelError))
}

func TestSetup_BadPath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, _, err := Setup(Config{FilePath: filepath.Join(blocker, "sub", "x.log")})

	assert.Error(t, err)
}

func TestFanout_SendsToEveryEnabledHandler(t *testing.T) {
	var debugBuf, errorBuf bytes.Buffer
	h := fanout{
		slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewJSONHandler(&errorBuf, &slog.HandlerOptions{Level: slog.LevelError}),
	}
	logger := slog.New(h).With(slog.String("component", "retriever"))

	logger.Debug("search_completed")
	logger.Error("index_failed")

	assert.Equal(t, 2, strings.Count(debugBuf.String(), "\n"))
	assert.Equal(t, 1, strings.Count(errorBuf.String(), "\n"))
	assert.Contains(t, errorBuf.String(), `"component":"retriever"`)
}

func TestLogPathAndFind(t *testing.T) {
	dataDir := t.TempDir()
	assert.Equal(t, filepath.Join(dataDir, "logs", "hybridrag.log"), LogPath(dataDir))

	_, err := FindLogFile("", dataDir)
	assert.Error(t, err)

	require.NoError(t, os.MkdirAll(filepath.Dir(LogPath(dataDir)), 0o755))
	require.NoError(t, os.WriteFile(LogPath(dataDir), nil, 0o644))
	got, err := FindLogFile("", dataDir)
	require.NoError(t, err)
	assert.Equal(t, LogPath(dataDir), got)

	_, err = FindLogFile(filepath.Join(dataDir, "other.log"), dataDir)
	assert.Error(t, err)
}

// =============================================================================
// RotatingWriter
// =============================================================================

func TestRotatingWriter_Rotation(t *testing.T) {
	// Given: a 1 MB limit with two rotated files kept
	path := filepath.Join(t.TempDir(), "app.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	// When: writing a bit over 3 MB
	line := []byte(strings.Repeat("x", 1023) + "\n")
	for i := 0; i < 3*1024+10; i++ {
		_, err := w.Write(line)
		require.NoError(t, err)
	}

	// Then: the current file and exactly two rotated files exist
	for _, p := range []string{path, path + ".1", path + ".2"} {
		info, err := os.Stat(p)
		require.NoError(t, err, p)
		assert.LessOrEqual(t, info.Size(), int64(1024*1024), p)
	}
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err))
}

func TestRotatingWriter_AppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	w, err := NewRotatingWriter(path, 1, 1)
	require.NoError(t, err)
	_, err = w.Write([]byte("new\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(data))
}

func TestRotatingWriter_CloseIsIdempotent(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "app.log"), 1, 1)
	require.NoError(t, err)

	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	require.NoError(t, w.Sync())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	w, err := NewRotatingWriter(path, 1, 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = fmt.Fprintf(w, "g%d-%d\n", g, i)
			}
		}(g)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 400, strings.Count(string(data), "\n"))
}

// =============================================================================
// Viewer
// =============================================================================

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), LogFileName)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

const (
	infoLine  = `{"time":"2026-01-02T10:11:12.123Z","level":"INFO","msg":"index_completed","passages":12}`
	warnLine  = `{"time":"2026-01-02T10:11:13.000Z","level":"WARN","msg":"vector_search_degraded","breaker":"open"}`
	debugLine = `{"time":"2026-01-02T10:11:14.000Z","level":"DEBUG","msg":"search_completed"}`
)

func TestParseLine(t *testing.T) {
	e := ParseLine(infoLine)

	assert.True(t, e.Valid)
	assert.Equal(t, "INFO", e.Level)
	assert.Equal(t, "index_completed", e.Msg)
	assert.Equal(t, float64(12), e.Attrs["passages"])
	assert.Equal(t, 123*time.Millisecond, time.Duration(e.Time.Nanosecond()))

	bad := ParseLine("plain text")
	assert.False(t, bad.Valid)
	assert.Equal(t, "plain text", bad.Raw)
}

func TestViewer_TailFilters(t *testing.T) {
	path := writeLog(t, infoLine, warnLine, debugLine)

	all, err := NewViewer(ViewerConfig{}, nil).Tail(path, 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "vector_search_degraded", all[0].Msg)

	warn, err := NewViewer(ViewerConfig{Level: "warn"}, nil).Tail(path, 0)
	require.NoError(t, err)
	require.Len(t, warn, 1)
	assert.Equal(t, "WARN", warn[0].Level)

	pat, err := NewViewer(ViewerConfig{Pattern: regexp.MustCompile(`index_`)}, nil).Tail(path, 0)
	require.NoError(t, err)
	require.Len(t, pat, 1)

	_, err = NewViewer(ViewerConfig{}, nil).Tail(filepath.Join(t.TempDir(), "none.log"), 5)
	assert.Error(t, err)
}

func TestViewer_FormatAndPrint(t *testing.T) {
	var out bytes.Buffer
	v := NewViewer(ViewerConfig{NoColor: true}, &out)

	v.Print([]Entry{ParseLine(warnLine), ParseLine("not json")})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "WARN  vector_search_degraded breaker=open"), lines[0])
	assert.Equal(t, "not json", lines[1])
}

func TestViewer_Follow(t *testing.T) {
	// Given: a log file being followed
	path := writeLog(t, infoLine)
	v := NewViewer(ViewerConfig{Level: "warn"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entries := make(chan Entry, 4)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, entries) }()
	time.Sleep(150 * time.Millisecond)

	// When: new lines are appended
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(debugLine + "\n" + warnLine + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Then: only the matching new entry arrives
	select {
	case e := <-entries:
		assert.Equal(t, "vector_search_degraded", e.Msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no entry received")
	}
	cancel()
	assert.NoError(t, <-done)
}
