package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nonEmpty(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestStart_AllProfiles(t *testing.T) {
	// Given all three outputs requested
	dir := t.TempDir()
	opts := Options{
		CPU:   filepath.Join(dir, "cpu.prof"),
		Heap:  filepath.Join(dir, "heap.prof"),
		Trace: filepath.Join(dir, "trace.out"),
	}
	require.True(t, opts.Enabled())

	// When a run starts, does some work and stops
	run, err := Start(opts)
	require.NoError(t, err)
	sum := 0
	for i := 0; i < 1_000_000; i++ {
		sum += i
	}
	_ = sum
	require.NoError(t, run.Stop())

	// Then every file has content
	nonEmpty(t, opts.CPU)
	nonEmpty(t, opts.Heap)
	nonEmpty(t, opts.Trace)
}

func TestStop_Idempotent(t *testing.T) {
	run, err := Start(Options{Heap: filepath.Join(t.TempDir(), "heap.prof")})
	require.NoError(t, err)
	require.NoError(t, run.Stop())
	assert.NoError(t, run.Stop())

	var nilRun *Run
	assert.NoError(t, nilRun.Stop())
}

func TestStart_Disabled(t *testing.T) {
	opts := Options{}
	assert.False(t, opts.Enabled())

	run, err := Start(opts)
	require.NoError(t, err)
	assert.NoError(t, run.Stop())
}

func TestStart_BadPath(t *testing.T) {
	_, err := Start(Options{CPU: filepath.Join(t.TempDir(), "missing", "cpu.prof")})
	assert.Error(t, err)
}

func TestStop_BadHeapPath(t *testing.T) {
	run, err := Start(Options{Heap: filepath.Join(t.TempDir(), "missing", "heap.prof")})
	require.NoError(t, err)
	assert.Error(t, run.Stop())
}

func TestHeapInUse(t *testing.T) {
	assert.Greater(t, HeapInUse(), uint64(0))
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KB"},
		{3 * 1024 * 1024, "3.00 MB"},
		{5 * 1024 * 1024 * 1024, "5.00 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in))
	}
}
