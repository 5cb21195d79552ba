package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hybridrag/internal/config"
	herrors "github.com/Aman-CERP/hybridrag/internal/errors"
	"github.com/Aman-CERP/hybridrag/internal/preflight"
)

func TestDoctorCmd_BeforeAndAfterIndex(t *testing.T) {
	// Given: a corpus that was never indexed
	dir := testCorpus(t)

	// When: running doctor
	out, err := run(t, "doctor", "-C", dir)

	// Then: it passes with a warning about the missing index
	require.NoError(t, err)
	assert.Contains(t, out, "3 documents")
	assert.Contains(t, out, "not indexed")
	assert.Contains(t, out, "READY_WITH_WARNINGS")

	// And after indexing the index check passes
	_, err = run(t, "index", "-C", dir, "--json")
	require.NoError(t, err)
	out, err = run(t, "doctor", "-C", dir, "--json")
	require.NoError(t, err)

	var report struct {
		Results []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	statuses := map[string]string{}
	for _, r := range report.Results {
		statuses[r.Name] = r.Status
	}
	assert.Equal(t, preflight.StatusPass.String(), statuses["index"])
	assert.Equal(t, preflight.StatusPass.String(), statuses["corpus"])
}

func TestDoctorCmd_InvalidConfigFails(t *testing.T) {
	// Given: a project config with an out-of-range alpha
	dir := testCorpus(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ProjectConfigName),
		[]byte("search:\n  alpha: 3\n"), 0o644))

	// When: running doctor
	out, err := run(t, "doctor", "-C", dir)

	// Then: the config check is reported and the command fails
	require.Error(t, err)
	assert.Equal(t, herrors.ErrCodeConfigInvalid, herrors.GetCode(err))
	assert.Contains(t, out, "config")
	assert.Contains(t, out, "FAILED")
}
