package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hybridrag/configs"
	"github.com/Aman-CERP/hybridrag/internal/config"
	herrors "github.com/Aman-CERP/hybridrag/internal/errors"
)

func TestConfigInit_WritesProjectConfig(t *testing.T) {
	// Given: a corpus without config
	dir := testCorpus(t)

	// When: running config init
	out, err := run(t, "config", "init", "-C", dir)

	// Then: the defaults are written and load back
	require.NoError(t, err)
	path := filepath.Join(dir, config.ProjectConfigName)
	assert.FileExists(t, path)
	assert.Contains(t, out, "Wrote")

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, config.NewConfig().Search.Alpha, cfg.Search.Alpha)
}

func TestConfigInit_KeepsExistingWithoutForce(t *testing.T) {
	// Given: an existing project config
	dir := testCorpus(t)
	path := filepath.Join(dir, config.ProjectConfigName)
	require.NoError(t, os.WriteFile(path, []byte("search:\n  alpha: 0.2\n"), 0o644))

	// When: running config init without --force
	out, err := run(t, "config", "init", "-C", dir)

	// Then: the file is untouched
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "search:\n  alpha: 0.2\n", string(data))
}

func TestConfigInit_ForceBacksUp(t *testing.T) {
	// Given: an existing project config
	dir := testCorpus(t)
	path := filepath.Join(dir, config.ProjectConfigName)
	require.NoError(t, os.WriteFile(path, []byte("search:\n  alpha: 0.2\n"), 0o644))

	// When: running config init --force
	out, err := run(t, "config", "init", "-C", dir, "--force")

	// Then: a backup holds the old content and the file has the defaults
	require.NoError(t, err)
	assert.Contains(t, out, "Backed up")
	backups, err := config.ListBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	old, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Contains(t, string(old), "alpha: 0.2")

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, config.NewConfig().Search.Alpha, cfg.Search.Alpha)
}

func TestConfigInit_User(t *testing.T) {
	dir := testCorpus(t)

	_, err := run(t, "config", "init", "--user", "-C", dir)

	require.NoError(t, err)
	assert.True(t, config.UserConfigExists())
	assert.NoFileExists(t, filepath.Join(dir, config.ProjectConfigName))
}

func TestConfigInit_WritesCommentedTemplate(t *testing.T) {
	dir := testCorpus(t)

	_, err := run(t, "config", "init", "-C", dir)

	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, config.ProjectConfigName))
	require.NoError(t, err)
	assert.Equal(t, configs.ProjectConfigTemplate, string(data))
	assert.Contains(t, string(data), "# Weight of the semantic signal")
}

func TestConfigInit_Current(t *testing.T) {
	// Given: an environment override
	dir := testCorpus(t)
	t.Setenv("HYBRIDRAG_ALPHA", "0.3")

	// When: writing the effective configuration
	_, err := run(t, "config", "init", "-C", dir, "--current")
	require.NoError(t, err)

	// Then: the override is persisted to the project file
	data, err := os.ReadFile(filepath.Join(dir, config.ProjectConfigName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "alpha: 0.3")
}

func TestConfigShow(t *testing.T) {
	// Given: a project config overriding alpha
	dir := testCorpus(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ProjectConfigName),
		[]byte("search:\n  alpha: 0.25\n"), 0o644))

	// When: showing the config
	out, err := run(t, "config", "show", "-C", dir)

	// Then: the merged value is printed
	require.NoError(t, err)
	assert.Contains(t, out, "alpha: 0.25")

	out, err = run(t, "config", "show", "-C", dir, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"Alpha": 0.25`)
}

func TestConfigPath(t *testing.T) {
	dir := testCorpus(t)

	out, err := run(t, "config", "path", "-C", dir)

	require.NoError(t, err)
	assert.Contains(t, out, config.GetUserConfigPath()+" (not found)")
	assert.Contains(t, out, filepath.Join(dir, config.ProjectConfigName)+" (not found)")

	_, err = run(t, "config", "init", "-C", dir)
	require.NoError(t, err)
	out, err = run(t, "config", "path", "-C", dir)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, config.ProjectConfigName)+"\n")
}

func TestConfigRestore_UndoesForcedInit(t *testing.T) {
	// Given: a custom config replaced by config init --force
	dir := testCorpus(t)
	path := filepath.Join(dir, config.ProjectConfigName)
	require.NoError(t, os.WriteFile(path, []byte("search:\n  alpha: 0.2\n"), 0o644))
	_, err := run(t, "config", "init", "-C", dir, "--force")
	require.NoError(t, err)

	// When: restoring the newest backup
	out, err := run(t, "config", "restore", "-C", dir)

	// Then: the custom config is back
	require.NoError(t, err)
	assert.Contains(t, out, "Restored")
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, cfg.Search.Alpha, 1e-9)
}

func TestConfigRestore_List(t *testing.T) {
	dir := testCorpus(t)

	out, err := run(t, "config", "restore", "-C", dir, "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "No backups")

	path := filepath.Join(dir, config.ProjectConfigName)
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))
	backup, err := config.BackupFile(path)
	require.NoError(t, err)

	out, err = run(t, "config", "restore", "-C", dir, "--list")
	require.NoError(t, err)
	assert.Contains(t, out, backup)
}

func TestConfigRestore_NoBackups(t *testing.T) {
	dir := testCorpus(t)

	_, err := run(t, "config", "restore", "-C", dir)

	require.Error(t, err)
	assert.Equal(t, herrors.ErrCodeConfigNotFound, herrors.GetCode(err))
}
