package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHome_FromEnv(t *testing.T) {
	want := filepath.Join(t.TempDir(), "state")
	t.Setenv(HomeEnv, want)

	home, err := GetHome()
	require.NoError(t, err)
	assert.Equal(t, want, home)

	info, err := os.Stat(home)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestGetHome_DefaultsToWorkingDirectory(t *testing.T) {
	t.Setenv(HomeEnv, "")
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	home, err := GetHome()
	require.NoError(t, err)
	assert.Equal(t, DirName, filepath.Base(home))
}

func TestResolvePaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EvidenceDir = "/var/evidence"
	cfg.Journal.ExportPath = "exports/journal.jsonl"

	cfg.ResolvePaths("/srv/gp")

	assert.Equal(t, filepath.Join("/srv/gp", "logs"), cfg.LogDir)
	assert.Equal(t, filepath.Join("/srv/gp", "journal.db"), cfg.Journal.DBPath)
	assert.Equal(t, "/var/evidence", cfg.EvidenceDir, "absolute paths are kept")
	assert.Equal(t, "exports/journal.jsonl", cfg.Journal.ExportPath, "paths outside the state dir are kept")
}
