package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 60, cfg.GridSize)
	assert.Equal(t, 0.8, cfg.ConfidenceThreshold)
	assert.Equal(t, 2, cfg.MaxRefinementDepth)
	assert.Equal(t, 30*time.Second, cfg.StepTimeout)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 1, cfg.MaxConcurrency)
	assert.True(t, cfg.Headless)
	assert.True(t, cfg.ReplayCache)
	assert.Equal(t, 30*time.Minute, cfg.RunTimeout)
	assert.Equal(t, 3, cfg.DriverErrorThreshold)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, filepath.Join(".gridpilot", "logs"), cfg.LogDir)
	assert.True(t, cfg.Journal.Persist)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
grid_size: 40
step_timeout: 45s
headless: false
reasoning:
  model: sonnet
browser:
  viewport_width: 1920
journal:
  persist: false
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 40, cfg.GridSize)
	assert.Equal(t, 45*time.Second, cfg.StepTimeout)
	assert.False(t, cfg.Headless)
	assert.Equal(t, "sonnet", cfg.Reasoning.Model)
	assert.Equal(t, 1920, cfg.Browser.ViewportWidth)
	assert.False(t, cfg.Journal.Persist)

	// untouched keys keep defaults, including siblings inside nested sections
	assert.Equal(t, 0.8, cfg.ConfidenceThreshold)
	assert.Equal(t, "claude", cfg.Reasoning.ClaudePath)
	assert.Equal(t, 800, cfg.Browser.ViewportHeight)
	assert.Equal(t, filepath.Join(".gridpilot", "journal.db"), cfg.Journal.DBPath)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "grid_size: [1,\n"},
		{"unknown key", "gird_size: 10\n"},
		{"bad duration", "step_timeout: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, DirName), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DirName, "config.yaml"), []byte("max_retries: 5\n"), 0644))

	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxRetries)
}

func TestMergeWithFlags(t *testing.T) {
	cfg := DefaultConfig()
	grid := 30
	threshold := 0.9
	timeout := 5 * time.Second
	headless := false
	level := "debug"
	dbPath := "/tmp/j.db"

	cfg.MergeWithFlags(FlagOverrides{
		GridSize:            &grid,
		ConfidenceThreshold: &threshold,
		StepTimeout:         &timeout,
		Headless:            &headless,
		LogLevel:            &level,
		JournalDBPath:       &dbPath,
	})

	assert.Equal(t, 30, cfg.GridSize)
	assert.Equal(t, 0.9, cfg.ConfidenceThreshold)
	assert.Equal(t, 5*time.Second, cfg.StepTimeout)
	assert.False(t, cfg.Headless)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/j.db", cfg.Journal.DBPath)

	// nil flags leave values alone
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.True(t, cfg.ReplayCache)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"grid too small", func(c *Config) { c.GridSize = 1 }},
		{"threshold above one", func(c *Config) { c.ConfidenceThreshold = 1.5 }},
		{"negative depth", func(c *Config) { c.MaxRefinementDepth = -1 }},
		{"depth past cap", func(c *Config) { c.MaxRefinementDepth = 9 }},
		{"negative step timeout", func(c *Config) { c.StepTimeout = -time.Second }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
		{"negative concurrency", func(c *Config) { c.MaxConcurrency = -2 }},
		{"negative run timeout", func(c *Config) { c.RunTimeout = -time.Minute }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"negative viewport", func(c *Config) { c.Browser.ViewportWidth = -1 }},
		{"negative rate", func(c *Config) { c.Reasoning.RequestsPerMinute = -1 }},
		{"persist without db", func(c *Config) { c.Journal.DBPath = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.Journal.Persist = false
	cfg.Journal.DBPath = ""
	assert.NoError(t, cfg.Validate(), "db path only matters when persisting")
}

func TestToExecutorConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Headless = false
	cfg.Browser.ChromePath = "/opt/chrome"
	cfg.Browser.UserAgent = "gridpilot-test"

	ec := cfg.ToExecutorConfig()
	assert.Equal(t, cfg.GridSize, ec.GridSize)
	assert.Equal(t, cfg.RunTimeout, ec.RunTimeout)
	assert.False(t, ec.Headless)
	assert.False(t, ec.Browser.Headless)
	assert.Equal(t, "/opt/chrome", ec.Browser.ExecPath)
	assert.Equal(t, "gridpilot-test", ec.Browser.UserAgent)
	assert.Equal(t, 1280, ec.Browser.ViewportWidth)
	assert.NoError(t, ec.Validate())
}
