package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirName is the per-project state directory holding config, logs,
// evidence and the journal database.
const DirName = ".gridpilot"

// HomeEnv overrides the state directory location.
const HomeEnv = "GRIDPILOT_HOME"

// GetHome returns the gridpilot state directory.
// Priority order:
//  1. GRIDPILOT_HOME environment variable (if set)
//  2. .gridpilot in the current working directory
//
// The directory is created if it doesn't exist
func GetHome() (string, error) {
	home := os.Getenv(HomeEnv)
	if home == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		home = filepath.Join(cwd, DirName)
	}

	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("create gridpilot home directory: %w", err)
	}
	return home, nil
}

// ResolvePaths rewrites the relative default locations (".gridpilot/...")
// to live under home, so GRIDPILOT_HOME moves all state at once. Paths the
// user configured elsewhere are left alone.
func (c *Config) ResolvePaths(home string) {
	rebase := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		rel, err := filepath.Rel(DirName, p)
		if err != nil || strings.HasPrefix(rel, "..") {
			return p
		}
		return filepath.Join(home, rel)
	}
	c.LogDir = rebase(c.LogDir)
	c.EvidenceDir = rebase(c.EvidenceDir)
	c.Journal.DBPath = rebase(c.Journal.DBPath)
	c.Journal.ExportPath = rebase(c.Journal.ExportPath)
}
