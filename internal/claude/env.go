// Package claude provides utilities for invoking Claude CLI.
package claude

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// cleanTmpDir is the dedicated temp directory for Claude CLI invocations and
// for screenshots handed to the CLI by path.
var cleanTmpDir = filepath.Join(os.TempDir(), "gridpilot-claude")

// SetCleanEnv configures a command to use a clean TMPDIR.
func SetCleanEnv(cmd *exec.Cmd) {
	_ = os.MkdirAll(cleanTmpDir, 0755)
	cmd.Env = os.Environ()

	found := false
	for i, env := range cmd.Env {
		if strings.HasPrefix(env, "TMPDIR=") {
			cmd.Env[i] = "TMPDIR=" + cleanTmpDir
			found = true
			break
		}
	}
	if !found {
		cmd.Env = append(cmd.Env, "TMPDIR="+cleanTmpDir)
	}
}

// GetCleanTmpDir returns the clean temp directory path for Claude CLI.
func GetCleanTmpDir() string {
	return cleanTmpDir
}
