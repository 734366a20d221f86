package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harrison/gridpilot/internal/config"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// ExitError carries a process exit code out of a command. A nil Err means
// the command already reported the outcome and nothing more is printed.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}

// NewRootCommand creates and returns the root cobra command for gridpilot
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gridpilot",
		Short: "Autonomous browser test execution",
		Long: `gridpilot runs natural-language browser test plans without selectors.

It parses plan files (Markdown, YAML or JSON) or builds a plan from free-form
requirements, schedules the steps by their dependencies, locates every
on-screen target by recursive grid refinement of screenshots, and judges each
action against its expected outcome. Resolved targets are cached in a replay
journal so later runs skip the visual search.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default: .gridpilot/config.yaml)")

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewPlanCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewJournalCommand())

	return cmd
}

// loadConfig reads the config named by --config, or the one in the state
// directory, and rebases the default paths under that directory.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	home, err := config.GetHome()
	if err != nil {
		return nil, err
	}

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = filepath.Join(home, "config.yaml")
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	cfg.ResolvePaths(home)
	return cfg, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
