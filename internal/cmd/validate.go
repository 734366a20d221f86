package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/gridpilot/internal/fileutil"
	"github.com/harrison/gridpilot/internal/models"
	"github.com/harrison/gridpilot/internal/parser"
)

// NewValidateCommand creates and returns the validate subcommand
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <plan-file|dir>...",
		Short: "Validate one or more plan files",
		Long: `Parse and validate plan files, checking for:
  - Steps with a supported action and the fields it needs
  - Duplicate step ids
  - Dependencies that point to unknown steps or to the step itself
  - Circular dependencies

Directories are searched recursively for .md, .yaml, .yml and .json plans.
Valid plans are printed with the levels their steps run in.

With --watch the files are validated again whenever they change, until the
command is interrupted.

Exit code: 0 if valid, 1 if errors found`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := fileutil.ExpandPlanPaths(args)
			if err != nil {
				return err
			}
			watch, _ := cmd.Flags().GetBool("watch")
			if !watch {
				return validatePlanFiles(paths, cmd.OutOrStdout())
			}
			return watchPlanFiles(commandContext(cmd), paths, cmd.OutOrStdout(), parser.DefaultDebounceDelay)
		},
	}

	cmd.Flags().BoolP("watch", "w", false, "Validate again whenever a plan file changes")

	return cmd
}

// watchPlanFiles validates the files once and again after every change.
// Validation failures are reported, not returned; it returns when ctx ends.
func watchPlanFiles(ctx context.Context, paths []string, output io.Writer, debounce time.Duration) error {
	watcher, err := parser.NewPlanWatcher(paths, debounce)
	if err != nil {
		return fmt.Errorf("failed to watch plan files: %w", err)
	}
	defer watcher.Close()

	report := func() {
		if err := validatePlanFiles(paths, output); err != nil {
			color.New(color.FgRed).Fprintf(output, "%v\n", err)
		}
		fmt.Fprintf(output, "\nWatching %d plan file(s) for changes...\n", len(paths))
	}
	report()

	for {
		select {
		case <-ctx.Done():
			return nil
		case path := <-watcher.Changes():
			fmt.Fprintf(output, "\n--- %s changed at %s ---\n", path, time.Now().Format("15:04:05"))
			report()
		case err := <-watcher.Errors():
			fmt.Fprintf(output, "watch error: %v\n", err)
		}
	}
}

// validatePlanFiles validates each file and reports every problem before
// failing.
func validatePlanFiles(paths []string, output io.Writer) error {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	invalid := 0
	for i, path := range paths {
		if i > 0 {
			fmt.Fprintln(output)
		}
		plan, err := parser.ParseFile(path)
		if err == nil {
			err = printPlan(output, plan)
		}
		if err != nil {
			invalid++
			red.Fprintf(output, "✗ %s: %s\n", path, describeValidation(err))
			continue
		}
		green.Fprintf(output, "✓ %s is valid\n", path)
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d plan file(s) invalid", invalid, len(paths))
	}
	return nil
}

func describeValidation(err error) string {
	if models.IsDependencyError(err) {
		return "dependency problem: " + err.Error()
	}
	return err.Error()
}
