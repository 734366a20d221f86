package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/harrison/gridpilot/internal/agent"
	"github.com/harrison/gridpilot/internal/browser"
	"github.com/harrison/gridpilot/internal/claude"
	"github.com/harrison/gridpilot/internal/config"
	"github.com/harrison/gridpilot/internal/executor"
	"github.com/harrison/gridpilot/internal/filelock"
	"github.com/harrison/gridpilot/internal/journal"
	"github.com/harrison/gridpilot/internal/logger"
	"github.com/harrison/gridpilot/internal/models"
	"github.com/harrison/gridpilot/internal/parser"
)

// Exit codes of the run command.
const (
	ExitPassed      = 0
	ExitFailed      = 1
	ExitTimeout     = 2
	ExitInterrupted = 130
)

// reasoner plays every model-backed role of a run.
type reasoner interface {
	agent.Planner
	agent.CellChooser
	agent.Evaluator
}

var (
	// newReasoner builds the model-backed roles from the reasoning config.
	newReasoner = func(cfg *config.Config) reasoner {
		return agent.NewCLIReasoner(newInvoker(cfg))
	}

	// newDriver returns the browser driver for a run. Nil lets the executor
	// start Chrome from the browser config.
	newDriver = func(cfg *config.Config) browser.Driver { return nil }
)

func newInvoker(cfg *config.Config) *claude.Invoker {
	inv := claude.NewInvoker()
	if cfg.Reasoning.ClaudePath != "" {
		inv.ClaudePath = cfg.Reasoning.ClaudePath
	}
	inv.Model = cfg.Reasoning.Model
	inv.Timeout = cfg.Reasoning.Timeout
	inv.Limiter = claude.NewLimiter(cfg.Reasoning.RequestsPerMinute, cfg.Reasoning.Burst)
	return inv
}

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <plan-file>",
		Short: "Execute a test plan in the browser",
		Long: `Execute a test plan against a live browser.

The run command parses the plan file (Markdown, YAML or JSON), checks its
dependencies, and runs every step whose dependencies are satisfied. Targets
are located on screenshots by recursive grid refinement, or replayed from the
journal when the page matches a previous run.

Configuration is loaded from .gridpilot/config.yaml if present.
CLI flags override configuration file settings.

Exit codes:
  0    every required step succeeded
  1    a required step failed or was skipped
  2    the run timeout expired
  130  the run was interrupted

Examples:
  gridpilot run login.md
  gridpilot run checkout.yaml --url https://staging.example.com --report report.json
  gridpilot run plan.yaml --grid-size 8 --max-retries 3 --no-headless
  gridpilot run plan.yaml --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: runCommand,
	}

	f := cmd.Flags()
	f.Bool("dry-run", false, "Validate the plan and show the execution order without running it")
	f.String("url", "", "Start URL, overriding the plan's start_url")
	f.String("report", "", "Write the JSON run report to this path")
	f.Int("grid-size", 0, "Rows and columns of the grid laid over screenshots")
	f.Float64("confidence-threshold", 0, "Chooser confidence that stops grid refinement (0-1)")
	f.Int("max-refinement-depth", 0, "Maximum number of grid refinements")
	f.Duration("step-timeout", 0, "Timeout of one step attempt (e.g. 30s, 0 = none)")
	f.Int("max-retries", 0, "Retries for steps that do not set their own")
	f.Int("max-concurrency", 0, "Maximum steps in flight (0 = unlimited)")
	f.Bool("headless", true, "Run the browser headless")
	f.Bool("no-headless", false, "Show the browser window (overrides config)")
	f.Bool("replay-cache", true, "Replay targets from the journal")
	f.Bool("no-replay-cache", false, "Always resolve targets visually (overrides config)")
	f.Duration("run-timeout", 0, "Timeout of the whole run (e.g. 10m, 0 = none)")
	f.Int("driver-error-threshold", 0, "Consecutive browser failures that abort the run (0 = never)")
	f.String("log-level", "", "Log level: trace, debug, info, warn, error")
	f.String("log-dir", "", "Directory for run logs")
	f.String("evidence-dir", "", "Directory for screenshots")
	f.String("chrome-path", "", "Chrome executable")
	f.String("model", "", "Model used for reasoning")
	f.Bool("journal", true, "Load and save the replay journal")
	f.Bool("no-journal", false, "Do not persist the replay journal (overrides config)")
	f.String("journal-db", "", "Path to the journal database")
	f.Bool("verbose", false, "Shorthand for --log-level debug")

	return cmd
}

// runFlagOverrides collects the flags that were set on the command line.
func runFlagOverrides(cmd *cobra.Command) (config.FlagOverrides, error) {
	f := cmd.Flags()
	var o config.FlagOverrides

	intFlag := func(name string) *int {
		if !f.Changed(name) {
			return nil
		}
		v, _ := f.GetInt(name)
		return &v
	}
	durFlag := func(name string) *time.Duration {
		if !f.Changed(name) {
			return nil
		}
		v, _ := f.GetDuration(name)
		return &v
	}
	strFlag := func(name string) *string {
		if !f.Changed(name) {
			return nil
		}
		v, _ := f.GetString(name)
		return &v
	}
	// boolPair resolves a --x / --no-x pair.
	boolPair := func(name string) (*bool, error) {
		yes, no := f.Changed(name), f.Changed("no-"+name)
		if yes && no {
			return nil, fmt.Errorf("cannot use both --%s and --no-%s", name, name)
		}
		switch {
		case yes:
			v, _ := f.GetBool(name)
			return &v, nil
		case no:
			v, _ := f.GetBool("no-" + name)
			v = !v
			return &v, nil
		}
		return nil, nil
	}

	o.GridSize = intFlag("grid-size")
	if f.Changed("confidence-threshold") {
		v, _ := f.GetFloat64("confidence-threshold")
		o.ConfidenceThreshold = &v
	}
	o.MaxRefinementDepth = intFlag("max-refinement-depth")
	o.StepTimeout = durFlag("step-timeout")
	o.MaxRetries = intFlag("max-retries")
	o.MaxConcurrency = intFlag("max-concurrency")
	o.RunTimeout = durFlag("run-timeout")
	o.DriverErrorThreshold = intFlag("driver-error-threshold")
	o.LogLevel = strFlag("log-level")
	o.LogDir = strFlag("log-dir")
	o.EvidenceDir = strFlag("evidence-dir")
	o.ChromePath = strFlag("chrome-path")
	o.Model = strFlag("model")
	o.JournalDBPath = strFlag("journal-db")

	var err error
	if o.Headless, err = boolPair("headless"); err != nil {
		return o, err
	}
	if o.ReplayCache, err = boolPair("replay-cache"); err != nil {
		return o, err
	}
	if o.JournalPersist, err = boolPair("journal"); err != nil {
		return o, err
	}

	if verbose, _ := f.GetBool("verbose"); verbose && o.LogLevel == nil {
		level := "debug"
		o.LogLevel = &level
	}
	return o, nil
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	overrides, err := runFlagOverrides(cmd)
	if err != nil {
		return err
	}
	cfg.MergeWithFlags(overrides)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	plan, err := parser.ParseFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to load plan file: %w", err)
	}
	if url, _ := cmd.Flags().GetString("url"); url != "" {
		plan.StartURL = url
	}

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		if err := printPlan(out, plan); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nDry-run mode: plan is valid and ready for execution.\n")
		return nil
	}

	runID := uuid.NewString()

	consoleLog := logger.NewConsoleLogger(out, cfg.LogLevel)
	fileLog, err := logger.NewFileLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer fileLog.Close()
	runLog := logger.NewMultiLogger(consoleLog, fileLog)

	evidence, err := executor.NewDirEvidence(cfg.EvidenceDir, runID)
	if err != nil {
		return fmt.Errorf("failed to create evidence directory: %w", err)
	}

	roles := newReasoner(cfg)
	j := journal.New()
	deps := executor.Deps{
		Driver:        newDriver(cfg),
		Chooser:       roles,
		Evaluator:     roles,
		Journal:       j,
		Evidence:      evidence,
		Logger:        runLog,
		RunID:         runID,
		HandleSignals: true,
	}

	if cfg.Journal.Persist {
		store, err := journal.NewStore(cfg.Journal.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer store.Close()
		deps.Store = store
	}

	ctx := commandContext(cmd)
	report, runErr := executor.RunPlan(ctx, plan, cfg.ToExecutorConfig(), deps)
	if report == nil {
		return runErr
	}

	if path, _ := cmd.Flags().GetString("report"); path != "" {
		if err := writeReport(path, report); err != nil {
			return err
		}
		fmt.Fprintf(out, "Report written to: %s\n", path)
	}
	if cfg.Journal.ExportPath != "" {
		n, err := journal.ExportJSONL(context.WithoutCancel(ctx), cfg.Journal.ExportPath, j)
		if err != nil {
			runLog.LogWarn(fmt.Sprintf("journal export failed: %v", err))
		} else {
			runLog.LogDebug(fmt.Sprintf("journal: exported %d entries to %s", n, cfg.Journal.ExportPath))
		}
	}
	fmt.Fprintf(out, "Logs written to: %s\n", fileLog.RunFile())
	fmt.Fprintf(out, "Evidence written to: %s\n", evidence.Dir())

	if code := runExitCode(report, runErr); code != ExitPassed {
		return &ExitError{Code: code}
	}
	return nil
}

// runExitCode maps a finished run to the process exit code.
func runExitCode(report *models.RunReport, runErr error) int {
	switch {
	case errors.Is(runErr, context.DeadlineExceeded):
		return ExitTimeout
	case errors.Is(runErr, context.Canceled):
		return ExitInterrupted
	case report.Passed():
		return ExitPassed
	default:
		return ExitFailed
	}
}

func writeReport(path string, report *models.RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := filelock.AtomicWrite(path, append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// printPlan shows a plan and the levels it runs in.
func printPlan(w io.Writer, plan *models.TestPlan) error {
	levels, err := executor.BuildDependencyGraph(plan).Levels()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Plan: %s (%s)\n", plan.Name, plan.ID)
	if plan.StartURL != "" {
		fmt.Fprintf(w, "  Start URL: %s\n", plan.StartURL)
	}
	fmt.Fprintf(w, "  Total steps: %d\n", len(plan.Steps))
	fmt.Fprintf(w, "  Execution levels: %d\n", len(levels))
	for i, level := range levels {
		fmt.Fprintf(w, "  Level %d:\n", i+1)
		for _, id := range level {
			step, _ := plan.Step(id)
			line := fmt.Sprintf("    - Step %s: %s", step.ID, step.Description)
			if step.Optional {
				line += " (optional)"
			}
			fmt.Fprintln(w, line)
		}
	}
	return nil
}
