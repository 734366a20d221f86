package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/gridpilot/internal/agent"
	"github.com/harrison/gridpilot/internal/browser"
	"github.com/harrison/gridpilot/internal/grid"
	"github.com/harrison/gridpilot/internal/journal"
	"github.com/harrison/gridpilot/internal/models"
)

// Logger defines the interface for logging run progress and results.
type Logger interface {
	LogRunStart(plan *models.TestPlan, runID string)
	LogStepStart(step models.TestStep)
	LogAttempt(step models.TestStep, attempt int, err error)
	LogStepResult(result models.StepReport)
	LogSummary(report models.RunReport)
	LogDebug(message string)
	LogInfo(message string)
	LogWarn(message string)
	LogError(message string)
}

// Config enumerates the run settings.
type Config struct {
	GridSize             int
	ConfidenceThreshold  float64
	MaxRefinementDepth   int
	StepTimeout          time.Duration
	MaxRetries           int
	Headless             bool
	ReplayCache          bool
	MaxConcurrency       int
	RunTimeout           time.Duration
	DriverErrorThreshold int
	Browser              browser.ChromeOptions // used only when no driver is supplied
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	opts := grid.DefaultOptions()
	return Config{
		GridSize:             opts.GridSize,
		ConfidenceThreshold:  opts.ConfidenceThreshold,
		MaxRefinementDepth:   opts.MaxDepth,
		StepTimeout:          30 * time.Second,
		MaxRetries:           2,
		Headless:             true,
		ReplayCache:          true,
		MaxConcurrency:       1,
		RunTimeout:           30 * time.Minute,
		DriverErrorThreshold: 3,
	}
}

// Validate checks the config values.
func (c Config) Validate() error {
	if err := c.gridOptions().Validate(); err != nil {
		return err
	}
	if c.StepTimeout < 0 {
		return fmt.Errorf("step_timeout must be >= 0, got %v", c.StepTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must be >= 0, got %d", c.MaxConcurrency)
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("run_timeout must be >= 0, got %v", c.RunTimeout)
	}
	if c.DriverErrorThreshold < 0 {
		return fmt.Errorf("driver_error_threshold must be >= 0, got %d", c.DriverErrorThreshold)
	}
	return nil
}

func (c Config) gridOptions() grid.Options {
	return grid.Options{
		GridSize:            c.GridSize,
		ConfidenceThreshold: c.ConfidenceThreshold,
		MaxDepth:            c.MaxRefinementDepth,
	}
}

// Deps are the collaborators of a run. Driver, Resolver, Journal, Evidence
// and Logger are optional.
type Deps struct {
	Driver        browser.Driver
	Chooser       agent.CellChooser
	Resolver      Resolver
	Evaluator     agent.Evaluator
	Journal       *journal.Journal
	Store         *journal.Store // loaded before and appended after the run
	Evidence      EvidenceStore
	Logger        Logger
	RunID         string
	HandleSignals bool
}

// RunPlan validates plan and executes it. The report is returned even when
// the run aborts; the error is then a *models.RunAbortedError. A plan that
// fails validation returns its *models.DependencyError and no report.
func RunPlan(ctx context.Context, plan *models.TestPlan, cfg Config, deps Deps) (*models.RunReport, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}

	resolver := deps.Resolver
	if resolver == nil {
		if deps.Chooser == nil {
			return nil, fmt.Errorf("cell chooser or resolver is required")
		}
		r, err := grid.NewResolver(deps.Chooser, cfg.gridOptions())
		if err != nil {
			return nil, err
		}
		resolver = r
	}

	runID := deps.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	j := deps.Journal
	if j == nil {
		j = journal.New()
	}

	driver := deps.Driver
	if driver == nil {
		opts := cfg.Browser
		opts.Headless = cfg.Headless
		d, err := browser.NewChromeDriver(opts)
		if err != nil {
			return nil, &models.DriverError{Op: "start", Err: err}
		}
		driver = d
	}
	session := browser.NewSession(driver)
	if deps.Driver == nil {
		defer session.Close()
	}

	if deps.Store != nil {
		n, err := deps.Store.Load(ctx, j)
		if err != nil {
			return nil, fmt.Errorf("failed to load journal: %w", err)
		}
		if deps.Logger != nil {
			deps.Logger.LogDebug(fmt.Sprintf("journal: loaded %d entries from %s", n, deps.Store.Path()))
		}
	}
	logStart := j.LogLen()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if cfg.RunTimeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeoutCause(runCtx, cfg.RunTimeout, &models.RunAbortedError{Reason: "run timeout", Err: context.DeadlineExceeded})
		defer cancelTimeout()
	}

	if deps.HandleSignals {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		go func() {
			select {
			case sig := <-sigChan:
				if deps.Logger != nil {
					deps.Logger.LogWarn(fmt.Sprintf("received %s, stopping run", sig))
				}
				cancel(&models.RunAbortedError{Reason: "interrupted", Err: context.Canceled})
			case <-runCtx.Done():
			}
		}()
	}

	state := NewExecutionState(plan)
	coordinator := NewCoordinator(session, resolver, deps.Evaluator, j, deps.Evidence, state, deps.Logger, CoordinatorConfig{
		RunID:                runID,
		StepTimeout:          cfg.StepTimeout,
		DefaultRetries:       cfg.MaxRetries,
		ReplayCache:          cfg.ReplayCache,
		DriverErrorThreshold: cfg.DriverErrorThreshold,
	}, cancel)

	if deps.Logger != nil {
		deps.Logger.LogRunStart(plan, runID)
	}
	startedAt := time.Now()

	var runErr error
	if plan.StartURL != "" {
		if err := openStartURL(runCtx, session, plan.StartURL, cfg.MaxRetries, deps.Logger); err != nil {
			if runCtx.Err() != nil {
				runErr = abortError(runCtx)
			} else {
				runErr = &models.RunAbortedError{Reason: "start url", Err: err}
			}
			state.SkipRemaining(runErr)
		}
	}
	if runErr == nil {
		runErr = NewScheduler(coordinator, cfg.MaxConcurrency, deps.Logger).Run(runCtx, plan, state)
	}

	report := buildReport(plan, runID, state, startedAt, runErr)

	if deps.Store != nil {
		saveCtx := context.WithoutCancel(ctx)
		if err := deps.Store.Append(saveCtx, j.LogSince(logStart)); err != nil && deps.Logger != nil {
			deps.Logger.LogError(fmt.Sprintf("failed to save journal: %v", err))
		}
	}
	if deps.Logger != nil {
		deps.Logger.LogSummary(*report)
	}
	return report, runErr
}

// openStartURL navigates to url with up to retries+1 attempts.
func openStartURL(ctx context.Context, session *browser.Session, url string, retries int, logger Logger) error {
	maxAttempts := retries + 1
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = session.Navigate(ctx, url); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if logger != nil {
			logger.LogWarn(fmt.Sprintf("start url attempt %d/%d failed: %v", attempt, maxAttempts, err))
		}
	}
	return fmt.Errorf("failed after %d attempt(s): %w", maxAttempts, err)
}

// buildReport aggregates the state into a RunReport.
func buildReport(plan *models.TestPlan, runID string, state *ExecutionState, startedAt time.Time, runErr error) *models.RunReport {
	report := &models.RunReport{
		RunID:     runID,
		PlanID:    plan.ID,
		PlanName:  plan.Name,
		Steps:     state.StepReports(),
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
		Evidence:  state.Evidence(),
	}

	requiredFailed := false
	for _, s := range report.Steps {
		switch s.Status {
		case models.StatusSuccess:
			report.Succeeded++
		case models.StatusFailed:
			report.Failed++
			if !s.Optional {
				requiredFailed = true
			}
		case models.StatusSkipped:
			report.Skipped++
			if !s.Optional {
				requiredFailed = true
			}
		}
	}

	var ab *models.RunAbortedError
	switch {
	case errors.As(runErr, &ab):
		report.Status = models.RunAborted
		report.AbortReason = ab.Reason
	case runErr != nil:
		report.Status = models.RunAborted
		report.AbortReason = runErr.Error()
	case requiredFailed:
		report.Status = models.RunFailed
	default:
		report.Status = models.RunPassed
	}
	return report
}
