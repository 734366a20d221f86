package executor

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/harrison/gridpilot/internal/models"
)

// StepRunner executes one step to completion, retries included.
type StepRunner interface {
	RunStep(ctx context.Context, step models.TestStep) StepOutcome
}

// StepRunnerFunc adapts a function to StepRunner.
type StepRunnerFunc func(ctx context.Context, step models.TestStep) StepOutcome

// RunStep calls f.
func (f StepRunnerFunc) RunStep(ctx context.Context, step models.TestStep) StepOutcome {
	return f(ctx, step)
}

// Scheduler dispatches ready steps to a StepRunner with bounded parallelism.
// Only the scheduling loop mutates step statuses.
type Scheduler struct {
	runner         StepRunner
	logger         Logger
	maxConcurrency int
}

// NewScheduler creates a Scheduler. maxConcurrency <= 0 means unlimited.
// The logger parameter is optional and can be nil.
func NewScheduler(runner StepRunner, maxConcurrency int, logger Logger) *Scheduler {
	if runner == nil {
		panic("step runner cannot be nil")
	}
	return &Scheduler{runner: runner, logger: logger, maxConcurrency: maxConcurrency}
}

type stepResult struct {
	id      string
	outcome StepOutcome
}

// Run executes plan until every step is terminal or ctx ends. On abort every
// non-terminal step is SKIPPED and a *models.RunAbortedError is returned.
func (s *Scheduler) Run(ctx context.Context, plan *models.TestPlan, state *ExecutionState) error {
	if plan == nil {
		return fmt.Errorf("plan cannot be nil")
	}

	steps := make(map[string]models.TestStep, len(plan.Steps))
	for _, step := range plan.Steps {
		steps[step.ID] = step
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.maxConcurrency > 0 {
		g.SetLimit(s.maxConcurrency)
	}
	results := make(chan stepResult, len(plan.Steps))
	inFlight := 0

	for ctx.Err() == nil {
		for _, id := range state.ReadySteps() {
			if s.maxConcurrency > 0 && inFlight >= s.maxConcurrency {
				break
			}
			if err := state.MarkRunning(id); err != nil {
				return err
			}
			inFlight++
			step := steps[id]
			if s.logger != nil {
				s.logger.LogStepStart(step)
			}
			g.Go(func() error {
				results <- stepResult{id: step.ID, outcome: s.runner.RunStep(gctx, step)}
				return nil
			})
		}

		if inFlight == 0 {
			break
		}

		select {
		case r := <-results:
			inFlight--
			s.apply(state, r)
		case <-ctx.Done():
		}
	}

	_ = g.Wait()

	if ctx.Err() != nil {
		// Keep outcomes that landed before the abort was observed.
		for inFlight > 0 {
			r := <-results
			inFlight--
			if r.outcome.Success || !models.IsRunAborted(r.outcome.Err) {
				s.apply(state, r)
			}
		}
		abort := abortError(ctx)
		for _, id := range state.SkipRemaining(abort) {
			if s.logger != nil {
				s.logger.LogDebug(fmt.Sprintf("step %s skipped: run aborted", id))
			}
		}
		return abort
	}

	// Steps still pending here have no path to READY.
	if skipped := state.SkipRemaining(fmt.Errorf("unreachable: dependencies never satisfied")); len(skipped) > 0 && s.logger != nil {
		s.logger.LogWarn(fmt.Sprintf("%d step(s) could not be scheduled", len(skipped)))
	}
	return nil
}

func (s *Scheduler) apply(state *ExecutionState, r stepResult) {
	skipped, err := state.Advance(r.id, r.outcome)
	if err != nil && s.logger != nil {
		s.logger.LogError(err.Error())
		return
	}
	if s.logger == nil {
		return
	}
	if report, ok := state.StepReport(r.id); ok {
		s.logger.LogStepResult(report)
	}
	for _, id := range skipped {
		s.logger.LogDebug(fmt.Sprintf("step %s skipped: prerequisite %s failed", id, r.id))
	}
}

// abortError builds the run-level error for a canceled ctx, keeping the
// cancel cause when one was given.
func abortError(ctx context.Context) *models.RunAbortedError {
	cause := context.Cause(ctx)
	var ab *models.RunAbortedError
	if errors.As(cause, &ab) {
		return ab
	}
	reason := "canceled"
	if errors.Is(cause, context.DeadlineExceeded) {
		reason = "run timeout"
	}
	return &models.RunAbortedError{Reason: reason, Err: cause}
}
