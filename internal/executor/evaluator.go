package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/harrison/gridpilot/internal/agent"
	"github.com/harrison/gridpilot/internal/models"
)

// defaultWait is used by wait steps without a duration.
const defaultWait = time.Second

// needsEvaluation reports whether an attempt ends with an evaluator call.
// Assert and extract steps and every action on a resolved target are
// judged; the rest only when they state an expected outcome. A resolved
// point reaches the journal only after a passing verdict.
func needsEvaluation(a models.ActionInstruction) bool {
	switch {
	case a.Kind == models.ActionAssert, a.Kind == models.ActionExtract, a.NeedsTarget():
		return true
	default:
		return strings.TrimSpace(a.ExpectedOutcome) != ""
	}
}

// evaluationRequest builds the evaluator input for an attempt.
func evaluationRequest(step models.TestStep, attempt int, point *models.Point, screenshot []byte) agent.EvaluationRequest {
	return agent.EvaluationRequest{
		StepID:      step.ID,
		Description: step.Description,
		Action:      step.Action,
		Screenshot:  screenshot,
		Attempt:     attempt,
		Point:       point,
	}
}

// judge calls the evaluator and turns a failing verdict into an
// *models.EvaluationFailedError. Evaluator errors are returned wrapped.
func judge(ctx context.Context, ev agent.Evaluator, req agent.EvaluationRequest) (models.Verdict, error) {
	v, err := ev.Evaluate(ctx, req)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("evaluator: %w", err)
	}
	if !v.Pass {
		return v, &models.EvaluationFailedError{StepID: req.StepID, Verdict: v}
	}
	return v, nil
}

// scrollKeys maps a scroll step's value ("down", "up 3", "top", "bottom")
// to the key presses that perform it.
func scrollKeys(value string) ([]string, error) {
	fields := strings.Fields(strings.ToLower(value))
	direction := "down"
	count := 1
	if len(fields) > 0 {
		direction = fields[0]
	}
	if len(fields) > 1 {
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid scroll count %q", fields[1])
		}
		count = n
	}

	var key string
	switch direction {
	case "down":
		key = "PageDown"
	case "up":
		key = "PageUp"
	case "top":
		key, count = "Home", 1
	case "bottom":
		key, count = "End", 1
	default:
		return nil, fmt.Errorf("invalid scroll direction %q", direction)
	}

	keys := make([]string, count)
	for i := range keys {
		keys[i] = key
	}
	return keys, nil
}

// waitDuration parses a wait step's value: a Go duration ("500ms") or a
// number of seconds ("2", "1.5").
func waitDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultWait, nil
	}
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return d, nil
	}
	secs, err := strconv.ParseFloat(strings.TrimSuffix(value, "s"), 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("invalid wait duration %q", value)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// sleepCtx waits for d or until ctx ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
