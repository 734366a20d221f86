package parser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/gridpilot/internal/agent"
	"github.com/harrison/gridpilot/internal/models"
)

// BuildPlan asks planner to turn free-form requirements into a plan and
// validates the result. Bad dependency graphs yield a *models.DependencyError.
func BuildPlan(ctx context.Context, requirements string, planner agent.Planner) (*models.TestPlan, error) {
	return BuildPlanRequest(ctx, agent.PlanRequest{Requirements: requirements}, planner)
}

// BuildPlanRequest is BuildPlan with the full planner request.
func BuildPlanRequest(ctx context.Context, req agent.PlanRequest, planner agent.Planner) (*models.TestPlan, error) {
	if planner == nil {
		return nil, fmt.Errorf("planner is required")
	}
	if strings.TrimSpace(req.Requirements) == "" {
		return nil, fmt.Errorf("requirements are empty")
	}

	resp, err := planner.Plan(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	plan, err := FromPlanResponse(resp)
	if err != nil {
		return nil, err
	}
	plan.Requirements = req.Requirements
	if plan.StartURL == "" {
		plan.StartURL = req.StartURL
	}
	return plan, nil
}

// FromPlanResponse converts a planner answer into a validated plan. Step
// numbers become ids. A step that lists no prerequisites depends on the step
// before it, so the planner's order is kept unless it says otherwise.
func FromPlanResponse(resp agent.PlanResponse) (*models.TestPlan, error) {
	plan := &models.TestPlan{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(resp.Name),
		Description: resp.Description,
		StartURL:    resp.StartURL,
		CreatedAt:   time.Now().UTC(),
	}
	if plan.Name == "" {
		plan.Name = "generated plan"
	}

	prev := ""
	for i, ps := range resp.Steps {
		seq := i + 1
		number := ps.Number
		if number <= 0 {
			number = seq
		}
		id := strconv.Itoa(number)

		kind, err := models.ParseActionKind(ps.Action)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", id, err)
		}

		var deps []string
		for _, d := range ps.DependsOn {
			deps = append(deps, strconv.Itoa(d))
		}
		if ps.DependsOn == nil && prev != "" {
			deps = []string{prev}
		}

		retries := models.RetriesUnset
		if ps.MaxRetries != nil {
			retries = *ps.MaxRetries
		}

		plan.Steps = append(plan.Steps, models.TestStep{
			ID:          id,
			Sequence:    seq,
			Description: strings.TrimSpace(ps.Description),
			Action: models.ActionInstruction{
				Kind:            kind,
				Target:          strings.TrimSpace(ps.Target),
				Value:           ps.Value,
				ExpectedOutcome: strings.TrimSpace(ps.Expected),
			},
			DependsOn:  deps,
			Optional:   ps.Optional,
			MaxRetries: retries,
		})
		prev = id
	}
	return finish(plan)
}
