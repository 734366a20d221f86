// Package agent defines the reasoning roles used during a run (planner,
// visual cell chooser and evaluator) and a Claude CLI backed implementation.
//
// Roles exchange typed request/response values only; no role reads another
// role's state.
package agent

import (
	"context"

	"github.com/harrison/gridpilot/internal/models"
)

// PlanRequest asks the planner to turn requirements into steps.
type PlanRequest struct {
	Requirements string
	StartURL     string
	MaxSteps     int
}

// PlannedStep is one step as proposed by the planner. Steps are numbered from
// 1 and refer to their prerequisites by number.
type PlannedStep struct {
	Number      int    `json:"number"`
	Description string `json:"description"`
	Action      string `json:"action"`
	Target      string `json:"target,omitempty"`
	Value       string `json:"value,omitempty"`
	Expected    string `json:"expected"`
	DependsOn   []int  `json:"depends_on,omitempty"`
	Optional    bool   `json:"optional,omitempty"`
	MaxRetries  *int   `json:"max_retries,omitempty"`
}

// PlanResponse is the planner's answer.
type PlanResponse struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	StartURL    string        `json:"start_url,omitempty"`
	Steps       []PlannedStep `json:"steps"`
}

// CellRequest is the actor's visual query: which cell of the gridded image
// contains Target.
type CellRequest struct {
	Target   string
	Action   models.ActionKind
	Image    []byte // PNG of the current region with the grid drawn on it
	GridSize int
	Depth    int
	Region   models.Rect
}

// CellChoice is the chooser's answer. Found=false means no plausible match.
type CellChoice struct {
	Found      bool    `json:"found"`
	Cell       string  `json:"cell"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// EvaluationRequest asks the evaluator to judge the outcome of an action.
type EvaluationRequest struct {
	StepID      string
	Description string
	Action      models.ActionInstruction
	Screenshot  []byte
	Attempt     int
	Point       *models.Point
}

// Planner turns requirements into a plan.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (PlanResponse, error)
}

// CellChooser picks a grid cell for a target description.
type CellChooser interface {
	ChooseCell(ctx context.Context, req CellRequest) (CellChoice, error)
}

// Evaluator judges a post-action screenshot against the expected outcome.
type Evaluator interface {
	Evaluate(ctx context.Context, req EvaluationRequest) (models.Verdict, error)
}

// PlannerFunc adapts a function to Planner.
type PlannerFunc func(ctx context.Context, req PlanRequest) (PlanResponse, error)

func (f PlannerFunc) Plan(ctx context.Context, req PlanRequest) (PlanResponse, error) {
	return f(ctx, req)
}

// CellChooserFunc adapts a function to CellChooser.
type CellChooserFunc func(ctx context.Context, req CellRequest) (CellChoice, error)

func (f CellChooserFunc) ChooseCell(ctx context.Context, req CellRequest) (CellChoice, error) {
	return f(ctx, req)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, req EvaluationRequest) (models.Verdict, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, req EvaluationRequest) (models.Verdict, error) {
	return f(ctx, req)
}
