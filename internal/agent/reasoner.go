package agent

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/harrison/gridpilot/internal/claude"
	"github.com/harrison/gridpilot/internal/models"
)

// CLIReasoner implements Planner, CellChooser and Evaluator by invoking the
// Claude CLI. Images are handed over as temp files the model opens with its
// Read tool.
type CLIReasoner struct {
	*claude.Service
	ImageDir string
}

var (
	_ Planner     = (*CLIReasoner)(nil)
	_ CellChooser = (*CLIReasoner)(nil)
	_ Evaluator   = (*CLIReasoner)(nil)
)

// NewCLIReasoner creates a reasoner backed by inv.
func NewCLIReasoner(inv *claude.Invoker) *CLIReasoner {
	return &CLIReasoner{
		Service:  claude.NewService(inv),
		ImageDir: claude.GetCleanTmpDir(),
	}
}

// Plan asks the model for a step list.
func (r *CLIReasoner) Plan(ctx context.Context, req PlanRequest) (PlanResponse, error) {
	if strings.TrimSpace(req.Requirements) == "" {
		return PlanResponse{}, fmt.Errorf("requirements cannot be empty")
	}
	var resp PlanResponse
	err := r.InvokeAndParse(ctx, claude.Request{
		Prompt: BuildPlanPrompt(req),
		Schema: PlanResponseSchema(),
	}, &resp)
	if err != nil {
		return PlanResponse{}, fmt.Errorf("planner: %w", err)
	}
	return resp, nil
}

// ChooseCell asks the model which grid cell holds the target.
func (r *CLIReasoner) ChooseCell(ctx context.Context, req CellRequest) (CellChoice, error) {
	path, cleanup, err := r.writeImage(req.Image)
	if err != nil {
		return CellChoice{}, err
	}
	defer cleanup()

	var choice CellChoice
	err = r.InvokeAndParse(ctx, claude.Request{
		Prompt:    BuildCellPrompt(req, path),
		Schema:    CellChoiceSchema(),
		AllowRead: true,
	}, &choice)
	if err != nil {
		return CellChoice{}, fmt.Errorf("cell chooser: %w", err)
	}
	choice.Cell = strings.ToUpper(strings.TrimSpace(choice.Cell))
	choice.Confidence = clamp01(choice.Confidence)
	return choice, nil
}

// Evaluate asks the model to judge a post-action screenshot.
func (r *CLIReasoner) Evaluate(ctx context.Context, req EvaluationRequest) (models.Verdict, error) {
	path, cleanup, err := r.writeImage(req.Screenshot)
	if err != nil {
		return models.Verdict{}, err
	}
	defer cleanup()

	var verdict models.Verdict
	err = r.InvokeAndParse(ctx, claude.Request{
		Prompt:    BuildEvaluationPrompt(req, path),
		Schema:    VerdictSchema(),
		AllowRead: true,
	}, &verdict)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("evaluator: %w", err)
	}
	verdict.Confidence = clamp01(verdict.Confidence)
	return verdict, nil
}

func (r *CLIReasoner) writeImage(data []byte) (string, func(), error) {
	if len(data) == 0 {
		return "", nil, fmt.Errorf("no image to send")
	}
	dir := r.ImageDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", nil, fmt.Errorf("failed to create image dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "screen-*.png")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create image file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("failed to write image file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("failed to close image file: %w", err)
	}
	name := f.Name()
	return name, func() { os.Remove(name) }, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
