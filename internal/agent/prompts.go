package agent

import (
	"fmt"
	"strings"

	"github.com/harrison/gridpilot/internal/models"
)

// section creates a tagged prompt block: <name>\ncontent\n</name>
func section(name, content string) string {
	return fmt.Sprintf("<%s>\n%s\n</%s>", name, strings.TrimSpace(content), name)
}

func joinSections(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

// BuildPlanPrompt renders the planner prompt.
func BuildPlanPrompt(req PlanRequest) string {
	kinds := make([]string, 0, 8)
	for _, k := range []models.ActionKind{
		models.ActionNavigate, models.ActionClick, models.ActionType, models.ActionKeyPress,
		models.ActionAssert, models.ActionWait, models.ActionScroll, models.ActionExtract,
	} {
		kinds = append(kinds, string(k))
	}

	rules := []string{
		"Produce an ordered list of atomic browser steps numbered from 1.",
		"Each step has exactly one action of kind: " + strings.Join(kinds, ", ") + ".",
		"Describe targets as a person would see them on screen (\"the blue Sign in button\"). Never use CSS selectors or XPath.",
		"Give every step a concrete expected outcome visible on screen.",
		"depends_on lists the numbers of earlier steps that must succeed first. Omit it when a step depends only on the previous one being done; the previous step is then assumed.",
		"Mark steps optional only when the test still makes sense if they fail.",
	}
	if req.MaxSteps > 0 {
		rules = append(rules, fmt.Sprintf("Use at most %d steps.", req.MaxSteps))
	}

	var start string
	if req.StartURL != "" {
		start = section("start_url", req.StartURL)
	}

	return joinSections(
		"You are planning an end-to-end browser test.",
		section("requirements", req.Requirements),
		start,
		section("rules", "- "+strings.Join(rules, "\n- ")),
		"Respond with JSON: {\"name\", \"description\", \"start_url\", \"steps\": [{\"number\", \"description\", \"action\", \"target\", \"value\", \"expected\", \"depends_on\", \"optional\", \"max_retries\"}]}",
	)
}

// BuildCellPrompt renders the visual cell query. imagePath is the PNG the
// model reads with its Read tool.
func BuildCellPrompt(req CellRequest, imagePath string) string {
	last := models.CellAddress{Col: req.GridSize - 1, Row: req.GridSize - 1}
	return joinSections(
		fmt.Sprintf("The image at %s shows part of a web page with a %dx%d grid drawn over it.", imagePath, req.GridSize, req.GridSize),
		fmt.Sprintf("Columns are lettered A..%s from left to right; rows are numbered 1..%d from top to bottom. Cell ids look like M23.",
			strings.TrimRight(last.String(), "0123456789"), req.GridSize),
		section("target", req.Target),
		section("action", string(req.Action)),
		"Pick the single cell whose center best hits the target. Report confidence in [0,1]: how sure you are that clicking the center of that cell hits the target.",
		"If the target is not visible at all, answer found=false.",
		"Respond with JSON: {\"found\": bool, \"cell\": string, \"confidence\": number, \"reasoning\": string}",
	)
}

// BuildEvaluationPrompt renders the evaluator prompt.
func BuildEvaluationPrompt(req EvaluationRequest, imagePath string) string {
	action := string(req.Action.Kind)
	if req.Action.Target != "" {
		action += " on " + req.Action.Target
	}
	if req.Action.Value != "" && req.Action.Kind != models.ActionType {
		action += " with " + req.Action.Value
	}
	if req.Point != nil {
		action += " at " + req.Point.String()
	}

	return joinSections(
		fmt.Sprintf("The image at %s is a screenshot taken right after a browser action.", imagePath),
		section("step", req.Description),
		section("action", action),
		section("expected_outcome", req.Action.ExpectedOutcome),
		"Decide whether the screenshot shows the expected outcome. If not and it looks like a product defect rather than a test problem, add a bug_note.",
		"For extract steps put the extracted value in rationale.",
		"Respond with JSON: {\"pass\": bool, \"rationale\": string, \"confidence\": number, \"bug_note\": {\"summary\", \"expected\", \"observed\", \"severity\"} | null}",
	)
}
