package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ActionKind identifies what a step does in the browser.
type ActionKind string

const (
	ActionNavigate ActionKind = "navigate"
	ActionClick    ActionKind = "click"
	ActionType     ActionKind = "type"
	ActionKeyPress ActionKind = "key_press"
	ActionAssert   ActionKind = "assert"
	ActionWait     ActionKind = "wait"
	ActionScroll   ActionKind = "scroll"
	ActionExtract  ActionKind = "extract"
)

var validActionKinds = map[ActionKind]bool{
	ActionNavigate: true,
	ActionClick:    true,
	ActionType:     true,
	ActionKeyPress: true,
	ActionAssert:   true,
	ActionWait:     true,
	ActionScroll:   true,
	ActionExtract:  true,
}

// ParseActionKind normalizes a free-form action name ("Key Press", "key-press",
// "CLICK") into an ActionKind.
func ParseActionKind(s string) (ActionKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	switch normalized {
	case "keypress", "press", "key":
		normalized = string(ActionKeyPress)
	case "goto", "open", "visit":
		normalized = string(ActionNavigate)
	case "verify", "check":
		normalized = string(ActionAssert)
	case "input", "enter", "fill":
		normalized = string(ActionType)
	}
	kind := ActionKind(normalized)
	if !validActionKinds[kind] {
		return "", fmt.Errorf("unknown action kind %q", s)
	}
	return kind, nil
}

// Valid reports whether k is one of the supported action kinds.
func (k ActionKind) Valid() bool {
	return validActionKinds[k]
}

// ActionInstruction describes a single browser action in free text.
// Target is a natural-language locator, never a selector.
type ActionInstruction struct {
	Kind            ActionKind    `json:"kind" yaml:"action"`
	Target          string        `json:"target,omitempty" yaml:"target,omitempty"`
	Value           string        `json:"value,omitempty" yaml:"value,omitempty"`
	ExpectedOutcome string        `json:"expected_outcome" yaml:"expected"`
	Timeout         time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// NeedsTarget reports whether the action has to be resolved to a screen
// coordinate before it can be issued.
func (a ActionInstruction) NeedsTarget() bool {
	switch a.Kind {
	case ActionClick:
		return true
	case ActionType:
		return strings.TrimSpace(a.Target) != ""
	default:
		return false
	}
}

// TestStep is one atomic instruction of a plan. Steps are immutable once the
// plan is built; run-time status lives in the executor's ExecutionState.
type TestStep struct {
	ID          string            `json:"id"`
	Sequence    int               `json:"sequence"`
	Description string            `json:"description"`
	Action      ActionInstruction `json:"action"`
	DependsOn   []string          `json:"depends_on,omitempty"`
	Optional    bool              `json:"optional,omitempty"`
	MaxRetries  int               `json:"max_retries"`
}

// RetriesUnset marks a step whose retry budget comes from the run config.
const RetriesUnset = -1

// Retries returns the step's retry budget, falling back to def when the plan
// left it unset.
func (s TestStep) Retries(def int) int {
	if s.MaxRetries == RetriesUnset {
		return def
	}
	return s.MaxRetries
}

// TestPlan is an ordered set of steps built from requirements.
type TestPlan struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	Requirements string     `json:"requirements,omitempty"`
	StartURL     string     `json:"start_url,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	Steps        []TestStep `json:"steps"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Step returns the step with the given id.
func (p *TestPlan) Step(id string) (TestStep, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return TestStep{}, false
}

// SortSteps orders steps by sequence number, keeping the original order for ties.
func (p *TestPlan) SortSteps() {
	sort.SliceStable(p.Steps, func(i, j int) bool {
		return p.Steps[i].Sequence < p.Steps[j].Sequence
	})
}

// Validate checks step fields and the dependency relation. Any dangling
// reference, self-reference or cycle yields a *DependencyError; the plan must
// not be executed in that case.
func (p *TestPlan) Validate() error {
	if p == nil {
		return fmt.Errorf("plan cannot be nil")
	}

	ids := make(map[string]bool, len(p.Steps))
	for _, step := range p.Steps {
		if step.ID == "" {
			return &DependencyError{Reason: fmt.Sprintf("step %d has an empty id", step.Sequence)}
		}
		if ids[step.ID] {
			return &DependencyError{StepID: step.ID, Reason: "duplicate step id"}
		}
		ids[step.ID] = true

		if !step.Action.Kind.Valid() {
			return fmt.Errorf("step %s: invalid action kind %q", step.ID, step.Action.Kind)
		}
		if step.MaxRetries < RetriesUnset {
			return fmt.Errorf("step %s: max_retries must be >= 0, got %d", step.ID, step.MaxRetries)
		}
		if step.Action.Kind == ActionClick && strings.TrimSpace(step.Action.Target) == "" {
			return fmt.Errorf("step %s: click requires a target description", step.ID)
		}
	}

	for _, step := range p.Steps {
		for _, dep := range step.DependsOn {
			if dep == step.ID {
				return &DependencyError{StepID: step.ID, Reason: "step depends on itself", Cycle: []string{step.ID, step.ID}}
			}
			if !ids[dep] {
				return &DependencyError{StepID: step.ID, Missing: dep, Reason: fmt.Sprintf("depends on unknown step %s", dep)}
			}
		}
	}

	if cycle := p.findCycle(); cycle != nil {
		return &DependencyError{StepID: cycle[0], Cycle: cycle, Reason: "dependency cycle"}
	}
	return nil
}

// findCycle runs a colored DFS over dependency edges and returns the first
// cycle found as a closed path (first id repeated at the end), or nil.
func (p *TestPlan) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	deps := make(map[string][]string, len(p.Steps))
	order := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		deps[s.ID] = s.DependsOn
		order = append(order, s.ID)
	}

	colors := make(map[string]int, len(order))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = gray
		stack = append(stack, id)
		for _, dep := range deps[id] {
			switch colors[dep] {
			case gray:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == dep {
						cycle = append(append([]string{}, stack[i:]...), dep)
						return true
					}
				}
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		colors[id] = black
		return false
	}

	for _, id := range order {
		if colors[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}
