package executor

import (
	"fmt"
	"sort"

	"github.com/harrison/gridpilot/internal/models"
)

// DependencyGraph represents the directed graph of step dependencies.
type DependencyGraph struct {
	Steps    map[string]*models.TestStep
	Edges    map[string][]string // prerequisite -> steps that depend on it
	InDegree map[string]int      // step -> number of dependencies
	seq      map[string]int
}

// BuildDependencyGraph constructs a dependency graph from a plan. Unknown
// dependencies are ignored here; TestPlan.Validate reports them.
func BuildDependencyGraph(plan *models.TestPlan) *DependencyGraph {
	g := &DependencyGraph{
		Steps:    make(map[string]*models.TestStep, len(plan.Steps)),
		Edges:    make(map[string][]string),
		InDegree: make(map[string]int, len(plan.Steps)),
		seq:      make(map[string]int, len(plan.Steps)),
	}

	for i := range plan.Steps {
		step := &plan.Steps[i]
		g.Steps[step.ID] = step
		g.InDegree[step.ID] = 0
		g.seq[step.ID] = i
	}

	for _, step := range plan.Steps {
		for _, dep := range step.DependsOn {
			if _, exists := g.Steps[dep]; !exists {
				continue
			}
			g.Edges[dep] = append(g.Edges[dep], step.ID)
			g.InDegree[step.ID]++
		}
	}

	for id := range g.Edges {
		g.sortBySequence(g.Edges[id])
	}
	return g
}

// sortBySequence orders ids by their position in the plan.
func (g *DependencyGraph) sortBySequence(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		return g.seq[ids[i]] < g.seq[ids[j]]
	})
}

// TopologicalOrder returns every step id so that each step comes after all
// of its dependencies (Kahn's algorithm). Ties keep plan order.
func (g *DependencyGraph) TopologicalOrder() ([]string, error) {
	var order []string
	for _, wave := range g.levels() {
		order = append(order, wave...)
	}
	if len(order) != len(g.Steps) {
		return nil, fmt.Errorf("circular dependency detected")
	}
	return order, nil
}

// Levels groups steps into dependency levels: level 0 has no dependencies,
// level n depends only on earlier levels. Steps in one level may run
// concurrently.
func (g *DependencyGraph) Levels() ([][]string, error) {
	levels := g.levels()
	total := 0
	for _, l := range levels {
		total += len(l)
	}
	if total != len(g.Steps) {
		return nil, fmt.Errorf("circular dependency detected")
	}
	return levels, nil
}

func (g *DependencyGraph) levels() [][]string {
	inDegree := make(map[string]int, len(g.InDegree))
	for k, v := range g.InDegree {
		inDegree[k] = v
	}

	var levels [][]string
	for len(inDegree) > 0 {
		var current []string
		for id, degree := range inDegree {
			if degree == 0 {
				current = append(current, id)
			}
		}
		if len(current) == 0 {
			break
		}
		g.sortBySequence(current)
		levels = append(levels, current)

		for _, id := range current {
			delete(inDegree, id)
			for _, dependent := range g.Edges[id] {
				if _, exists := inDegree[dependent]; exists {
					inDegree[dependent]--
				}
			}
		}
	}
	return levels
}

// Dependents returns every step that transitively depends on id, in plan
// order.
func (g *DependencyGraph) Dependents(id string) []string {
	seen := make(map[string]bool)
	queue := append([]string(nil), g.Edges[id]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		queue = append(queue, g.Edges[next]...)
	}

	out := make([]string, 0, len(seen))
	for dep := range seen {
		out = append(out, dep)
	}
	g.sortBySequence(out)
	return out
}
