package validation

import (
	"sort"
	"strings"

	"github.com/valetiq/valet/pkg/schema"
)

// validateDAG runs Kahn's algorithm over the combined DependsOn and Requires
// edges. Steps trapped in a cycle never reach in-degree zero, so any step
// left unvisited after the topological sweep is part of (or downstream of) a
// cycle. References to unknown steps are ignored here; validateSemantic
// already reports those.
func validateDAG(plan *schema.ActionPlan) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	stepIDs := make(map[string]bool, len(plan.Steps))
	for _, s := range plan.Steps {
		if s.ID != "" {
			stepIDs[s.ID] = true
		}
	}

	// edges[a] = steps that depend on a; inDegree counts incoming edges.
	edges := make(map[string][]string, len(stepIDs))
	inDegree := make(map[string]int, len(stepIDs))
	for id := range stepIDs {
		inDegree[id] = 0
	}

	addEdge := func(from, to string) {
		if !stepIDs[from] || !stepIDs[to] || from == to {
			return
		}
		edges[from] = append(edges[from], to)
		inDegree[to]++
	}

	for _, s := range plan.Steps {
		for _, dep := range s.DependsOn {
			addEdge(dep, s.ID)
		}
		for _, req := range s.Requires {
			addEdge(req.StepID, s.ID)
		}
	}

	queue := make([]string, 0, len(stepIDs))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++

		next := append([]string(nil), edges[id]...)
		sort.Strings(next)
		for _, n := range next {
			inDegree[n]--
			if inDegree[n] == 0 {
				queue = append(queue, n)
			}
		}
	}

	if visited != len(stepIDs) {
		trapped := make([]string, 0, len(stepIDs)-visited)
		for id, deg := range inDegree {
			if deg > 0 {
				trapped = append(trapped, id)
			}
		}
		sort.Strings(trapped)
		result.AddError("steps", schema.ErrCodeCycleDetected,
			"dependency cycle involving steps: "+strings.Join(trapped, ", "))
	}

	return result
}
