// Package diagram renders a plan's step graph for inspection surfaces.
package diagram

import (
	"fmt"

	"github.com/valetiq/valet/pkg/schema"
)

// NodeKind selects the node shape.
type NodeKind string

const (
	NodeKindAction       NodeKind = "action"
	NodeKindConditional  NodeKind = "conditional"
	NodeKindIntervention NodeKind = "intervention"
)

// Node is one plan step in the rendered graph.
type Node struct {
	ID    string
	Label string
	Kind  NodeKind
	State schema.StepState
}

// Edge connects two steps. Soft edges are requirement links that do not
// block execution (ENHANCES, OPTIONAL).
type Edge struct {
	From  string
	To    string
	Label string
	Soft  bool
}

// Model is the renderer-independent plan graph.
type Model struct {
	Title string
	Nodes []Node
	Edges []Edge
}

// BuildModel converts a plan into a graph: one node per step, solid edges
// for execution order and blocking requirements, soft edges for the rest.
func BuildModel(plan schema.ActionPlan) *Model {
	m := &Model{Title: plan.Summary}

	for _, step := range plan.Steps {
		kind := NodeKindAction
		switch {
		case step.IsIntervention():
			kind = NodeKindIntervention
		case step.Condition != "":
			kind = NodeKindConditional
		}
		m.Nodes = append(m.Nodes, Node{
			ID:    step.ID,
			Label: fmt.Sprintf("%s.%s", step.Type, step.Action),
			Kind:  kind,
			State: step.State,
		})
	}

	// Execution order between consecutive steps, unless the later step
	// already declares a dependency on the earlier one.
	for i := 1; i < len(plan.Steps); i++ {
		prev, cur := plan.Steps[i-1], plan.Steps[i]
		if !dependsOn(cur, prev.ID) {
			m.Edges = append(m.Edges, Edge{From: prev.ID, To: cur.ID})
		}
	}

	for _, step := range plan.Steps {
		for _, dep := range step.DependsOn {
			m.Edges = append(m.Edges, Edge{From: dep, To: step.ID, Label: "needs"})
		}
		for _, req := range step.Requires {
			effect := req.EffectOrDefault()
			m.Edges = append(m.Edges, Edge{
				From:  req.StepID,
				To:    step.ID,
				Label: string(effect),
				Soft:  effect != schema.EffectBlocks,
			})
		}
	}
	return m
}

func dependsOn(step schema.ActionStep, id string) bool {
	for _, dep := range step.DependsOn {
		if dep == id {
			return true
		}
	}
	for _, req := range step.Requires {
		if req.StepID == id {
			return true
		}
	}
	return false
}
