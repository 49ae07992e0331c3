package expressions

import "context"

// Engine evaluates expressions against step results.
// Two implementations: Expr (step guard conditions) and GoJQ (field extraction
// from dependency results).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
