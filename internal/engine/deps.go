package engine

import (
	"context"
	"fmt"

	"github.com/valetiq/valet/internal/expressions"
	"github.com/valetiq/valet/pkg/schema"
)

// GateDecision is the outcome of checking a step's requirements at dispatch time.
type GateDecision int

const (
	// GateProceed means all blocking requirements are met.
	GateProceed GateDecision = iota
	// GateSkip means a blocking requirement is unmet and the step must be
	// marked failed with a descriptive reason instead of running.
	GateSkip
	// GateAskUser means a blocking requirement is unmet and the step routes
	// to the intervention manager.
	GateAskUser
)

// DepGate evaluates a step's requires list against prior step results.
// Steps run strictly in array order, so every requirement either already has
// a result or never will; a wait strategy cannot be honored mid-stream and is
// treated as skip.
type DepGate struct {
	jq *expressions.GoJQEngine
}

// NewDepGate creates a DepGate using jq field selectors.
func NewDepGate(jq *expressions.GoJQEngine) *DepGate {
	return &DepGate{jq: jq}
}

// Check gates one step. On GateProceed it also returns the values extracted
// from requirement field selectors, keyed "<stepId>.<field>", for the
// executor to merge into the execution context. On GateSkip or GateAskUser
// the reason describes the unmet requirement.
func (g *DepGate) Check(ctx context.Context, step schema.ActionStep, results map[string]*schema.StepResult) (GateDecision, map[string]any, string, error) {
	var extracted map[string]any

	for _, req := range step.Requires {
		res := results[req.StepID]
		met := res != nil && res.Success

		if met {
			if req.Field == "" {
				continue
			}
			val, err := g.extract(ctx, req, res)
			if err != nil {
				// A broken selector on a blocking requirement is an unmet
				// requirement; on enhances/optional it is ignored.
				if req.EffectOrDefault() == schema.EffectBlocks {
					return g.unmet(req, fmt.Sprintf("field %q not extractable from step %q: %v", req.Field, req.StepID, err))
				}
				continue
			}
			if val != nil {
				if extracted == nil {
					extracted = make(map[string]any)
				}
				extracted[req.StepID+"."+req.Field] = val
			}
			continue
		}

		switch req.EffectOrDefault() {
		case schema.EffectOptional, schema.EffectEnhances:
			// The step runs without the enrichment.
			continue
		case schema.EffectBlocks:
			return g.unmet(req, fmt.Sprintf("required step %q did not complete", req.StepID))
		}
	}

	return GateProceed, extracted, "", nil
}

func (g *DepGate) unmet(req schema.Requirement, reason string) (GateDecision, map[string]any, string, error) {
	switch req.StrategyOrDefault() {
	case schema.StrategyAskUser:
		return GateAskUser, nil, reason, nil
	case schema.StrategyFallback:
		// Proceed without the dependency's value; the adapter falls back to
		// its own defaults.
		return GateProceed, nil, "", nil
	default: // skip, and wait which cannot be honored mid-stream
		return GateSkip, nil, reason, nil
	}
}

func (g *DepGate) extract(ctx context.Context, req schema.Requirement, res *schema.StepResult) (any, error) {
	payload, ok := res.Data.(map[string]any)
	if !ok {
		if res.Data == nil {
			return nil, nil
		}
		// Scalar dep result; a field selector cannot apply.
		return nil, fmt.Errorf("result of step %q is not an object", req.StepID)
	}
	return g.jq.ExtractField(ctx, req.Field, payload)
}
