// Package validation checks plans for correctness before execution. Errors
// are collected, not fail-fast, so the caller can decide to proceed with
// warnings or abort with the full violation list.
package validation

import (
	"fmt"

	"github.com/valetiq/valet/pkg/schema"
)

// AdapterLookup reports whether an adapter is registered for a step type.
// May be nil to skip adapter existence checks.
type AdapterLookup interface {
	Has(stepType string) bool
}

// PlanValidator runs the two-stage validation pipeline:
// 1. Semantic (step ids, dependency references, adapter types)
// 2. DAG (cycles, reachability)
type PlanValidator struct {
	adapters AdapterLookup
}

// NewPlanValidator creates a PlanValidator. lookup may be nil.
func NewPlanValidator(lookup AdapterLookup) *PlanValidator {
	return &PlanValidator{adapters: lookup}
}

// Validate runs both stages and returns an aggregated result. A plan with
// semantic errors still gets DAG analysis over the ids that do exist, so one
// pass surfaces every violation.
func (v *PlanValidator) Validate(plan *schema.ActionPlan) *schema.ValidationResult {
	if plan == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "plan is nil")
		return r
	}
	if len(plan.Steps) == 0 {
		r := &schema.ValidationResult{}
		r.AddError("steps", schema.ErrCodeValidation, "plan has no steps")
		return r
	}

	result := v.validateSemantic(plan)
	result.Merge(validateDAG(plan))
	return result
}

// validateSemantic checks step ids, dependency references and adapter types.
func (v *PlanValidator) validateSemantic(plan *schema.ActionPlan) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	stepIDs := make(map[string]bool, len(plan.Steps))
	for i, s := range plan.Steps {
		path := fmt.Sprintf("steps[%d]", i)
		if s.ID == "" {
			result.AddError(path+".id", schema.ErrCodeValidation, "step id is empty")
			continue
		}
		if stepIDs[s.ID] {
			result.AddError(path+".id", schema.ErrCodeConflict,
				fmt.Sprintf("duplicate step id %q", s.ID))
		}
		stepIDs[s.ID] = true
	}

	for i, s := range plan.Steps {
		path := fmt.Sprintf("steps[%d]", i)

		if s.Type == "" {
			result.AddError(path+".type", schema.ErrCodeValidation, "step type is empty")
		} else if v.adapters != nil && !s.IsIntervention() && !v.adapters.Has(s.Type) {
			result.AddError(path+".type", schema.ErrCodeUnknownStepType,
				fmt.Sprintf("no adapter registered for step type %q", s.Type))
		}

		for j, dep := range s.DependsOn {
			if dep == s.ID {
				result.AddError(fmt.Sprintf("%s.depends_on[%d]", path, j),
					schema.ErrCodeCycleDetected,
					fmt.Sprintf("step %q depends on itself", s.ID))
				continue
			}
			if !stepIDs[dep] {
				result.AddError(fmt.Sprintf("%s.depends_on[%d]", path, j),
					schema.ErrCodeUnknownDependency,
					fmt.Sprintf("references non-existent step %q", dep))
			}
		}

		for j, req := range s.Requires {
			if req.StepID == s.ID {
				result.AddError(fmt.Sprintf("%s.requires[%d]", path, j),
					schema.ErrCodeCycleDetected,
					fmt.Sprintf("step %q requires itself", s.ID))
				continue
			}
			if !stepIDs[req.StepID] {
				result.AddError(fmt.Sprintf("%s.requires[%d]", path, j),
					schema.ErrCodeUnknownDependency,
					fmt.Sprintf("references non-existent step %q", req.StepID))
			}
		}
	}

	return result
}
