package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valetiq/valet/pkg/schema"
)

type fakeLookup map[string]bool

func (f fakeLookup) Has(stepType string) bool { return f[stepType] }

func step(id, typ string, deps ...string) schema.ActionStep {
	return schema.ActionStep{ID: id, Type: typ, Action: "do", DependsOn: deps}
}

func TestValidate_ValidLinearPlan(t *testing.T) {
	v := NewPlanValidator(fakeLookup{"email": true, "calendar": true})
	plan := &schema.ActionPlan{Steps: []schema.ActionStep{
		step("step-1", "email"),
		step("step-2", "calendar", "step-1"),
	}}

	result := v.Validate(plan)
	assert.True(t, result.Valid())
	assert.Empty(t, result.Errors)
}

func TestValidate_NilAndEmptyPlan(t *testing.T) {
	v := NewPlanValidator(nil)

	result := v.Validate(nil)
	require.False(t, result.Valid())
	assert.Equal(t, schema.ErrCodeValidation, result.Errors[0].Code)

	result = v.Validate(&schema.ActionPlan{})
	require.False(t, result.Valid())
	assert.Equal(t, "steps", result.Errors[0].Path)
}

func TestValidate_DuplicateStepID(t *testing.T) {
	v := NewPlanValidator(nil)
	plan := &schema.ActionPlan{Steps: []schema.ActionStep{
		step("dup", "email"),
		step("dup", "email"),
	}}

	result := v.Validate(plan)
	require.False(t, result.Valid())
	assert.Equal(t, schema.ErrCodeConflict, result.Errors[0].Code)
}

func TestValidate_EmptyStepID(t *testing.T) {
	v := NewPlanValidator(nil)
	plan := &schema.ActionPlan{Steps: []schema.ActionStep{
		{Type: "email", Action: "send"},
	}}

	result := v.Validate(plan)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "step id is empty")
}

func TestValidate_UnknownDependency(t *testing.T) {
	v := NewPlanValidator(nil)
	plan := &schema.ActionPlan{Steps: []schema.ActionStep{
		step("step-1", "email", "ghost"),
	}}

	result := v.Validate(plan)
	require.False(t, result.Valid())
	assert.Equal(t, schema.ErrCodeUnknownDependency, result.Errors[0].Code)
	assert.Contains(t, result.Errors[0].Message, "ghost")
}

func TestValidate_UnknownRequiresRef(t *testing.T) {
	v := NewPlanValidator(nil)
	plan := &schema.ActionPlan{Steps: []schema.ActionStep{
		step("step-1", "email"),
		{ID: "step-2", Type: "email", Action: "send", Requires: []schema.Requirement{
			{StepID: "missing"},
		}},
	}}

	result := v.Validate(plan)
	require.False(t, result.Valid())
	assert.Equal(t, schema.ErrCodeUnknownDependency, result.Errors[0].Code)
}

func TestValidate_SelfDependency(t *testing.T) {
	v := NewPlanValidator(nil)
	plan := &schema.ActionPlan{Steps: []schema.ActionStep{
		step("loop", "email", "loop"),
	}}

	result := v.Validate(plan)
	require.False(t, result.Valid())
	assert.Equal(t, schema.ErrCodeCycleDetected, result.Errors[0].Code)
}

func TestValidate_UnknownStepType(t *testing.T) {
	v := NewPlanValidator(fakeLookup{"email": true})
	plan := &schema.ActionPlan{Steps: []schema.ActionStep{
		step("step-1", "teleport"),
	}}

	result := v.Validate(plan)
	require.False(t, result.Valid())
	assert.Equal(t, schema.ErrCodeUnknownStepType, result.Errors[0].Code)
}

func TestValidate_InterventionStepSkipsAdapterCheck(t *testing.T) {
	v := NewPlanValidator(fakeLookup{"email": true})
	plan := &schema.ActionPlan{Steps: []schema.ActionStep{
		{ID: "ask", Type: "intervention", Action: "clarify",
			Intervention: &schema.InterventionSpec{Prompt: "which one?"}},
		step("step-1", "email", "ask"),
	}}

	result := v.Validate(plan)
	assert.True(t, result.Valid())
}

func TestValidate_CollectsMultipleErrors(t *testing.T) {
	v := NewPlanValidator(fakeLookup{"email": true})
	plan := &schema.ActionPlan{Steps: []schema.ActionStep{
		step("dup", "email", "ghost"),
		step("dup", "fax"),
	}}

	result := v.Validate(plan)
	require.False(t, result.Valid())
	assert.GreaterOrEqual(t, len(result.Errors), 3)
}
