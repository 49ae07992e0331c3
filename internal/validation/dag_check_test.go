package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valetiq/valet/pkg/schema"
)

func TestValidateDAG_AcyclicDiamond(t *testing.T) {
	plan := &schema.ActionPlan{Steps: []schema.ActionStep{
		step("a", "email"),
		step("b", "email", "a"),
		step("c", "email", "a"),
		step("d", "email", "b", "c"),
	}}

	result := validateDAG(plan)
	assert.True(t, result.Valid())
}

func TestValidateDAG_TwoStepCycle(t *testing.T) {
	plan := &schema.ActionPlan{Steps: []schema.ActionStep{
		step("a", "email", "b"),
		step("b", "email", "a"),
	}}

	result := validateDAG(plan)
	require.False(t, result.Valid())
	assert.Equal(t, schema.ErrCodeCycleDetected, result.Errors[0].Code)
	assert.Contains(t, result.Errors[0].Message, "a")
	assert.Contains(t, result.Errors[0].Message, "b")
}

func TestValidateDAG_CycleThroughRequires(t *testing.T) {
	plan := &schema.ActionPlan{Steps: []schema.ActionStep{
		{ID: "a", Type: "email", Action: "send", Requires: []schema.Requirement{{StepID: "c"}}},
		step("b", "email", "a"),
		step("c", "email", "b"),
	}}

	result := validateDAG(plan)
	require.False(t, result.Valid())
	assert.Equal(t, schema.ErrCodeCycleDetected, result.Errors[0].Code)
}

func TestValidateDAG_CycleDoesNotImplicateUpstreamSteps(t *testing.T) {
	plan := &schema.ActionPlan{Steps: []schema.ActionStep{
		step("root", "email"),
		step("x", "email", "root", "y"),
		step("y", "email", "x"),
	}}

	result := validateDAG(plan)
	require.False(t, result.Valid())
	assert.NotContains(t, result.Errors[0].Message, "root")
}

func TestValidateDAG_IgnoresUnknownReferences(t *testing.T) {
	// Unknown refs are the semantic stage's problem; the DAG stage must not
	// treat them as cycle members.
	plan := &schema.ActionPlan{Steps: []schema.ActionStep{
		step("a", "email", "ghost"),
		step("b", "email", "a"),
	}}

	result := validateDAG(plan)
	assert.True(t, result.Valid())
}

func TestValidate_CyclicPlanNeverValid(t *testing.T) {
	v := NewPlanValidator(nil)
	plan := &schema.ActionPlan{Steps: []schema.ActionStep{
		step("a", "email", "c"),
		step("b", "email", "a"),
		step("c", "email", "b"),
	}}

	result := v.Validate(plan)
	require.False(t, result.Valid())
	assert.Error(t, result.ToError())
}
