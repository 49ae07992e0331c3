package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valetiq/valet/pkg/schema"
)

func emailEntity(value, email string) schema.CachedEntity {
	return schema.CachedEntity{Type: schema.EntityEmail, Value: value, Email: email}
}

func planWithParams(params map[string]any) schema.ActionPlan {
	return schema.ActionPlan{
		Steps: []schema.ActionStep{
			{ID: "send", Type: "email", Action: "send_email", Params: params},
		},
	}
}

func TestApply_PatchesMatchingPlaceholder(t *testing.T) {
	plan := planWithParams(map[string]any{
		"to":      "{{ENTITY:richard-santin}}",
		"subject": "hello",
	})

	out := Apply(plan, []schema.CachedEntity{emailEntity("Richard Santin", "richard@example.com")})

	assert.Equal(t, "richard@example.com", out.Steps[0].Params["to"])
	assert.Equal(t, "hello", out.Steps[0].Params["subject"])
	// Original plan untouched.
	assert.Equal(t, "{{ENTITY:richard-santin}}", plan.Steps[0].Params["to"])
}

func TestApply_LeavesUnmatchedIntact(t *testing.T) {
	plan := planWithParams(map[string]any{"to": "{{ENTITY:jane-doe}}"})

	out := Apply(plan, []schema.CachedEntity{emailEntity("Richard Santin", "richard@example.com")})

	assert.Equal(t, "{{ENTITY:jane-doe}}", out.Steps[0].Params["to"])
	assert.True(t, HasUnresolved(out))
}

func TestApply_Idempotent(t *testing.T) {
	plan := planWithParams(map[string]any{
		"to": "{{ENTITY:richard-santin}}",
		"cc": []any{"{{ENTITY:jane-doe}}", "fixed@example.com"},
	})
	entities := []schema.CachedEntity{
		emailEntity("Richard Santin", "richard@example.com"),
		emailEntity("Jane Doe", "jane@example.com"),
	}

	once := Apply(plan, entities)
	twice := Apply(once, entities)

	assert.Equal(t, once, twice)
	assert.False(t, HasUnresolved(twice))
}

func TestApply_NestedParams(t *testing.T) {
	plan := planWithParams(map[string]any{
		"invite": map[string]any{
			"attendees": []any{"{{ENTITY:richard-santin}}"},
		},
	})

	out := Apply(plan, []schema.CachedEntity{emailEntity("Richard Santin", "richard@example.com")})

	invite := out.Steps[0].Params["invite"].(map[string]any)
	assert.Equal(t, []any{"richard@example.com"}, invite["attendees"])
}

func TestApply_CaseInsensitiveToken(t *testing.T) {
	plan := planWithParams(map[string]any{"to": "{{entity:Richard-Santin}}"})

	out := Apply(plan, []schema.CachedEntity{emailEntity("Richard Santin", "richard@example.com")})

	assert.Equal(t, "richard@example.com", out.Steps[0].Params["to"])
}

func TestUnresolvedSlugs_DistinctSorted(t *testing.T) {
	plan := schema.ActionPlan{
		Steps: []schema.ActionStep{
			{ID: "a", Params: map[string]any{"to": "{{ENTITY:zed}}", "cc": "{{ENTITY:anna}}"}},
			{ID: "b", Params: map[string]any{"to": "{{ENTITY:zed}}"}},
		},
	}

	assert.Equal(t, []string{"anna", "zed"}, UnresolvedSlugs(plan))
}

func TestUnresolvedSlugs_EmptyWhenResolved(t *testing.T) {
	plan := planWithParams(map[string]any{"to": "someone@example.com"})
	assert.Empty(t, UnresolvedSlugs(plan))
	assert.False(t, HasUnresolved(plan))
}

func TestBind_ReplacesVerbatim(t *testing.T) {
	plan := planWithParams(map[string]any{"to": "{{ENTITY:rich}}"})

	out := Bind(plan, "rich", "richard.santin@corp.example.com")

	require.False(t, HasUnresolved(out))
	assert.Equal(t, "richard.santin@corp.example.com", out.Steps[0].Params["to"])
}

func TestApply_EntityWithoutEmailUsesValue(t *testing.T) {
	plan := planWithParams(map[string]any{"when": "{{ENTITY:tomorrow}}"})

	out := Apply(plan, []schema.CachedEntity{{Type: schema.EntityDate, Value: "tomorrow"}})

	assert.Equal(t, "tomorrow", out.Steps[0].Params["when"])
}
