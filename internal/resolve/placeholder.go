// Package resolve rewrites unresolved-recipient placeholders in plan step
// params using a pool of resolved entities. Placeholders follow the
// {{ENTITY:<slug>}} grammar; a placeholder matches an entity when the slug of
// the entity's value equals the placeholder slug.
package resolve

import (
	"sort"
	"strings"

	"github.com/valetiq/valet/pkg/schema"
)

// Apply returns a copy of the plan with every matching placeholder in step
// params replaced by the entity's resolved address. Unmatched placeholders
// are left intact. Apply is idempotent: patched values contain no
// placeholder tokens, so re-running is a no-op.
func Apply(plan schema.ActionPlan, entities []schema.CachedEntity) schema.ActionPlan {
	if len(entities) == 0 {
		return plan
	}

	bySlug := make(map[string]schema.CachedEntity, len(entities))
	for _, e := range entities {
		slug := schema.Slugify(e.Value)
		if slug == "" {
			continue
		}
		bySlug[slug] = e
	}

	steps := make([]schema.ActionStep, len(plan.Steps))
	copy(steps, plan.Steps)
	for i, step := range steps {
		if len(step.Params) == 0 {
			continue
		}
		steps[i] = step.WithParams(patchValue(step.Params, bySlug).(map[string]any))
	}
	plan.Steps = steps
	return plan
}

// Bind replaces every placeholder with the given slug by a literal value,
// regardless of the entity pool. Used when an intervention reply supplies
// the missing value verbatim.
func Bind(plan schema.ActionPlan, slug, value string) schema.ActionPlan {
	steps := make([]schema.ActionStep, len(plan.Steps))
	copy(steps, plan.Steps)
	for i, step := range steps {
		if len(step.Params) == 0 {
			continue
		}
		patched := patchValue(step.Params, map[string]schema.CachedEntity{
			slug: {Type: schema.EntityEmail, Value: value, Email: value},
		}).(map[string]any)
		steps[i] = step.WithParams(patched)
	}
	plan.Steps = steps
	return plan
}

// HasUnresolved reports whether any step param still contains a placeholder.
func HasUnresolved(plan schema.ActionPlan) bool {
	for _, step := range plan.Steps {
		if anyString(step.Params, func(s string) bool {
			return schema.PlaceholderPattern().MatchString(s)
		}) {
			return true
		}
	}
	return false
}

// UnresolvedSlugs enumerates the distinct unresolved placeholder slugs across
// all steps, sorted for deterministic output.
func UnresolvedSlugs(plan schema.ActionPlan) []string {
	seen := make(map[string]struct{})
	for _, step := range plan.Steps {
		anyString(step.Params, func(s string) bool {
			for _, m := range schema.PlaceholderPattern().FindAllStringSubmatch(s, -1) {
				seen[strings.ToLower(m[1])] = struct{}{}
			}
			return false
		})
	}
	slugs := make([]string, 0, len(seen))
	for slug := range seen {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

// patchValue walks a param value, rewriting placeholder tokens in strings.
// Maps and slices are copied; everything else passes through unchanged.
func patchValue(v any, bySlug map[string]schema.CachedEntity) any {
	switch val := v.(type) {
	case string:
		return schema.PlaceholderPattern().ReplaceAllStringFunc(val, func(token string) string {
			m := schema.PlaceholderPattern().FindStringSubmatch(token)
			if e, ok := bySlug[strings.ToLower(m[1])]; ok {
				return e.Address()
			}
			return token
		})
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = patchValue(inner, bySlug)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = patchValue(inner, bySlug)
		}
		return out
	default:
		return v
	}
}

// anyString walks every string in a param value and reports whether fn
// returned true for any of them.
func anyString(v any, fn func(string) bool) bool {
	switch val := v.(type) {
	case string:
		return fn(val)
	case map[string]any:
		for _, inner := range val {
			if anyString(inner, fn) {
				return true
			}
		}
	case []any:
		for _, inner := range val {
			if anyString(inner, fn) {
				return true
			}
		}
	}
	return false
}
