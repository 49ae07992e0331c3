// Package planner turns a free-text message into an ActionPlan. The actual
// planning is delegated to an Oracle (an LLM in production); this package
// owns the output contract: drafts are schema-validated and anything
// malformed degrades to a single generic step instead of an error, because a
// bad draft must never lose the user's message.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/valetiq/valet/internal/logging"
	"github.com/valetiq/valet/pkg/schema"
)

// Oracle produces a raw draft plan for a message. Implementations may be
// remote and slow; the caller bounds them via ctx.
type Oracle interface {
	Draft(ctx context.Context, message string, entities []schema.CachedEntity) (json.RawMessage, error)
}

// GenericStepType is the step type of the fallback plan; its adapter answers
// the user directly without structured operations.
const GenericStepType = "general"

// draftSchemaJSON validates the oracle output contract.
const draftSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://valetiq.dev/schemas/draft-plan.json",
  "type": "object",
  "required": ["steps"],
  "properties": {
    "isMultiStep": { "type": "boolean" },
    "summary": { "type": "string" },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["type", "action"],
        "properties": {
          "id": { "type": "string", "minLength": 1 },
          "type": { "type": "string", "minLength": 1 },
          "action": { "type": "string", "minLength": 1 },
          "params": { "type": "object" },
          "description": { "type": "string" },
          "depends_on": { "type": "array", "items": { "type": "string" } },
          "condition": { "type": "string" },
          "requires": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["step_id"],
              "properties": {
                "step_id": { "type": "string" },
                "field": { "type": "string" },
                "effect": { "type": "string", "enum": ["blocks", "enhances", "optional"] },
                "strategy": { "type": "string", "enum": ["wait", "skip", "fallback", "ask_user"] }
              }
            }
          }
        }
      }
    }
  }
}`

// draftPlan is the oracle output shape.
type draftPlan struct {
	IsMultiStep bool        `json:"isMultiStep"`
	Summary     string      `json:"summary"`
	Steps       []draftStep `json:"steps"`
}

type draftStep struct {
	ID          string               `json:"id"`
	Type        string               `json:"type"`
	Action      string               `json:"action"`
	Params      map[string]any       `json:"params"`
	Description string               `json:"description"`
	DependsOn   []string             `json:"depends_on"`
	Condition   string               `json:"condition"`
	Requires    []schema.Requirement `json:"requires"`
}

// Planner validates and normalizes oracle drafts into ActionPlans.
type Planner struct {
	oracle      Oracle
	draftSchema *jsonschema.Schema
	logger      *slog.Logger
}

// New creates a Planner around an oracle.
func New(oracle Oracle, logger *slog.Logger) (*Planner, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(draftSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal draft schema: %w", err)
	}
	if err := c.AddResource("https://valetiq.dev/schemas/draft-plan.json", doc); err != nil {
		return nil, fmt.Errorf("add draft schema resource: %w", err)
	}
	compiled, err := c.Compile("https://valetiq.dev/schemas/draft-plan.json")
	if err != nil {
		return nil, fmt.Errorf("compile draft schema: %w", err)
	}

	return &Planner{oracle: oracle, draftSchema: compiled, logger: logger}, nil
}

// Plan asks the oracle for a draft and normalizes it. Oracle transport
// errors surface; malformed output does not.
func (p *Planner) Plan(ctx context.Context, message string, entities []schema.CachedEntity) (*schema.ActionPlan, error) {
	raw, err := p.oracle.Draft(ctx, message, entities)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodePlannerOutput, "planning oracle call failed").WithCause(err)
	}
	return p.Normalize(ctx, raw, message), nil
}

// Normalize turns raw oracle output into an ActionPlan, falling back to a
// single generic step when the draft is malformed or violates the contract.
func (p *Planner) Normalize(ctx context.Context, raw json.RawMessage, message string) *schema.ActionPlan {
	log := logging.LogWith(ctx, p.logger)

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		log.Warn("oracle output is not JSON, falling back to generic step", "error", err.Error())
		return p.fallback(message)
	}
	if err := p.draftSchema.Validate(doc); err != nil {
		log.Warn("oracle output violates draft contract, falling back to generic step", "error", err.Error())
		return p.fallback(message)
	}

	var draft draftPlan
	if err := json.Unmarshal(raw, &draft); err != nil {
		log.Warn("oracle output undecodable, falling back to generic step", "error", err.Error())
		return p.fallback(message)
	}

	steps := make([]schema.ActionStep, len(draft.Steps))
	for i, d := range draft.Steps {
		id := d.ID
		if id == "" {
			id = fmt.Sprintf("step-%d", i+1)
		}
		steps[i] = schema.ActionStep{
			ID:          id,
			Type:        d.Type,
			Action:      d.Action,
			Params:      d.Params,
			Description: d.Description,
			State:       schema.StepStatePending,
			DependsOn:   d.DependsOn,
			Condition:   d.Condition,
			Requires:    d.Requires,
		}
	}

	return &schema.ActionPlan{
		Steps:           steps,
		OriginalMessage: message,
		Summary:         draft.Summary,
		State:           schema.PlanStateCreated,
		IsMultiStep:     draft.IsMultiStep || len(steps) > 1,
	}
}

// fallback preserves the user's message as a single generic step.
func (p *Planner) fallback(message string) *schema.ActionPlan {
	return &schema.ActionPlan{
		Steps: []schema.ActionStep{{
			ID:          "step-1",
			Type:        GenericStepType,
			Action:      "respond",
			Params:      map[string]any{"message": message},
			Description: "handle the request directly",
			State:       schema.StepStatePending,
		}},
		OriginalMessage: message,
		State:           schema.PlanStateCreated,
		IsMultiStep:     false,
	}
}
