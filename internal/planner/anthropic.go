package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/valetiq/valet/pkg/schema"
)

// AnthropicOracle drafts plans with the Anthropic Messages API.
type AnthropicOracle struct {
	client anthropic.Client
	model  anthropic.Model
}

// AnthropicOracleOptions configures the oracle.
type AnthropicOracleOptions struct {
	APIKey string
	Model  anthropic.Model
}

// NewAnthropicOracle creates an oracle backed by the Anthropic API.
func NewAnthropicOracle(opts AnthropicOracleOptions) *AnthropicOracle {
	if opts.Model == "" {
		opts.Model = anthropic.ModelClaudeSonnet4_20250514
	}
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	return &AnthropicOracle{
		client: anthropic.NewClient(clientOpts...),
		model:  opts.Model,
	}
}

const draftSystemPrompt = `You translate a personal assistant request into an
executable plan. Respond with a single JSON object only, no prose:
{"isMultiStep": bool, "summary": "...", "steps": [{"id": "step-1",
"type": "email|calendar|contacts|general", "action": "...", "params": {...},
"description": "..."}]}. Steps run strictly in order. Reference a person you
cannot fully identify as the placeholder {{ENTITY:<slug>}} inside params.`

// Draft asks the model for a plan draft. The raw text is returned for the
// Planner to validate; this method only isolates the JSON body.
func (o *AnthropicOracle) Draft(ctx context.Context, message string, entities []schema.CachedEntity) (json.RawMessage, error) {
	var sb strings.Builder
	sb.WriteString("Request: ")
	sb.WriteString(message)
	if len(entities) > 0 {
		sb.WriteString("\n\nKnown entities:")
		for _, e := range entities {
			sb.WriteString(fmt.Sprintf("\n- %s (%s): %s", e.Value, e.Type, e.Address()))
		}
	}

	msg, err := o.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     o.model,
		MaxTokens: 2048,
		System: []anthropic.TextBlockParam{
			{Text: draftSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(sb.String())),
		},
	})
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "draft request failed").WithCause(err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return extractJSONObject(text), nil
}

// extractJSONObject isolates the outermost JSON object from model output
// that may be wrapped in prose or code fences. Returns the input unchanged
// when no braces are found; the Planner's fallback handles it.
func extractJSONObject(text string) json.RawMessage {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return json.RawMessage(text)
	}
	return json.RawMessage(text[start : end+1])
}
