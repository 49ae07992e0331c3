package contacts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/valetiq/valet/pkg/schema"
)

// AnthropicSuggester proposes name variants (nicknames, phonetic and cultural
// variants) using the Anthropic Messages API. It implements VariantSuggester;
// resolution works unchanged when it is absent or erroring.
type AnthropicSuggester struct {
	client anthropic.Client
	model  anthropic.Model
}

// AnthropicSuggesterOptions configures the suggester.
type AnthropicSuggesterOptions struct {
	APIKey string
	Model  anthropic.Model
}

// NewAnthropicSuggester creates a suggester backed by the Anthropic API.
func NewAnthropicSuggester(opts AnthropicSuggesterOptions) *AnthropicSuggester {
	if opts.Model == "" {
		opts.Model = anthropic.ModelClaudeSonnet4_20250514
	}
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	return &AnthropicSuggester{
		client: anthropic.NewClient(clientOpts...),
		model:  opts.Model,
	}
}

const variantsPrompt = `Given the personal name %q, list up to 5 plausible variants a contact
directory might hold instead: common nicknames, formal forms, phonetic or
cultural spellings. Respond with a JSON array of strings only.`

// Variants asks the model for plausible directory variants of name.
func (s *AnthropicSuggester) Variants(ctx context.Context, name string) ([]string, error) {
	msg, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     s.model,
		MaxTokens: 256,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(fmt.Sprintf(variantsPrompt, name))),
		},
	})
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "variant suggestion request failed").WithCause(err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	variants, err := parseVariants(text)
	if err != nil {
		return nil, err
	}

	// Never echo the original name back as a variant.
	out := variants[:0]
	for _, v := range variants {
		if !strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(name)) && strings.TrimSpace(v) != "" {
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out, nil
}

// parseVariants extracts a JSON string array from model output, tolerating
// surrounding prose or code fences.
func parseVariants(text string) ([]string, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end <= start {
		return nil, schema.NewError(schema.ErrCodeExecution, "no JSON array in variant response")
	}
	var variants []string
	if err := json.Unmarshal([]byte(text[start:end+1]), &variants); err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "malformed variant response").WithCause(err)
	}
	return variants, nil
}

var _ VariantSuggester = (*AnthropicSuggester)(nil)
