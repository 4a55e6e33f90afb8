// Package anthropic is the production ports.LLMProvider binding, backed by
// the Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentmeshio/meshcore/internal/ports"
)

const defaultMaxTokens = 1024

// Provider calls the Anthropic Messages API to satisfy ports.LLMProvider.
type Provider struct {
	client anthropic.Client
}

// New constructs a Provider. apiKey may be empty to fall back to the
// ANTHROPIC_API_KEY environment variable, per the SDK's default resolution.
func New(apiKey string) *Provider {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &Provider{client: anthropic.NewClient(opts...)}
}

// Generate sends prompt as a single user turn and returns the concatenated
// text of the model's reply.
func (p *Provider) Generate(ctx context.Context, prompt, model string, params ports.GenerateParams) (string, error) {
	maxTokens := int64(defaultMaxTokens)
	if v, ok := params["max_tokens"]; ok {
		if n, ok := v.(int); ok {
			maxTokens = int64(n)
		}
	}

	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if v, ok := params["temperature"]; ok {
		if f, ok := v.(float64); ok {
			req.Temperature = anthropic.Float(f)
		}
	}

	msg, err := p.client.Messages.New(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrLLMUnavailable, err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", ports.ErrLLMInvalidOutput
	}
	return text, nil
}

// GenerateBatch issues independent Generate calls; the Anthropic API has no
// native batch-of-prompts endpoint for synchronous single-turn completions.
func (p *Provider) GenerateBatch(ctx context.Context, prompts []string, model string, params ports.GenerateParams) ([]string, []error) {
	texts := make([]string, len(prompts))
	errs := make([]error, len(prompts))
	for i, prompt := range prompts {
		texts[i], errs[i] = p.Generate(ctx, prompt, model, params)
	}
	return texts, errs
}
