package llmadapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"manifold/internal/reasoningbank"
)

const defaultAnthropicMaxTokens int64 = 1024

// AnthropicGenerator is a TextGenerator backed by the Anthropic Messages API.
// Grounded on the teacher's anthropic.Client (internal/llm/anthropic/client.go),
// narrowed from multi-turn tool-using chat to single-prompt generation.
type AnthropicGenerator struct {
	sdk   anthropic.Client
	model string
}

// NewAnthropicGenerator constructs a generator.
func NewAnthropicGenerator(baseURL, apiKey, model string) *AnthropicGenerator {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &AnthropicGenerator{sdk: anthropic.NewClient(opts...), model: model}
}

func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string, opts reasoningbank.GenerateOptions) (string, error) {
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	resp, err := g.sdk.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llmadapter: anthropic generate: %w", err)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return sb.String(), nil
}
