// Package llmadapter adapts the third-party chat-completion SDKs the teacher
// already depends on (openai-go/v2, anthropic-sdk-go) to the reasoningbank
// TextGenerator capability: a single prompt in, a single string out. The
// teacher's own internal/llm providers are full multi-turn chat clients with
// tool calling and streaming; Extractor only ever needs one-shot generation,
// so these adapters are a deliberate narrowing, not a port.
package llmadapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/openai/openai-go/v2/shared"

	"manifold/internal/reasoningbank"
)

// OpenAIGenerator is a TextGenerator backed by the OpenAI chat completions
// endpoint (or any OpenAI-compatible endpoint reachable via BaseURL).
// Grounded on the teacher's CallLLM (internal/llm/openai_client.go),
// including its isThinkingModel max-token-param switch.
type OpenAIGenerator struct {
	client openai.Client
	model  string
}

// NewOpenAIGenerator constructs a generator. baseURL may be empty to use the
// default OpenAI API.
func NewOpenAIGenerator(baseURL, apiKey, model string) *OpenAIGenerator {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIGenerator{client: openai.NewClient(opts...), model: model}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, opts reasoningbank.GenerateOptions) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: param.NewOpt(opts.Temperature),
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	if isThinkingModel(g.model) {
		params.MaxCompletionTokens = param.NewOpt(int64(maxTokens))
	} else {
		params.MaxTokens = param.NewOpt(int64(maxTokens))
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llmadapter: openai generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llmadapter: openai generate: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// isThinkingModel matches the "o<int>-*" reasoning-model naming pattern
// (e.g. o4-mini, o1-pro), which require MaxCompletionTokens instead of
// MaxTokens.
func isThinkingModel(model string) bool {
	model = strings.ToLower(model)
	if !strings.HasPrefix(model, "o") {
		return false
	}
	rest := model[1:]
	i := 0
	for ; i < len(rest) && rest[i] >= '0' && rest[i] <= '9'; i++ {
	}
	return i > 0 && i < len(rest) && rest[i] == '-'
}
