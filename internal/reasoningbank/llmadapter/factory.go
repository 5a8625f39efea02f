package llmadapter

import (
	"fmt"

	"manifold/internal/config"
	"manifold/internal/reasoningbank"
)

// Build constructs a TextGenerator from a TextGenConfig. Grounded on the
// teacher's providers.Build (internal/llm/providers/factory.go)'s
// switch-on-provider-name shape.
func Build(cfg config.TextGenConfig) (reasoningbank.TextGenerator, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIGenerator(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	case "anthropic":
		return NewAnthropicGenerator(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("llmadapter: unsupported provider %q", cfg.Provider)
	}
}
