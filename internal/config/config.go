// Package config holds the small set of YAML-tagged configuration structs
// ReasoningBank's capability adapters need: how to reach the embedding
// service and the text-generation service. Field names and defaulting style
// follow the wider project's convention of plain structs with yaml tags and
// a normalizing constructor, rather than defaults encoded in struct tags.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EmbeddingConfig describes an HTTP embedding endpoint.
type EmbeddingConfig struct {
	BaseURL   string            `yaml:"base_url"`
	Path      string            `yaml:"path"`
	Model     string            `yaml:"model"`
	APIKey    string            `yaml:"api_key"`
	APIHeader string            `yaml:"api_header"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Timeout   int               `yaml:"timeout_seconds"`
	Dimension int               `yaml:"dimension"`
}

func (c *EmbeddingConfig) applyDefaults() {
	if c.Path == "" {
		c.Path = "/v1/embeddings"
	}
	if c.APIHeader == "" {
		c.APIHeader = "Authorization"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30
	}
	if c.Dimension <= 0 {
		c.Dimension = 768
	}
}

// TimeoutDuration returns the configured timeout as a time.Duration.
func (c EmbeddingConfig) TimeoutDuration() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// TextGenConfig describes an LLM text-generation endpoint used by the
// Extractor to propose memory candidates from failure events.
type TextGenConfig struct {
	Provider    string  `yaml:"provider"` // "openai" | "anthropic"
	BaseURL     string  `yaml:"base_url,omitempty"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     int     `yaml:"timeout_seconds"`
}

func (c *TextGenConfig) applyDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	if c.Timeout <= 0 {
		c.Timeout = 60
	}
}

func (c TextGenConfig) TimeoutDuration() time.Duration {
	if c.Timeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// CapabilitiesConfig bundles the embedding and text-generation endpoints,
// the shape ReasoningBank's adapters are constructed from.
type CapabilitiesConfig struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	TextGen   TextGenConfig   `yaml:"text_generation"`
}

// Load reads a YAML file into a CapabilitiesConfig, applying field defaults
// the same way the wider project's loader normalizes zero values after
// unmarshal instead of relying on struct-tag defaults.
func Load(path string) (*CapabilitiesConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	var cfg CapabilitiesConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.Embedding.applyDefaults()
	cfg.TextGen.applyDefaults()
	return &cfg, nil
}
