package reasoningbank

import "context"

// EmbedKind distinguishes how an embedding will be used, since some
// embedding models project documents and queries differently.
type EmbedKind string

const (
	EmbedKindDocument EmbedKind = "RETRIEVAL_DOCUMENT"
	EmbedKindQuery    EmbedKind = "RETRIEVAL_QUERY"
)

// Embedder maps text to a fixed-dimension vector. Failure is always
// ErrEmbedder (wrapped).
type Embedder interface {
	Embed(ctx context.Context, text string, kind EmbedKind) ([]float32, error)
	// Dimension reports D, the fixed vector length this embedder produces.
	Dimension() int
}

// GenerateOptions bounds a TextGenerator call.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// TextGenerator is used only by Extractor to propose memory candidates from
// failure events.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Logger is structured info/warn/error/debug logging. Implementations MUST
// NOT emit raw memory content, task parameters, or credentials — only ids,
// counts, and timing, per the core's log-hygiene contract.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]any)
	Info(ctx context.Context, msg string, fields map[string]any)
	Warn(ctx context.Context, msg string, fields map[string]any)
	Error(ctx context.Context, msg string, err error, fields map[string]any)
}

// NoopLogger discards everything. Useful as a zero-value-safe default so
// callers that don't care about logging don't have to supply one.
type NoopLogger struct{}

func (NoopLogger) Debug(context.Context, string, map[string]any)      {}
func (NoopLogger) Info(context.Context, string, map[string]any)       {}
func (NoopLogger) Warn(context.Context, string, map[string]any)       {}
func (NoopLogger) Error(context.Context, string, error, map[string]any) {}
