package reasoningbank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// candidateMemory is the shape Extractor asks the TextGenerator to produce.
// Field names match the prompt's schema description exactly.
type candidateMemory struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	Category    string `json:"category"`
}

// Extractor turns a failed build/task into zero or more candidate memories,
// embeds and validates each, and persists the ones that pass. Grounded on
// the teacher's generateStrategyCard/generateSummary prompts (remem.go,
// evolving.go), generalized from "one lesson" to "a JSON array of lessons"
// since a single rejection or failure can teach more than one thing.
type Extractor struct {
	repo      MemoryRepository
	generator TextGenerator
	embedder  Embedder
	logger    Logger
}

// NewExtractor constructs an Extractor. logger may be nil.
func NewExtractor(repo MemoryRepository, generator TextGenerator, embedder Embedder, logger Logger) *Extractor {
	if logger == nil {
		logger = NoopLogger{}
	}
	return &Extractor{repo: repo, generator: generator, embedder: embedder, logger: logger}
}

// ExtractFromRejection implements §4.8's code-rejection path: a generated
// artifact was rejected (by review, by a linter, by a human) before ever
// running. Top-level failures (generation, parsing) are swallowed and
// reported as an empty slice; partial per-candidate failures are logged and
// skipped, never aborting the rest of the batch.
func (e *Extractor) ExtractFromRejection(ctx context.Context, taskDescription, rejectedContent, rejectionReason string) []string {
	prompt := rejectionPrompt(taskDescription, rejectedContent, rejectionReason)
	return e.extract(ctx, prompt, SourceBuildRejection)
}

// ExtractFromBuildFailure implements §4.8's build-failure path: a generated
// artifact ran (compiled, built, executed) and failed.
func (e *Extractor) ExtractFromBuildFailure(ctx context.Context, taskDescription, buildOutput, failureReason string) []string {
	prompt := buildFailurePrompt(taskDescription, buildOutput, failureReason)
	return e.extract(ctx, prompt, SourceBuildFailure)
}

func (e *Extractor) extract(ctx context.Context, prompt string, source Source) []string {
	raw, err := e.generator.Generate(ctx, prompt, GenerateOptions{Temperature: 0.1, MaxTokens: 1024})
	if err != nil {
		e.logger.Warn(ctx, "reasoningbank: extractor generate failed", map[string]any{"error": err.Error()})
		return nil
	}

	candidates, err := parseCandidates(raw)
	if err != nil {
		e.logger.Warn(ctx, "reasoningbank: extractor parse failed", map[string]any{"error": err.Error()})
		return nil
	}

	var ids []string
	for _, c := range candidates {
		id, err := e.store(ctx, c, source)
		if err != nil {
			e.logger.Warn(ctx, "reasoningbank: extractor candidate rejected", map[string]any{"title": c.Title, "error": err.Error()})
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (e *Extractor) store(ctx context.Context, c candidateMemory, source Source) (string, error) {
	category := Category(c.Category)
	if !validCategories[category] {
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalidRecord, c.Category)
	}
	embedding, err := e.embedder.Embed(ctx, c.Title+" "+c.Description+" "+c.Content, EmbedKindDocument)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEmbedder, err)
	}
	rec := MemoryRecord{
		Title:       c.Title,
		Description: c.Description,
		Content:     c.Content,
		Category:    category,
		Source:      source,
		Embedding:   embedding,
	}
	return e.repo.Add(ctx, rec)
}

// parseCandidates tolerates a bare JSON array or one fenced in a markdown
// code block, since LLM output commonly wraps JSON in ```json ... ``` even
// when explicitly asked for raw JSON.
func parseCandidates(raw string) ([]candidateMemory, error) {
	body := stripCodeFence(raw)
	var candidates []candidateMemory
	if err := json.Unmarshal([]byte(body), &candidates); err != nil {
		return nil, fmt.Errorf("parse candidate memories: %w", err)
	}
	return candidates, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		first := strings.TrimSpace(s[:nl])
		if first == "json" || first == "" {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func rejectionPrompt(taskDescription, rejectedContent, rejectionReason string) string {
	return fmt.Sprintf(`You distill reusable lessons from rejected code so future attempts avoid the same mistake.

Task: %s

Rejected content:
%s

Rejection reason: %s

Produce a JSON array (no prose, no markdown fence) of 0-3 objects, each:
{"title": "...", "description": "...", "content": "...", "category": "code_rejection"}

Keep each field under 200 words. Return [] if nothing generalizable was learned.`,
		taskDescription, truncateText(rejectedContent, 4000), rejectionReason)
}

func buildFailurePrompt(taskDescription, buildOutput, failureReason string) string {
	return fmt.Sprintf(`You distill reusable lessons from build/execution failures so future attempts avoid the same mistake.

Task: %s

Build output:
%s

Failure reason: %s

Produce a JSON array (no prose, no markdown fence) of 0-3 objects, each:
{"title": "...", "description": "...", "content": "...", "category": "build_failure"}

Keep each field under 200 words. Return [] if nothing generalizable was learned.`,
		taskDescription, truncateText(buildOutput, 4000), failureReason)
}

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
