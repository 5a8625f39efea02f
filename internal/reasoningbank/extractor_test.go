package reasoningbank

import (
	"context"
	"fmt"
	"testing"
)

type stubGenerator struct {
	response string
	err      error
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	return s.response, s.err
}

type stubEmbedder struct {
	dim int
	err error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string, kind EmbedKind) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	v := make([]float32, s.dim)
	v[0] = 1
	return v, nil
}

func (s *stubEmbedder) Dimension() int { return s.dim }

func TestExtractFromRejectionStoresValidCandidates(t *testing.T) {
	gen := &stubGenerator{response: `[{"title":"t1","description":"d1","content":"c1","category":"code_rejection"}]`}
	embedder := &stubEmbedder{dim: 3}
	repo := newFakeRepo()
	ex := NewExtractor(repo, gen, embedder, nil)

	ids := ex.ExtractFromRejection(context.Background(), "task", "rejected code", "lint failure")
	if len(ids) != 1 {
		t.Fatalf("expected 1 stored candidate, got %d", len(ids))
	}
	rec, _ := repo.Get(context.Background(), ids[0])
	if rec == nil || rec.Title != "t1" || rec.Source != SourceBuildRejection {
		t.Fatalf("unexpected stored record: %+v", rec)
	}
}

func TestExtractToleratesFencedJSON(t *testing.T) {
	gen := &stubGenerator{response: "```json\n[{\"title\":\"t\",\"description\":\"d\",\"content\":\"c\",\"category\":\"build_failure\"}]\n```"}
	embedder := &stubEmbedder{dim: 2}
	repo := newFakeRepo()
	ex := NewExtractor(repo, gen, embedder, nil)

	ids := ex.ExtractFromBuildFailure(context.Background(), "task", "build log", "compile error")
	if len(ids) != 1 {
		t.Fatalf("expected 1 stored candidate from fenced JSON, got %d", len(ids))
	}
}

func TestExtractEmptyArrayYieldsNoCandidates(t *testing.T) {
	gen := &stubGenerator{response: "[]"}
	embedder := &stubEmbedder{dim: 2}
	repo := newFakeRepo()
	ex := NewExtractor(repo, gen, embedder, nil)

	ids := ex.ExtractFromRejection(context.Background(), "task", "content", "reason")
	if len(ids) != 0 {
		t.Fatalf("expected no candidates for an empty array response, got %d", len(ids))
	}
}

func TestExtractGeneratorFailureYieldsEmptySlice(t *testing.T) {
	gen := &stubGenerator{err: fmt.Errorf("llm down")}
	embedder := &stubEmbedder{dim: 2}
	repo := newFakeRepo()
	ex := NewExtractor(repo, gen, embedder, nil)

	ids := ex.ExtractFromRejection(context.Background(), "task", "content", "reason")
	if ids != nil {
		t.Fatalf("expected nil/empty result when generation fails, got %v", ids)
	}
}

func TestExtractMalformedJSONYieldsEmptySlice(t *testing.T) {
	gen := &stubGenerator{response: "not json at all"}
	embedder := &stubEmbedder{dim: 2}
	repo := newFakeRepo()
	ex := NewExtractor(repo, gen, embedder, nil)

	ids := ex.ExtractFromRejection(context.Background(), "task", "content", "reason")
	if len(ids) != 0 {
		t.Fatalf("expected no candidates for malformed JSON, got %d", len(ids))
	}
}

func TestExtractPartialEmbedFailureSkipsOnlyThatCandidate(t *testing.T) {
	gen := &stubGenerator{response: `[{"title":"good","description":"d","content":"c","category":"code_rejection"},{"title":"bad","description":"d","content":"c","category":"code_rejection"}]`}
	embedder := &failOnTitleEmbedder{fail: "bad"}
	repo := newFakeRepo()
	ex := NewExtractor(repo, gen, embedder, nil)

	ids := ex.ExtractFromRejection(context.Background(), "task", "content", "reason")
	if len(ids) != 1 {
		t.Fatalf("expected exactly 1 candidate to survive, got %d", len(ids))
	}
}

type failOnTitleEmbedder struct{ fail string }

func (f *failOnTitleEmbedder) Embed(ctx context.Context, text string, kind EmbedKind) ([]float32, error) {
	if len(text) >= len(f.fail) && text[:len(f.fail)] == f.fail {
		return nil, fmt.Errorf("embed failed for %s", f.fail)
	}
	return []float32{1, 2, 3}, nil
}

func (f *failOnTitleEmbedder) Dimension() int { return 3 }
