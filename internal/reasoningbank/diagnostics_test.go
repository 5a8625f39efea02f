package reasoningbank

import (
	"context"
	"testing"
)

func TestDiagnosticSimilarityReportInsufficientEntries(t *testing.T) {
	repo := newFakeRepo()
	repo.put(MemoryRecord{ID: "only", Status: StatusActive, Embedding: []float32{1, 0}})

	e := NewConsolidationEngine(repo, DefaultConfig(), nil, nil)
	report, err := e.DiagnosticSimilarityReport(context.Background())
	if err != nil {
		t.Fatalf("DiagnosticSimilarityReport failed: %v", err)
	}
	if report.Recommendation != "insufficient entries for similarity analysis" {
		t.Fatalf("expected insufficient-entries recommendation, got %q", report.Recommendation)
	}
}

func TestDiagnosticSimilarityReportDoesNotMutateStore(t *testing.T) {
	repo := newFakeRepo()
	repo.put(MemoryRecord{ID: "a", Status: StatusActive, Embedding: []float32{1, 0}})
	repo.put(MemoryRecord{ID: "b", Status: StatusActive, Embedding: []float32{1, 0}})

	e := NewConsolidationEngine(repo, DefaultConfig(), nil, nil)
	report, err := e.DiagnosticSimilarityReport(context.Background())
	if err != nil {
		t.Fatalf("DiagnosticSimilarityReport failed: %v", err)
	}
	if report.AverageSimilarity < 0.99 {
		t.Fatalf("expected near-1.0 similarity for identical embeddings, got %v", report.AverageSimilarity)
	}

	all, _ := repo.ScanAll(context.Background(), 0)
	if len(all) != 2 {
		t.Fatalf("expected the diagnostic to leave both records active and present, got %d", len(all))
	}
}
