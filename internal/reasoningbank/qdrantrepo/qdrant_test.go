package qdrantrepo

import (
	"context"
	"os"
	"testing"

	"github.com/joho/godotenv"

	"manifold/internal/reasoningbank"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	_ = godotenv.Load("../../../.env")
	_ = godotenv.Load("../../../example.env")

	dsn := os.Getenv("QDRANT_URL")
	if dsn == "" {
		t.Skip("QDRANT_URL not set")
	}
	ctx := context.Background()
	repo, err := New(ctx, dsn, "reasoningbank_test", 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestQdrantAddGetRetrieveApplyMerge(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.Add(ctx, reasoningbank.MemoryRecord{
		Title:       "qdrant-test",
		Description: "d",
		Content:     "c",
		Category:    reasoningbank.CategoryBuildFailure,
		Source:      reasoningbank.SourceBuildFailure,
		Embedding:   []float32{1, 0, 0},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	t.Cleanup(func() { _ = repo.Delete(context.Background(), id) })

	got, err := repo.Get(ctx, id)
	if err != nil || got == nil || got.Title != "qdrant-test" {
		t.Fatalf("Get: rec=%v err=%v", got, err)
	}

	hits, err := repo.RetrieveByEmbedding(ctx, []float32{1, 0, 0}, 5, reasoningbank.Filters{})
	if err != nil {
		t.Fatalf("RetrieveByEmbedding: %v", err)
	}
	found := false
	for _, h := range hits {
		if h.ID == id {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected inserted record among retrieval hits, got %v", hits)
	}

	if err := repo.ApplyMerge(ctx, id, 1, 1, 0); err != nil {
		t.Fatalf("ApplyMerge: %v", err)
	}
	rec, err := repo.Get(ctx, id)
	if err != nil || rec.TimesUsedInSuccess != 1 {
		t.Fatalf("after ApplyMerge: rec=%+v err=%v", rec, err)
	}

	if err := repo.Archive(ctx, id); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	all, err := repo.ScanAll(ctx, 1000)
	if err != nil {
		t.Fatalf("ScanAll: %v", err)
	}
	for _, r := range all {
		if r.ID == id {
			t.Fatalf("archived record should not appear in ScanAll")
		}
	}
}
