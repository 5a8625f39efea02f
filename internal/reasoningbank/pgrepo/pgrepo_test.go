package pgrepo

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"manifold/internal/reasoningbank"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	_ = godotenv.Load("../../../.env")
	_ = godotenv.Load("../../../example.env")

	dsn := os.Getenv("REASONINGBANK_DATABASE_URL")
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		t.Skip("DATABASE_URL/REASONINGBANK_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)

	repo := New(pool, 3)
	if err := repo.Init(ctx); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return repo
}

func TestPostgresAddGetUpdateArchiveDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.Add(ctx, reasoningbank.MemoryRecord{
		Title:       "pg-test",
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
	if err != nil || got == nil || got.Title != "pg-test" {
		t.Fatalf("Get: rec=%v err=%v", got, err)
	}

	newTitle := "pg-test-updated"
	updated, err := repo.Update(ctx, id, reasoningbank.RecordPatch{Title: &newTitle})
	if err != nil || updated.Title != newTitle {
		t.Fatalf("Update: rec=%v err=%v", updated, err)
	}

	if err := repo.Archive(ctx, id); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	active, err := repo.ScanAll(ctx, 1000)
	if err != nil {
		t.Fatalf("ScanAll: %v", err)
	}
	for _, r := range active {
		if r.ID == id {
			t.Fatalf("archived record should not appear in ScanAll")
		}
	}

	if err := repo.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestPostgresRetrieveByEmbeddingAndUpdateStats(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.Add(ctx, reasoningbank.MemoryRecord{
		Title:       "pg-retrieve",
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

	hits, err := repo.RetrieveByEmbedding(ctx, []float32{1, 0, 0}, 5, reasoningbank.Filters{})
	if err != nil {
		t.Fatalf("RetrieveByEmbedding: %v", err)
	}
	found := false
	for _, h := range hits {
		if h.ID == id {
			found = true
			if h.TimesRetrieved != 1 {
				t.Fatalf("expected TimesRetrieved=1 after retrieval, got %d", h.TimesRetrieved)
			}
		}
	}
	if !found {
		t.Fatalf("expected inserted record to be retrieved, got %v", hits)
	}

	repo.UpdateStats(ctx, []string{id}, true)
	rec, err := repo.Get(ctx, id)
	if err != nil || rec.TimesUsedInSuccess != 1 || rec.SuccessRate == nil || *rec.SuccessRate != 1.0 {
		t.Fatalf("UpdateStats: rec=%+v err=%v", rec, err)
	}

	if err := repo.ApplyMerge(ctx, id, 2, 1, 0); err != nil {
		t.Fatalf("ApplyMerge: %v", err)
	}
	rec, err = repo.Get(ctx, id)
	if err != nil || rec.TimesRetrieved != 3 || rec.TimesUsedInSuccess != 2 {
		t.Fatalf("after ApplyMerge: rec=%+v err=%v", rec, err)
	}
}
