package reasoningbank

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeRepo is a minimal MemoryRepository good enough to exercise
// ConsolidationEngine without pulling in the memrepo package (which would
// create an import cycle back into reasoningbank).
type fakeRepo struct {
	mu      sync.Mutex
	records map[string]*MemoryRecord
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[string]*MemoryRecord)}
}

func (f *fakeRepo) put(rec MemoryRecord) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := rec
	f.records[cp.ID] = &cp
	return cp.ID
}

func (f *fakeRepo) Add(ctx context.Context, rec MemoryRecord) (string, error) { return f.put(rec), nil }

func (f *fakeRepo) Get(ctx context.Context, id string) (*MemoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRepo) Update(ctx context.Context, id string, patch RecordPatch) (*MemoryRecord, error) {
	return nil, nil
}

func (f *fakeRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return ErrNotFound
	}
	delete(f.records, id)
	return nil
}

func (f *fakeRepo) Archive(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = StatusArchived
	return nil
}

func (f *fakeRepo) ScanAll(ctx context.Context, limit int) ([]MemoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []MemoryRecord
	for _, r := range f.records {
		if r.Status == StatusActive {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRepo) RetrieveByEmbedding(ctx context.Context, query []float32, k int, filters Filters) ([]MemoryRecord, error) {
	return nil, nil
}

func (f *fakeRepo) UpdateStats(ctx context.Context, ids []string, succeeded bool) {}

func (f *fakeRepo) ApplyMerge(ctx context.Context, winnerID string, addRetrieved, addSuccess, addFailure int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[winnerID]
	if !ok {
		return ErrNotFound
	}
	r.TimesRetrieved += addRetrieved
	r.TimesUsedInSuccess += addSuccess
	r.TimesUsedInFailure += addFailure
	r.RecomputeSuccessRate()
	return nil
}

func rate(v float64) *float64 { return &v }

func TestConsolidatePrunesLowQuality(t *testing.T) {
	repo := newFakeRepo()
	low := repo.put(MemoryRecord{ID: "low", Status: StatusActive, TimesRetrieved: 20, SuccessRate: rate(0.1), CreatedAt: time.Now(), UpdatedAt: time.Now()})
	good := repo.put(MemoryRecord{ID: "good", Status: StatusActive, TimesRetrieved: 20, SuccessRate: rate(0.9), CreatedAt: time.Now(), UpdatedAt: time.Now()})

	e := NewConsolidationEngine(repo, DefaultConfig(), nil, nil)
	stats := e.Consolidate(context.Background())

	if stats.Pruned != 1 {
		t.Fatalf("expected 1 pruned record, got %d", stats.Pruned)
	}
	if got, _ := repo.Get(context.Background(), low); got != nil {
		t.Fatalf("expected low-quality record deleted")
	}
	if got, _ := repo.Get(context.Background(), good); got == nil {
		t.Fatalf("expected good record to survive pruning")
	}
}

func TestConsolidateMergesDuplicatesSummingStats(t *testing.T) {
	repo := newFakeRepo()
	repo.put(MemoryRecord{ID: "a", Status: StatusActive, Embedding: []float32{1, 0}, SuccessRate: rate(0.9), TimesRetrieved: 5, TimesUsedInSuccess: 4, TimesUsedInFailure: 1, CreatedAt: time.Now(), UpdatedAt: time.Now()})
	repo.put(MemoryRecord{ID: "b", Status: StatusActive, Embedding: []float32{1, 0}, SuccessRate: rate(0.5), TimesRetrieved: 2, TimesUsedInSuccess: 1, TimesUsedInFailure: 1, CreatedAt: time.Now(), UpdatedAt: time.Now()})

	cfg := DefaultConfig()
	cfg.MinRetrievalsForPrune = 1000 // disable pruning for this test
	e := NewConsolidationEngine(repo, cfg, nil, nil)
	stats := e.Consolidate(context.Background())

	if stats.Merged != 1 {
		t.Fatalf("expected 1 merge, got %d", stats.Merged)
	}
	winner, _ := repo.Get(context.Background(), "a")
	if winner == nil {
		t.Fatalf("expected higher-successRate record 'a' to survive as winner")
	}
	if winner.TimesRetrieved != 7 || winner.TimesUsedInSuccess != 5 || winner.TimesUsedInFailure != 2 {
		t.Fatalf("expected summed stats on winner, got %+v", winner)
	}
	loser, _ := repo.Get(context.Background(), "b")
	if loser != nil {
		t.Fatalf("expected loser record deleted after merge")
	}
}

func TestConsolidateArchivesStaleRecords(t *testing.T) {
	repo := newFakeRepo()
	old := time.Now().Add(-100 * 24 * time.Hour)
	repo.put(MemoryRecord{ID: "stale", Status: StatusActive, CreatedAt: old, UpdatedAt: old})
	repo.put(MemoryRecord{ID: "fresh", Status: StatusActive, CreatedAt: time.Now(), UpdatedAt: time.Now()})

	e := NewConsolidationEngine(repo, DefaultConfig(), nil, nil)
	stats := e.Consolidate(context.Background())

	if stats.Archived != 1 {
		t.Fatalf("expected 1 archived record, got %d", stats.Archived)
	}
	stale, _ := repo.Get(context.Background(), "stale")
	if stale == nil || stale.Status != StatusArchived {
		t.Fatalf("expected stale record archived, got %+v", stale)
	}
	fresh, _ := repo.Get(context.Background(), "fresh")
	if fresh == nil || fresh.Status != StatusActive {
		t.Fatalf("expected fresh record to remain active")
	}
}

func TestConsolidateIsIdempotentOnSecondRun(t *testing.T) {
	repo := newFakeRepo()
	repo.put(MemoryRecord{ID: "a", Status: StatusActive, Embedding: []float32{1, 0}, SuccessRate: rate(0.9), CreatedAt: time.Now(), UpdatedAt: time.Now()})

	e := NewConsolidationEngine(repo, DefaultConfig(), nil, nil)
	first := e.Consolidate(context.Background())
	second := e.Consolidate(context.Background())

	if second.Pruned != 0 || second.Merged != 0 || second.Archived != 0 {
		t.Fatalf("expected no-op second consolidation pass, got %+v (first=%+v)", second, first)
	}
}
