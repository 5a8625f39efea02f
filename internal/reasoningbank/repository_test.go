package reasoningbank

import (
	"testing"
	"time"
)

func TestSortCandidatesTieBreakOrder(t *testing.T) {
	now := time.Now()
	r1 := MemoryRecord{ID: "b", SuccessRate: rate(0.5), UpdatedAt: now}
	r2 := MemoryRecord{ID: "a", SuccessRate: rate(0.5), UpdatedAt: now}
	r3 := MemoryRecord{ID: "c", SuccessRate: nil, UpdatedAt: now}
	r4 := MemoryRecord{ID: "d", SuccessRate: rate(0.9), UpdatedAt: now.Add(-time.Hour)}

	type scored struct {
		rec   MemoryRecord
		score float64
	}
	items := []scored{
		{rec: r1, score: 0.8},
		{rec: r2, score: 0.8},
		{rec: r3, score: 0.8},
		{rec: r4, score: 0.9},
	}
	SortCandidates(items, func(i int) (MemoryRecord, float64) { return items[i].rec, items[i].score })

	order := make([]string, len(items))
	for i, it := range items {
		order[i] = it.rec.ID
	}
	want := []string{"d", "a", "b", "c"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}

func TestSortCandidatesSuccessRateDescWithinSameScore(t *testing.T) {
	now := time.Now()
	higher := MemoryRecord{ID: "higher", SuccessRate: rate(0.9), UpdatedAt: now}
	lower := MemoryRecord{ID: "lower", SuccessRate: rate(0.1), UpdatedAt: now}

	type scored struct {
		rec   MemoryRecord
		score float64
	}
	items := []scored{{rec: lower, score: 0.5}, {rec: higher, score: 0.5}}
	SortCandidates(items, func(i int) (MemoryRecord, float64) { return items[i].rec, items[i].score })

	if items[0].rec.ID != "higher" {
		t.Fatalf("expected higher successRate first, got %s", items[0].rec.ID)
	}
}
