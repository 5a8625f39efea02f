package reasoningbank

import (
	"context"
	"sort"
)

// MemoryRepository is the only component that touches persistent storage.
// Every method is safe to call concurrently; per-record updates are assumed
// linearizable but there are no cross-id transactional guarantees.
type MemoryRepository interface {
	// Add validates and persists a fully-populated record (without an id),
	// returning the repository-assigned id.
	Add(ctx context.Context, rec MemoryRecord) (string, error)

	// Get returns a snapshot, or (nil, nil) if the id doesn't exist.
	Get(ctx context.Context, id string) (*MemoryRecord, error)

	// Update applies a partial patch and returns the new snapshot.
	Update(ctx context.Context, id string, patch RecordPatch) (*MemoryRecord, error)

	// Delete hard-deletes a record.
	Delete(ctx context.Context, id string) error

	// Archive sets status=archived. One-way.
	Archive(ctx context.Context, id string) error

	// ScanAll returns active records, up to limit, in a stable order.
	ScanAll(ctx context.Context, limit int) ([]MemoryRecord, error)

	// RetrieveByEmbedding returns up to k active records matching filters,
	// ordered per the tie-break chain in tieBreakLess. Each returned record
	// has had TimesRetrieved incremented and UpdatedAt bumped, at-least-once.
	RetrieveByEmbedding(ctx context.Context, query []float32, k int, filters Filters) ([]MemoryRecord, error)

	// UpdateStats increments TimesUsedInSuccess or TimesUsedInFailure for
	// each id and recomputes SuccessRate. Per-id failures are logged and
	// skipped; the call itself never returns an error.
	UpdateStats(ctx context.Context, ids []string, succeeded bool)

	// ApplyMerge folds a deleted duplicate's counters into the surviving
	// winner: winner's TimesRetrieved/TimesUsedInSuccess/TimesUsedInFailure
	// become the sum of both records' prior values, and SuccessRate is
	// recomputed from the new sums. Used only by ConsolidationEngine's
	// merge pass (§4.4.2); the winner's embedding is left untouched.
	ApplyMerge(ctx context.Context, winnerID string, addRetrieved, addSuccess, addFailure int) error
}

// tieBreakLess implements the deterministic retrieval order from §4.3:
// similarity desc, then successRate desc (nulls last), then updatedAt desc,
// then id lexicographic ascending.
func tieBreakLess(ri MemoryRecord, si float64, rj MemoryRecord, sj float64) bool {
	if si != sj {
		return si > sj
	}
	if (ri.SuccessRate == nil) != (rj.SuccessRate == nil) {
		// nil sorts after non-nil: "i < j" (comes first) iff i is non-nil.
		return ri.SuccessRate != nil
	}
	if ri.SuccessRate != nil && rj.SuccessRate != nil && *ri.SuccessRate != *rj.SuccessRate {
		return *ri.SuccessRate > *rj.SuccessRate
	}
	if !ri.UpdatedAt.Equal(rj.UpdatedAt) {
		return ri.UpdatedAt.After(rj.UpdatedAt)
	}
	return ri.ID < rj.ID
}

// SortCandidates sorts any slice of scored candidates by the repository's
// tie-break order, given an accessor that extracts the record/similarity
// pair for index i. Used identically by every MemoryRepository
// implementation so retrieval ordering never drifts between backends.
func SortCandidates[T any](items []T, at func(i int) (MemoryRecord, float64)) {
	sort.Slice(items, func(i, j int) bool {
		ri, si := at(i)
		rj, sj := at(j)
		return tieBreakLess(ri, si, rj, sj)
	})
}
