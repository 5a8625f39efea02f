// Package memrepo is the in-process reference MemoryRepository: a single
// guarded map, linear-scanned for both scanAll and retrieveByEmbedding.
// Grounded on the teacher's EvolvingMemory (evolving.go), which holds its
// entries behind one sync.RWMutex and does a full in-process cosine scan on
// every search; this package narrows that shape to the spec's CRUD +
// retrieval contract instead of EvolvingMemory's own FIFO/relevance-decay
// pruning.
package memrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"manifold/internal/reasoningbank"
)

// Repository is safe for concurrent use.
type Repository struct {
	mu      sync.RWMutex
	records map[string]*reasoningbank.MemoryRecord
	dim     int
	logger  reasoningbank.Logger
}

// New constructs an empty repository. dim is D, the fixed embedding length
// validated on Add/Update; logger may be nil (defaults to a no-op).
func New(dim int, logger reasoningbank.Logger) *Repository {
	if logger == nil {
		logger = reasoningbank.NoopLogger{}
	}
	return &Repository{records: make(map[string]*reasoningbank.MemoryRecord), dim: dim, logger: logger}
}

func (r *Repository) Add(ctx context.Context, rec reasoningbank.MemoryRecord) (string, error) {
	if err := rec.Validate(r.dim); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.ID = uuid.NewString()
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	rec.Status = reasoningbank.StatusActive
	r.records[rec.ID] = &rec
	return rec.ID, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*reasoningbank.MemoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *Repository) Update(ctx context.Context, id string, patch reasoningbank.RecordPatch) (*reasoningbank.MemoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, reasoningbank.ErrNotFound
	}
	updated := *rec
	if patch.Title != nil {
		updated.Title = *patch.Title
	}
	if patch.Description != nil {
		updated.Description = *patch.Description
	}
	if patch.Content != nil {
		updated.Content = *patch.Content
	}
	if patch.Category != nil {
		updated.Category = *patch.Category
	}
	if patch.Source != nil {
		updated.Source = *patch.Source
	}
	if patch.Embedding != nil {
		updated.Embedding = patch.Embedding
	}
	if err := updated.Validate(r.dim); err != nil {
		return nil, err
	}
	updated.UpdatedAt = time.Now().UTC()
	r.records[id] = &updated
	cp := updated
	return &cp, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return reasoningbank.ErrNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *Repository) Archive(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return reasoningbank.ErrNotFound
	}
	rec.Status = reasoningbank.StatusArchived
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) ScanAll(ctx context.Context, limit int) ([]reasoningbank.MemoryRecord, error) {
	if limit <= 0 {
		limit = 10000
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]reasoningbank.MemoryRecord, 0, len(r.records))
	for _, rec := range r.records {
		if rec.Status != reasoningbank.StatusActive {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Repository) RetrieveByEmbedding(ctx context.Context, query []float32, k int, filters reasoningbank.Filters) ([]reasoningbank.MemoryRecord, error) {
	if k <= 0 {
		k = 1
	}
	r.mu.RLock()
	type scored struct {
		rec   reasoningbank.MemoryRecord
		score float64
	}
	var candidates []scored
	for _, rec := range r.records {
		if rec.Status != reasoningbank.StatusActive {
			continue
		}
		if !filters.Matches(rec) {
			continue
		}
		sim := reasoningbank.CosineVectors(ctx, query, rec.Embedding, r.logger)
		candidates = append(candidates, scored{rec: *rec, score: sim})
	}
	r.mu.RUnlock()

	reasoningbank.SortCandidates(candidates, func(i int) (reasoningbank.MemoryRecord, float64) {
		return candidates[i].rec, candidates[i].score
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]reasoningbank.MemoryRecord, 0, len(candidates))
	now := time.Now().UTC()
	r.mu.Lock()
	for _, c := range candidates {
		if rec, ok := r.records[c.rec.ID]; ok {
			rec.TimesRetrieved++
			rec.UpdatedAt = now
			cp := *rec
			out = append(out, cp)
		} else {
			out = append(out, c.rec)
		}
	}
	r.mu.Unlock()
	return out, nil
}

func (r *Repository) ApplyMerge(ctx context.Context, winnerID string, addRetrieved, addSuccess, addFailure int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[winnerID]
	if !ok {
		return reasoningbank.ErrNotFound
	}
	rec.TimesRetrieved += addRetrieved
	rec.TimesUsedInSuccess += addSuccess
	rec.TimesUsedInFailure += addFailure
	rec.RecomputeSuccessRate()
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) UpdateStats(ctx context.Context, ids []string, succeeded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		rec, ok := r.records[id]
		if !ok {
			r.logger.Warn(ctx, "reasoningbank: updateStats: id not found", map[string]any{"id": id})
			continue
		}
		if succeeded {
			rec.TimesUsedInSuccess++
		} else {
			rec.TimesUsedInFailure++
		}
		rec.RecomputeSuccessRate()
		rec.UpdatedAt = time.Now().UTC()
	}
}
