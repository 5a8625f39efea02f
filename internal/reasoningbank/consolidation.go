package reasoningbank

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// ConsolidationEngine runs the three maintenance passes — prune, merge,
// archive — strictly in that order (§4.4). It has no state of its own
// beyond its configuration and repository handle; consolidate() is safe to
// call repeatedly from an externally-triggered scheduler.
type ConsolidationEngine struct {
	repo   MemoryRepository
	cfg    Config
	logger Logger

	prunedCounter   metric.Int64Counter
	mergedCounter   metric.Int64Counter
	archivedCounter metric.Int64Counter
	passDuration    metric.Float64Histogram
}

// NewConsolidationEngine constructs an engine. meter may be nil, in which
// case metrics are silently skipped (meter.NoopMeterProvider behavior would
// otherwise require wiring a provider in every test).
func NewConsolidationEngine(repo MemoryRepository, cfg Config, logger Logger, meter metric.Meter) *ConsolidationEngine {
	if logger == nil {
		logger = NoopLogger{}
	}
	e := &ConsolidationEngine{repo: repo, cfg: cfg, logger: logger}
	if meter != nil {
		e.prunedCounter, _ = meter.Int64Counter("reasoningbank.consolidation.pruned")
		e.mergedCounter, _ = meter.Int64Counter("reasoningbank.consolidation.merged")
		e.archivedCounter, _ = meter.Int64Counter("reasoningbank.consolidation.archived")
		e.passDuration, _ = meter.Float64Histogram("reasoningbank.consolidation.pass_duration_ms")
	}
	return e
}

// Consolidate runs prune → merge → archive and returns aggregate stats.
// Per-record failures within a pass are logged and skipped; the pass
// continues. Only a failure of the initial scan is fatal to the whole call.
func (e *ConsolidationEngine) Consolidate(ctx context.Context) ConsolidationStats {
	stats := ConsolidationStats{StartTime: time.Now().UTC()}

	active, err := e.repo.ScanAll(ctx, 10000)
	if err != nil {
		stats.EndTime = time.Now().UTC()
		stats.Success = false
		stats.Errors = append(stats.Errors, fmt.Sprintf("scanAll: %v", err))
		return stats
	}
	stats.TotalMemoriesBefore = len(active)

	byID := make(map[string]MemoryRecord, len(active))
	for _, r := range active {
		byID[r.ID] = r
	}

	stats.Pruned = e.runPrune(ctx, byID)
	stats.Merged = e.runMerge(ctx, byID)
	stats.Archived = e.runArchive(ctx, byID)
	stats.Success = true
	stats.EndTime = time.Now().UTC()

	e.logger.Info(ctx, "reasoningbank: consolidation complete", map[string]any{
		"totalBefore": stats.TotalMemoriesBefore,
		"pruned":      stats.Pruned,
		"merged":      stats.Merged,
		"archived":    stats.Archived,
		"durationMs":  stats.EndTime.Sub(stats.StartTime).Milliseconds(),
	})
	return stats
}

// runPrune implements Pass A (§4.4.1): delete records retrieved often enough
// to trust their successRate, whose successRate is below the low-quality
// threshold. Pruned ids are removed from byID so later passes never see them.
func (e *ConsolidationEngine) runPrune(ctx context.Context, byID map[string]MemoryRecord) int {
	start := time.Now()
	pruned := 0
	for id, rec := range byID {
		if !shouldPrune(rec, e.cfg) {
			continue
		}
		if err := e.repo.Delete(ctx, id); err != nil {
			e.logger.Warn(ctx, "reasoningbank: prune delete failed", map[string]any{"id": id, "error": err.Error()})
			continue
		}
		delete(byID, id)
		pruned++
	}
	e.observe(ctx, e.prunedCounter, pruned, e.passDuration, start, "prune")
	return pruned
}

func shouldPrune(rec MemoryRecord, cfg Config) bool {
	return rec.TimesRetrieved >= cfg.MinRetrievalsForPrune &&
		rec.SuccessRate != nil &&
		*rec.SuccessRate < cfg.LowQualityThreshold
}

// runMerge implements Pass B (§4.4.2): O(n^2) pairwise cosine comparison
// among surviving active records, merging pairs at or above the duplicate
// threshold, strongest matches first, each record eligible as a loser at
// most once per pass.
func (e *ConsolidationEngine) runMerge(ctx context.Context, byID map[string]MemoryRecord) int {
	start := time.Now()
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids) // deterministic pair enumeration order

	type pair struct {
		i, j int
		sim  float64
	}
	var pairs []pair
	for i := 0; i < len(ids); i++ {
		ri := byID[ids[i]]
		if len(ri.Embedding) == 0 {
			continue
		}
		for j := i + 1; j < len(ids); j++ {
			rj := byID[ids[j]]
			if len(rj.Embedding) == 0 {
				continue
			}
			sim := CosineVectors(ctx, ri.Embedding, rj.Embedding, e.logger)
			if sim >= e.cfg.DupSimilarityThreshold {
				pairs = append(pairs, pair{i: i, j: j, sim: sim})
			}
		}
	}
	sort.Slice(pairs, func(a, b int) bool { return pairs[a].sim > pairs[b].sim })

	removed := make(map[string]bool)
	merged := 0
	for _, p := range pairs {
		idI, idJ := ids[p.i], ids[p.j]
		if removed[idI] || removed[idJ] {
			continue
		}
		ri, okI := byID[idI]
		rj, okJ := byID[idJ]
		if !okI || !okJ {
			continue
		}
		winner, loser := pickMergeWinner(ri, rj)
		loserRec := rj
		if loser.ID == ri.ID {
			loserRec = ri
		}
		if err := e.repo.ApplyMerge(ctx, winner.ID, loserRec.TimesRetrieved, loserRec.TimesUsedInSuccess, loserRec.TimesUsedInFailure); err != nil {
			e.logger.Warn(ctx, "reasoningbank: merge applyMerge failed", map[string]any{"winner": winner.ID, "loser": loser.ID, "error": err.Error()})
			continue
		}
		if err := e.repo.Delete(ctx, loser.ID); err != nil {
			e.logger.Warn(ctx, "reasoningbank: merge delete loser failed", map[string]any{"loser": loser.ID, "error": err.Error()})
			continue
		}
		removed[loser.ID] = true
		delete(byID, loser.ID)
		merged++
	}
	e.observe(ctx, e.mergedCounter, merged, e.passDuration, start, "merge")
	return merged
}

// pickMergeWinner implements the merge-rule ordering from §4.4.2: higher
// successRate wins; null rate loses to non-null; ties break to higher
// TimesRetrieved, then to older CreatedAt.
func pickMergeWinner(a, b MemoryRecord) (winner, loser MemoryRecord) {
	switch {
	case (a.SuccessRate == nil) != (b.SuccessRate == nil):
		if a.SuccessRate != nil {
			return a, b
		}
		return b, a
	case a.SuccessRate != nil && b.SuccessRate != nil && *a.SuccessRate != *b.SuccessRate:
		if *a.SuccessRate > *b.SuccessRate {
			return a, b
		}
		return b, a
	case a.TimesRetrieved != b.TimesRetrieved:
		if a.TimesRetrieved > b.TimesRetrieved {
			return a, b
		}
		return b, a
	case a.CreatedAt.Before(b.CreatedAt):
		return a, b
	default:
		return b, a
	}
}

// runArchive implements Pass C (§4.4.3): transition records whose most
// recent activity timestamp predates the staleness window. Records with
// zero-value timestamps (never seen in a well-formed store, but defensive
// against partially-populated test fixtures) are skipped, never archived.
func (e *ConsolidationEngine) runArchive(ctx context.Context, byID map[string]MemoryRecord) int {
	start := time.Now()
	cutoff := time.Now().UTC().Add(-e.cfg.staleDuration())
	archived := 0
	for id, rec := range byID {
		if rec.UpdatedAt.IsZero() && rec.CreatedAt.IsZero() {
			continue
		}
		recency := rec.UpdatedAt
		if rec.CreatedAt.After(recency) {
			recency = rec.CreatedAt
		}
		if recency.IsZero() || !recency.Before(cutoff) {
			continue
		}
		if err := e.repo.Archive(ctx, id); err != nil {
			e.logger.Warn(ctx, "reasoningbank: archive failed", map[string]any{"id": id, "error": err.Error()})
			continue
		}
		archived++
	}
	e.observe(ctx, e.archivedCounter, archived, e.passDuration, start, "archive")
	return archived
}

func (e *ConsolidationEngine) observe(ctx context.Context, counter metric.Int64Counter, n int, hist metric.Float64Histogram, start time.Time, pass string) {
	if counter != nil && n > 0 {
		counter.Add(ctx, int64(n))
	}
	if hist != nil {
		hist.Record(ctx, float64(time.Since(start).Milliseconds()))
	}
	e.logger.Debug(ctx, "reasoningbank: consolidation pass complete", map[string]any{"pass": pass, "count": n})
}
