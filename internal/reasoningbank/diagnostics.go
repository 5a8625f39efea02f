package reasoningbank

import "context"

// SimilarityReport summarizes how clustered the active memory population
// is. Purely additive: nothing in ConsolidationEngine.Consolidate calls
// this, and generating one never mutates the store. Grounded on the
// teacher's ComputeTaskSimilarityMetrics (evolving.go), narrowed to the
// fields that matter once duplicate detection already lives in the merge
// pass: this report is a human-facing signal, not an input to that pass.
type SimilarityReport struct {
	TotalActive          int
	EntriesWithEmbedding  int
	AverageSimilarity     float64
	PairsSampled          int
	Recommendation        string
}

// maxSimilarityPairs bounds the pairwise cosine computation for large
// stores, matching the teacher's sampling cutoff.
const maxSimilarityPairs = 1000

// DiagnosticSimilarityReport computes an AverageSimilarity snapshot over
// the currently active population. Call it on demand (an operator command,
// a dashboard refresh) — it is never invoked automatically by Consolidate.
func (e *ConsolidationEngine) DiagnosticSimilarityReport(ctx context.Context) (*SimilarityReport, error) {
	active, err := e.repo.ScanAll(ctx, 10000)
	if err != nil {
		return nil, err
	}

	report := &SimilarityReport{TotalActive: len(active)}
	var withEmbedding []MemoryRecord
	for _, r := range active {
		if len(r.Embedding) > 0 {
			withEmbedding = append(withEmbedding, r)
		}
	}
	report.EntriesWithEmbedding = len(withEmbedding)

	if len(withEmbedding) < 2 {
		report.Recommendation = "insufficient entries for similarity analysis"
		return report, nil
	}

	var total float64
	var pairs int
	n := len(withEmbedding)
	if n <= 50 {
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				total += CosineVectors(ctx, withEmbedding[i].Embedding, withEmbedding[j].Embedding, e.logger)
				pairs++
			}
		}
	} else {
		for p := 0; p < maxSimilarityPairs; p++ {
			i := p % n
			j := (p*7 + 13) % n
			if i == j {
				j = (j + 1) % n
			}
			total += CosineVectors(ctx, withEmbedding[i].Embedding, withEmbedding[j].Embedding, e.logger)
			pairs++
		}
	}
	report.PairsSampled = pairs
	if pairs > 0 {
		report.AverageSimilarity = total / float64(pairs)
	}

	switch {
	case report.AverageSimilarity > 0.8:
		report.Recommendation = "high similarity detected - merge pass should run soon"
	case report.AverageSimilarity > 0.5:
		report.Recommendation = "moderate similarity - merge pass will be effective"
	case report.AverageSimilarity > 0.3:
		report.Recommendation = "diverse memories - maintain broad coverage"
	default:
		report.Recommendation = "low similarity - memories are diverse"
	}
	return report, nil
}
