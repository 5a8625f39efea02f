package reasoningbank

import "context"

// RetrieveForCodeGeneration is the supplemented convenience composition over
// RetrieveByEmbedding described as a DOMAIN STACK addition: it narrows
// retrieval to the categories a code-generation task actually benefits from
// (build failures, prior rejections, known error/fix patterns) rather than
// making callers restate that whitelist at every call site. Grounded on the
// teacher's category-scoped search helpers (GetProceduralMemories /
// SearchByType in evolving.go). Per §6, the whitelist is only preferred when
// it actually has something to offer: with fewer than two whitelisted
// matches, a second call falls back to the unfiltered (general) result set
// rather than starving the caller.
func RetrieveForCodeGeneration(ctx context.Context, repo MemoryRepository, embedder Embedder, task Task, k int) ([]MemoryRecord, error) {
	qvec, err := embedder.Embed(ctx, task.queryText(), EmbedKindQuery)
	if err != nil {
		return nil, err
	}
	cats := make(map[Category]bool, len(buildRelatedCategories))
	for _, c := range buildRelatedCategories {
		cats[c] = true
	}
	scoped, err := repo.RetrieveByEmbedding(ctx, qvec, k, Filters{Categories: cats})
	if err != nil {
		return nil, err
	}
	if len(scoped) >= 2 {
		return scoped, nil
	}
	return repo.RetrieveByEmbedding(ctx, qvec, k, Filters{})
}
