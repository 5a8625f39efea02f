package reasoningbank

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Execute runs one trajectory attempt for a task and reports its outcome.
// Implementations are supplied by the caller (e.g. an agent executor); they
// must not retain task beyond the call.
type Execute func(ctx context.Context, task Task) (*TrajectoryResult, error)

// variantOutcome pairs one parallel attempt's result with the ids of the
// memories distributed to it, so the winning variant's memories can be
// credited via UpdateStats.
type variantOutcome struct {
	index      int
	task       Task
	result     *TrajectoryResult
	memoryIDs  []string
	score      float64
	executeErr error
}

// ParallelScaling implements MaTTSParallel (§4.6): retrieve once, distribute
// memories round-robin across n independently-executed variants, score each
// completed trajectory, and credit a successful winner's memories with a
// success. Grounded on the teacher's scatter-gather shape in warpp.go:
// an errgroup fans work out, each goroutine writes to its own buffered
// channel slot with a non-blocking send, and a single gather loop drains
// every slot while also watching ctx.Done(). No g.Go closure ever returns a
// non-nil error — a real error would cancel the group's context and race
// the in-flight attempts, so failures are carried inside variantOutcome
// instead.
//
// If n<=0, the feature is disabled (cfg.MATTSParallelEnabled=false), or
// retrieval comes back with zero memories, this falls back to a single
// execute(task, []) call instead of fanning out. An embedder failure is
// propagated (wrapping ErrEmbedder) rather than swallowed, since the fan-out
// cannot meaningfully proceed without a query vector to retrieve against.
func ParallelScaling(ctx context.Context, task Task, repo MemoryRepository, embedder Embedder, execute Execute, n int, cfg Config, logger Logger) (*TrajectoryResult, error) {
	if logger == nil {
		logger = NoopLogger{}
	}
	// single is the execute(task, []) fallback; a nil result from a failing or
	// panicking executor is replaced by the Success=false sentinel.
	single := func() (*TrajectoryResult, error) {
		res, err := safeExecute(ctx, execute, task)
		if res == nil {
			res = &TrajectoryResult{Success: false}
		}
		return res, err
	}
	if n <= 0 || !cfg.MATTSParallelEnabled {
		return single()
	}

	var pool []MemoryRecord
	if repo != nil && embedder != nil {
		qvec, err := embedder.Embed(ctx, task.queryText(), EmbedKindQuery)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbedder, err)
		}
		candidates, err := repo.RetrieveByEmbedding(ctx, qvec, n*3, Filters{MinSuccessRate: floatPtr(0.5)})
		if err != nil {
			logger.Warn(ctx, "reasoningbank: matts parallel retrieval failed, proceeding without memories", map[string]any{"error": err.Error()})
		} else {
			pool = candidates
		}
	}
	if len(pool) == 0 {
		return single()
	}

	slots := make([]chan variantOutcome, n)
	for i := range slots {
		slots[i] = make(chan variantOutcome, 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		variantTask := task
		var ids []string
		for j := i; j < len(pool); j += n {
			variantTask.Parameters = mergeMemoryHint(variantTask.Parameters, pool[j])
			ids = append(ids, pool[j].ID)
		}
		g.Go(func() error {
			out := variantOutcome{index: i, task: variantTask, memoryIDs: ids}
			out.result, out.executeErr = safeExecute(gctx, execute, variantTask)
			if out.executeErr == nil {
				out.score = Score(out.result)
			}
			select {
			case slots[i] <- out:
			default:
			}
			return nil
		})
	}
	_ = g.Wait()

	outcomes := make([]variantOutcome, 0, n)
	for i := 0; i < n; i++ {
		select {
		case out := <-slots[i]:
			outcomes = append(outcomes, out)
		case <-ctx.Done():
			return nil, fmt.Errorf("reasoningbank: matts parallel gather: %w", ctx.Err())
		}
	}

	best := selectBestVariant(outcomes)
	if best == nil {
		return nil, ErrStoreUnavailable
	}
	if repo != nil && len(best.memoryIDs) > 0 && best.executeErr == nil && best.result.Success {
		go repo.UpdateStats(context.WithoutCancel(ctx), best.memoryIDs, true)
	}
	if best.executeErr != nil {
		return best.result, best.executeErr
	}
	return best.result, nil
}

// selectBestVariant picks the highest-scoring variant; ties break to the
// lower variant index. A variant whose executor returned an error scores as
// if unsuccessful (0) but still participates, so an all-failing run returns
// a well-defined sentinel instead of nil.
func selectBestVariant(outcomes []variantOutcome) *variantOutcome {
	var best *variantOutcome
	for i := range outcomes {
		o := &outcomes[i]
		if o.result == nil {
			zero := TrajectoryResult{Success: false}
			o.result = &zero
		}
		if best == nil || o.score > best.score {
			best = o
			continue
		}
		if o.score == best.score && o.index < best.index {
			best = o
		}
	}
	return best
}

// safeExecute recovers a panicking executor into an error, matching the
// reflector's exception handling in MaTTSSequential: a single misbehaving
// variant must not take down the whole scatter-gather.
func safeExecute(ctx context.Context, execute Execute, task Task) (res *TrajectoryResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return execute(ctx, task)
}

// mergeMemoryHint folds a retrieved memory's content into a copy of the
// task's parameters under a well-known key, leaving the original map
// untouched. Mirrors the teacher's pattern of threading retrieved context
// into a variant's prompt parameters rather than mutating shared state.
func mergeMemoryHint(params map[string]any, mem MemoryRecord) map[string]any {
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	hints, _ := out["reasoningbank_memories"].([]string)
	hints = append(hints, mem.Content)
	out["reasoningbank_memories"] = hints
	return out
}
