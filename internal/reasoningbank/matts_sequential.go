package reasoningbank

import (
	"context"
	"fmt"
)

// Reflect inspects a completed trajectory and either accepts it or proposes
// a refined task to retry. A reflector is optional: when nil, MaTTSSequential
// simply retries the unrefined task up to maxIter and stops at first success.
type Reflect func(ctx context.Context, task Task, result *TrajectoryResult) (*ReflectResult, error)

// SequentialScaling implements MaTTSSequential (§4.7): retrieve once,
// execute, optionally reflect-and-refine, repeat up to maxIter, tracking the
// best-scoring attempt across iterations. Stops early once an iteration
// both succeeds and scores above 0.9. A reflector panic/error terminates the
// loop and returns the best result seen so far rather than propagating,
// mirroring the teacher's remem.go Execute loop shape where a single bad
// iteration must not discard prior progress.
//
// When the feature is disabled via cfg.MATTSSequentialEnabled, this falls
// back to a single execute(task, []) call, same as MaTTSParallel with n<=0.
// An embedder failure is propagated (ErrEmbedder) rather than swallowed:
// the loop cannot retrieve comparable memories across iterations without it.
func SequentialScaling(ctx context.Context, task Task, repo MemoryRepository, embedder Embedder, execute Execute, reflect Reflect, maxIter int, cfg Config, logger Logger) (*TrajectoryResult, error) {
	if logger == nil {
		logger = NoopLogger{}
	}
	if maxIter <= 0 {
		maxIter = 1
	}
	if !cfg.MATTSSequentialEnabled {
		return safeExecute(ctx, execute, task)
	}

	var memIDs []string
	current := task
	if repo != nil && embedder != nil {
		qvec, err := embedder.Embed(ctx, task.queryText(), EmbedKindQuery)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbedder, err)
		}
		candidates, err := repo.RetrieveByEmbedding(ctx, qvec, 5, Filters{MinSuccessRate: floatPtr(0.6)})
		if err != nil {
			logger.Warn(ctx, "reasoningbank: matts sequential retrieval failed, proceeding without memories", map[string]any{"error": err.Error()})
		} else {
			for _, c := range candidates {
				current.Parameters = mergeMemoryHint(current.Parameters, c)
				memIDs = append(memIDs, c.ID)
			}
		}
	}

	var best *TrajectoryResult
	bestScore := -1.0
	var lastErr error

	for iter := 0; iter < maxIter; iter++ {
		result, execErr := safeExecute(ctx, execute, current)
		if execErr != nil {
			lastErr = execErr
			logger.Warn(ctx, "reasoningbank: matts sequential execute failed", map[string]any{"iteration": iter, "error": execErr.Error()})
			break
		}
		score := Score(result)
		if score > bestScore {
			best = result
			bestScore = score
		}
		if result.Success && score > 0.9 {
			break
		}
		if reflect == nil {
			if result.Success {
				break
			}
			continue
		}

		refl, reflErr := safeReflect(ctx, reflect, current, result)
		if reflErr != nil {
			logger.Warn(ctx, "reasoningbank: matts sequential reflect failed, stopping", map[string]any{"iteration": iter, "error": reflErr.Error()})
			break
		}
		if refl == nil || !refl.ShouldRefine {
			break
		}
		current = current.merge(refl.RefinedTask)
	}

	if best == nil {
		if lastErr != nil {
			return nil, fmt.Errorf("reasoningbank: matts sequential: %w", lastErr)
		}
		return &TrajectoryResult{Success: false}, nil
	}
	if repo != nil && len(memIDs) > 0 {
		go repo.UpdateStats(context.WithoutCancel(ctx), memIDs, best.Success)
	}
	return best, nil
}

// safeReflect recovers a panicking reflector into an error, since a
// reflector is user-supplied and must not be allowed to crash the loop.
func safeReflect(ctx context.Context, reflect Reflect, task Task, result *TrajectoryResult) (refl *ReflectResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reflector panic: %v", r)
		}
	}()
	return reflect(ctx, task, result)
}
