package builtin

import (
	"context"
	"fmt"
	"sync"

	"github.com/smilemakc/flowcore/internal/apperrors"
	"github.com/smilemakc/flowcore/internal/node"
)

// ParallelExecutor runs each of cfg.Parallel.Branches (a chain of node ids,
// executed in order within the branch, fanned out across branches) and
// settles per wait_strategy:
//
//   - all:  waits for every branch; node fails if any branch failed.
//   - any:  settles on the first branch to *succeed*; a failing branch is
//     absorbed and waited past unless every branch has now failed.
//   - race: settles on the first branch to *complete*, success or failure,
//     and cancels the rest - this is what differs it from any.
//
// Grounded on pkg/engine/sub_workflow.go's semaphore+WaitGroup fan-out.
type ParallelExecutor struct {
	Invoker Invoker
}

func NewParallelExecutor(invoker Invoker) *ParallelExecutor {
	return &ParallelExecutor{Invoker: invoker}
}

func (e *ParallelExecutor) Validate(cfg *node.Config) error {
	if cfg.Parallel == nil || len(cfg.Parallel.Branches) == 0 {
		return fmt.Errorf("parallel executor: node %s: branches must be non-empty", cfg.ID)
	}
	switch cfg.Parallel.WaitStrategy {
	case node.WaitAll, node.WaitAny, node.WaitRace:
	default:
		return fmt.Errorf("parallel executor: node %s: invalid wait_strategy %q", cfg.ID, cfg.Parallel.WaitStrategy)
	}
	return nil
}

type branchOutcome struct {
	index  int
	output map[string]interface{}
	err    error
}

func (e *ParallelExecutor) runBranch(ctx context.Context, nodeIDs []string, inputs map[string]interface{}) (map[string]interface{}, error) {
	current := inputs
	merged := make(map[string]interface{})
	for _, id := range nodeIDs {
		res, err := e.Invoker.InvokeNode(ctx, id, current)
		if err != nil {
			return nil, err
		}
		if !res.Success {
			return nil, fmt.Errorf("node %s: %s", id, res.Error.Message)
		}
		if outMap, ok := res.Output.(map[string]interface{}); ok {
			for k, v := range outMap {
				merged[k] = v
				current[k] = v
			}
		} else {
			merged[id] = res.Output
		}
	}
	return merged, nil
}

func (e *ParallelExecutor) Execute(ctx context.Context, cfg *node.Config, inputs map[string]interface{}) (interface{}, *node.Usage, error) {
	switch cfg.Parallel.WaitStrategy {
	case node.WaitAll:
		return e.executeAll(ctx, cfg, inputs)
	case node.WaitAny:
		return e.executeAny(ctx, cfg, inputs)
	case node.WaitRace:
		return e.executeRace(ctx, cfg, inputs)
	default:
		return nil, nil, apperrors.NewNode(apperrors.KindValidation, "parallel.execute", cfg.ID,
			fmt.Errorf("invalid wait_strategy %q", cfg.Parallel.WaitStrategy))
	}
}

func (e *ParallelExecutor) executeAll(ctx context.Context, cfg *node.Config, inputs map[string]interface{}) (interface{}, *node.Usage, error) {
	outcomes := make([]branchOutcome, len(cfg.Parallel.Branches))
	var wg sync.WaitGroup
	for i, branch := range cfg.Parallel.Branches {
		wg.Add(1)
		go func(idx int, ids []string) {
			defer wg.Done()
			out, err := e.runBranch(ctx, ids, copyInputs(inputs))
			outcomes[idx] = branchOutcome{index: idx, output: out, err: err}
		}(i, branch)
	}
	wg.Wait()

	results := make([]map[string]interface{}, len(outcomes))
	var firstErr error
	for i, o := range outcomes {
		if o.err != nil {
			results[i] = map[string]interface{}{"success": false, "error": o.err.Error()}
			if firstErr == nil {
				firstErr = o.err
			}
		} else {
			results[i] = map[string]interface{}{"success": true, "output": o.output}
		}
	}
	if firstErr != nil {
		return nil, nil, apperrors.NewNode(apperrors.KindUpstream, "parallel.all", cfg.ID, firstErr)
	}
	return map[string]interface{}{"branches": results}, nil, nil
}

func (e *ParallelExecutor) executeAny(ctx context.Context, cfg *node.Config, inputs map[string]interface{}) (interface{}, *node.Usage, error) {
	branchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan branchOutcome, len(cfg.Parallel.Branches))
	for i, branch := range cfg.Parallel.Branches {
		go func(idx int, ids []string) {
			out, err := e.runBranch(branchCtx, ids, copyInputs(inputs))
			results <- branchOutcome{index: idx, output: out, err: err}
		}(i, branch)
	}

	var lastErr error
	for range cfg.Parallel.Branches {
		r := <-results
		if r.err == nil {
			cancel()
			return map[string]interface{}{"winning_branch": r.index, "output": r.output}, nil, nil
		}
		lastErr = r.err
	}
	return nil, nil, apperrors.NewNode(apperrors.KindUpstream, "parallel.any", cfg.ID,
		fmt.Errorf("all branches failed, last error: %w", lastErr))
}

func (e *ParallelExecutor) executeRace(ctx context.Context, cfg *node.Config, inputs map[string]interface{}) (interface{}, *node.Usage, error) {
	branchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan branchOutcome, len(cfg.Parallel.Branches))
	for i, branch := range cfg.Parallel.Branches {
		go func(idx int, ids []string) {
			out, err := e.runBranch(branchCtx, ids, copyInputs(inputs))
			results <- branchOutcome{index: idx, output: out, err: err}
		}(i, branch)
	}

	r := <-results
	cancel()
	if r.err != nil {
		return nil, nil, apperrors.NewNode(apperrors.KindUpstream, "parallel.race", cfg.ID, r.err)
	}
	return map[string]interface{}{"winning_branch": r.index, "output": r.output}, nil, nil
}

func copyInputs(inputs map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(inputs))
	for k, v := range inputs {
		out[k] = v
	}
	return out
}
