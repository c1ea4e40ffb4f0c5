package builtin

import (
	"context"
	"fmt"
	"sync"

	"github.com/smilemakc/flowcore/internal/apperrors"
	"github.com/smilemakc/flowcore/internal/node"
	"github.com/smilemakc/flowcore/internal/template"
)

// LoopExecutor resolves iterator_path to an array, then runs body_nodes once
// per element (each element available to the body as input key "item"),
// sequentially or fanned out per the Parallel flag, bounded by
// max_iterations. Grounded on pkg/engine/sub_workflow.go's fan-out shape.
type LoopExecutor struct {
	Invoker Invoker
}

func NewLoopExecutor(invoker Invoker) *LoopExecutor {
	return &LoopExecutor{Invoker: invoker}
}

func (e *LoopExecutor) Validate(cfg *node.Config) error {
	if cfg.Loop == nil || cfg.Loop.IteratorPath == "" {
		return fmt.Errorf("loop executor: node %s: iterator_path required", cfg.ID)
	}
	if len(cfg.Loop.BodyNodes) == 0 {
		return fmt.Errorf("loop executor: node %s: body_nodes must be non-empty", cfg.ID)
	}
	return nil
}

type loopIterationResult struct {
	Index   int                    `json:"index"`
	Success bool                   `json:"success"`
	Output  map[string]interface{} `json:"output,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

func (e *LoopExecutor) Execute(ctx context.Context, cfg *node.Config, inputs map[string]interface{}) (interface{}, *node.Usage, error) {
	raw, err := template.ResolvePath(inputs, cfg.Loop.IteratorPath)
	if err != nil {
		return nil, nil, apperrors.NewNode(apperrors.KindValidation, "loop.resolve_iterator", cfg.ID, err)
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, nil, apperrors.NewNode(apperrors.KindValidation, "loop.resolve_iterator", cfg.ID,
			fmt.Errorf("iterator_path %q did not resolve to an array", cfg.Loop.IteratorPath))
	}
	if cfg.Loop.MaxIterations > 0 && len(items) > cfg.Loop.MaxIterations {
		items = items[:cfg.Loop.MaxIterations]
	}

	results := make([]loopIterationResult, len(items))
	var usage node.Usage

	runIteration := func(idx int, item interface{}) loopIterationResult {
		iterInputs := make(map[string]interface{}, len(inputs)+1)
		for k, v := range inputs {
			iterInputs[k] = v
		}
		iterInputs["item"] = item
		iterInputs["index"] = idx

		merged := make(map[string]interface{})
		for _, bodyID := range cfg.Loop.BodyNodes {
			res, err := e.Invoker.InvokeNode(ctx, bodyID, iterInputs)
			if err != nil {
				return loopIterationResult{Index: idx, Success: false, Error: err.Error()}
			}
			if !res.Success {
				return loopIterationResult{Index: idx, Success: false, Error: res.Error.Message}
			}
			if outMap, ok := res.Output.(map[string]interface{}); ok {
				for k, v := range outMap {
					merged[k] = v
				}
			} else {
				merged[bodyID] = res.Output
			}
		}
		return loopIterationResult{Index: idx, Success: true, Output: merged}
	}

	if cfg.Loop.Parallel {
		var wg sync.WaitGroup
		var mu sync.Mutex
		for i, item := range items {
			wg.Add(1)
			go func(idx int, itm interface{}) {
				defer wg.Done()
				r := runIteration(idx, itm)
				mu.Lock()
				results[idx] = r
				mu.Unlock()
			}(i, item)
		}
		wg.Wait()
	} else {
		for i, item := range items {
			select {
			case <-ctx.Done():
				return nil, nil, apperrors.NewNode(apperrors.KindCancelled, "loop.execute", cfg.ID, ctx.Err())
			default:
			}
			results[i] = runIteration(i, item)
		}
	}

	completed, failed := 0, 0
	for _, r := range results {
		if r.Success {
			completed++
		} else {
			failed++
		}
	}
	return map[string]interface{}{
		"items":   results,
		"summary": map[string]interface{}{"total": len(results), "completed": completed, "failed": failed},
	}, &usage, nil
}
