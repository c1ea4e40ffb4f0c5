package builtin

import (
	"context"
	"fmt"

	"github.com/smilemakc/flowcore/internal/apperrors"
	"github.com/smilemakc/flowcore/internal/node"
)

// RecursiveExecutor re-enters the nodes named in recursive_sources with the
// current inputs, merging their outputs into one map carrying whatever
// _can_recurse/converged signal they declared (node.CanRecurse). This is a
// single re-entry round; the engine's runRecursive is what actually loops
// repeated calls to this executor, bounded by depth_ceiling, per the Open
// Question decision that convergence is caller-declared, never diff-enforced
// here.
type RecursiveExecutor struct {
	Invoker Invoker
}

func NewRecursiveExecutor(invoker Invoker) *RecursiveExecutor {
	return &RecursiveExecutor{Invoker: invoker}
}

func (e *RecursiveExecutor) Validate(cfg *node.Config) error {
	if cfg.Recursive == nil || len(cfg.Recursive.RecursiveSources) == 0 {
		return fmt.Errorf("recursive executor: node %s: recursive_sources required", cfg.ID)
	}
	return nil
}

func (e *RecursiveExecutor) Execute(ctx context.Context, cfg *node.Config, inputs map[string]interface{}) (interface{}, *node.Usage, error) {
	merged := make(map[string]interface{})
	var usage node.Usage
	for _, sourceID := range cfg.Recursive.RecursiveSources {
		result, err := e.Invoker.InvokeNode(ctx, sourceID, inputs)
		if err != nil {
			return nil, nil, apperrors.NewNode(apperrors.KindUpstream, "recursive.reenter", cfg.ID, err)
		}
		if !result.Success {
			return nil, nil, apperrors.NewNode(apperrors.KindUpstream, "recursive.reenter", cfg.ID,
				fmt.Errorf("recursive source %s failed: %s", sourceID, result.Error.Message))
		}
		if outMap, ok := result.Output.(map[string]interface{}); ok {
			for k, v := range outMap {
				merged[k] = v
			}
		} else {
			merged[sourceID] = result.Output
		}
		if result.Usage != nil {
			usage.TokensIn += result.Usage.TokensIn
			usage.TokensOut += result.Usage.TokensOut
			usage.Cost += result.Usage.Cost
		}
	}
	canRecurse, converged := node.CanRecurse(merged)
	merged["_can_recurse"] = canRecurse
	merged["converged"] = converged
	return merged, &usage, nil
}
