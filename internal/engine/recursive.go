package engine

import (
	"context"

	"github.com/smilemakc/flowcore/internal/node"
)

// runRecursive drives a Recursive-kind node through repeated re-entry
// rounds. builtin.RecursiveExecutor performs exactly one round over
// recursive_sources per Dispatcher.Execute call, merging its sources'
// outputs into one map and stamping _can_recurse/converged onto it; this
// loop is what actually keeps calling it - feeding one round's merged
// output back in as the next round's inputs - until node.CanRecurse
// reports converged or Ceilings.CheckDepth trips, per spec.md §4.4's
// caller-declared convergence bounded by depth_ceiling.
func (e *Engine) runRecursive(ctx context.Context, st *State, opts Options, cfg *node.Config, inputs map[string]interface{}) (*node.ExecutionResult, error) {
	roundInputs := inputs
	for {
		result := e.Dispatcher.Execute(ctx, cfg, roundInputs)
		if !result.Success {
			return result, nil
		}

		canRecurse, converged := node.CanRecurse(result.Output)
		if !canRecurse || converged {
			return result, nil
		}

		if result.Usage != nil {
			st.AddUsage(result.Usage)
		}
		if err := opts.Ceilings.CheckDepth(st); err != nil {
			return nil, err
		}
		st.IncrDepth()

		if outMap, ok := result.Output.(map[string]interface{}); ok {
			roundInputs = outMap
		} else {
			roundInputs = inputs
		}
	}
}
