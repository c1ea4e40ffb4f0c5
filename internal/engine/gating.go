package engine

import (
	"github.com/smilemakc/flowcore/internal/graph"
	"github.com/smilemakc/flowcore/internal/node"
)

// shouldExecute decides whether n is still reachable given the branch
// decisions and node outcomes recorded so far, per spec.md §4.4: "a node
// executes if at least one incoming dependency is active" (OR semantics),
// generalizing pkg/engine/dag_executor.go's shouldExecuteNode (which checked
// edge conditions) to dependencies plus Condition-node true/false branch
// membership. Nodes with no dependencies are always active.
func shouldExecute(dag *graph.DAG, st *State, n *node.Config) (bool, string) {
	if len(n.Dependencies) == 0 {
		return true, ""
	}
	for _, depID := range n.Dependencies {
		if depActive(dag, st, depID, n.ID) {
			return true, ""
		}
	}
	return false, "excluded by branch gating: no active dependency reaches this node"
}

// depActive reports whether dependency depID still leads to targetID given
// its recorded status and, if it's a Condition node, whether targetID is a
// member of the branch it actually took.
func depActive(dag *graph.DAG, st *State, depID, targetID string) bool {
	status, known := st.NodeStatus(depID)
	if !known {
		// Dependency hasn't run yet (shouldn't happen for a prior level, but
		// fail open rather than prematurely excluding the node).
		return true
	}
	if status == StatusFailed || status == StatusSkipped {
		return false
	}

	depCfg := dag.ByID[depID]
	if depCfg == nil || depCfg.Kind != node.KindCondition || depCfg.Condition == nil {
		return true
	}

	if len(depCfg.Condition.TrueBranch) == 0 && len(depCfg.Condition.FalseBranch) == 0 {
		return true // not a gated edge of this condition's routing
	}

	output, ok := st.NodeOutput(depID)
	if !ok {
		return true
	}
	outMap, ok := output.(map[string]interface{})
	if !ok {
		return true
	}
	took, _ := outMap["result"].(bool)

	if took {
		return containsString(depCfg.Condition.TrueBranch, targetID)
	}
	return containsString(depCfg.Condition.FalseBranch, targetID)
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}
