package engine

import "github.com/smilemakc/flowcore/internal/node"

// complexityWeight estimates a node's resource cost for the weighted
// semaphore of spec.md §4.4 ("capacity=max_parallel, weight=max(1,
// complexity_estimate(kind))"). LLM/Agent calls are I/O- and cost-heavy
// relative to a Tool or Condition, so they occupy more of the semaphore's
// capacity per concurrent slot.
func complexityWeight(kind node.Kind) int {
	switch kind {
	case node.KindLLM:
		return 3
	case node.KindAgent:
		return 5
	case node.KindWorkflow, node.KindRecursive:
		return 3
	case node.KindParallel, node.KindLoop:
		return 2
	default:
		return 1
	}
}
