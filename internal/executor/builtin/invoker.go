package builtin

import (
	"context"

	"github.com/smilemakc/flowcore/internal/node"
)

// Invoker is the callback a control-flow executor (Loop, Parallel, Workflow,
// Recursive) uses to run sibling/child nodes it does not itself know how to
// schedule - that's the engine's (C6) job, since it alone holds the graph,
// context store, and ceilings. The engine implements Invoker and injects
// itself when registering these executors, avoiding an import cycle between
// internal/executor/builtin and internal/engine.
type Invoker interface {
	// InvokeNode runs a single node by id with the given inputs through the
	// engine's dispatch pipeline (schema, cache, retries) and returns its
	// result; it checks no ceiling and publishes no events.
	InvokeNode(ctx context.Context, nodeID string, inputs map[string]interface{}) (*node.ExecutionResult, error)

	// InvokeWorkflow runs a referenced sub-workflow (spec.md §4.3's Workflow
	// kind) to completion and returns its exposed outputs plus aggregated usage.
	InvokeWorkflow(ctx context.Context, workflowRef string, inputs map[string]interface{}, configOverrides map[string]interface{}) (map[string]interface{}, *node.Usage, error)
}
