package builtin

import (
	"github.com/smilemakc/flowcore/internal/executor"
	"github.com/smilemakc/flowcore/internal/node"
	"github.com/smilemakc/flowcore/internal/registry"
)

// RegisterAll wires every builtin Executor into mgr. invoker is supplied by
// the engine (the only thing that knows how to run a node/workflow by id);
// agent is registered separately by cmd/server's wiring since it needs
// a memory façade, not just an Invoker.
func RegisterAll(mgr *executor.Manager, reg *registry.Registry, invoker Invoker) {
	mgr.Register(node.KindTool, NewToolExecutor(reg))
	mgr.Register(node.KindLLM, NewLLMExecutor(reg))
	mgr.Register(node.KindCondition, NewConditionExecutor())
	mgr.Register(node.KindCode, NewCodeExecutor())
	mgr.Register(node.KindLoop, NewLoopExecutor(invoker))
	mgr.Register(node.KindParallel, NewParallelExecutor(invoker))
	mgr.Register(node.KindWorkflow, NewWorkflowExecutor(invoker))
	mgr.Register(node.KindRecursive, NewRecursiveExecutor(invoker))
	mgr.Register(node.KindHuman, NewPassthroughExecutor(node.KindHuman))
	mgr.Register(node.KindMonitor, NewPassthroughExecutor(node.KindMonitor))
	mgr.Register(node.KindSwarm, NewPassthroughExecutor(node.KindSwarm))
}
