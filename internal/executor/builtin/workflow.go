package builtin

import (
	"context"
	"fmt"

	"github.com/smilemakc/flowcore/internal/node"
)

// WorkflowExecutor dispatches Workflow-kind nodes: a nested sub-workflow
// reference, run to completion by the engine via Invoker, with only
// exposed_outputs surfaced to the parent graph.
type WorkflowExecutor struct {
	Invoker Invoker
}

func NewWorkflowExecutor(invoker Invoker) *WorkflowExecutor {
	return &WorkflowExecutor{Invoker: invoker}
}

func (e *WorkflowExecutor) Validate(cfg *node.Config) error {
	if cfg.Workflow == nil || cfg.Workflow.WorkflowRef == "" {
		return fmt.Errorf("workflow executor: node %s: workflow_ref required", cfg.ID)
	}
	return nil
}

func (e *WorkflowExecutor) Execute(ctx context.Context, cfg *node.Config, inputs map[string]interface{}) (interface{}, *node.Usage, error) {
	outputs, usage, err := e.Invoker.InvokeWorkflow(ctx, cfg.Workflow.WorkflowRef, inputs, cfg.Workflow.ConfigOverrides)
	if err != nil {
		return nil, nil, err
	}
	if len(cfg.Workflow.ExposedOutputs) == 0 {
		return outputs, usage, nil
	}
	exposed := make(map[string]interface{}, len(cfg.Workflow.ExposedOutputs))
	for _, key := range cfg.Workflow.ExposedOutputs {
		if v, ok := outputs[key]; ok {
			exposed[key] = v
		}
	}
	return exposed, usage, nil
}
