// Package builtin implements the per-kind Executor (C5) realizations for
// every node.Kind, registered into an executor.Manager by cmd/server's
// wiring. Grounded on pkg/executor/builtin's executor set, generalized to
// the executor.Executor interface and node.Config tagged union.
package builtin

import (
	"context"
	"fmt"

	"github.com/smilemakc/flowcore/internal/apperrors"
	"github.com/smilemakc/flowcore/internal/executor"
	"github.com/smilemakc/flowcore/internal/node"
	"github.com/smilemakc/flowcore/internal/registry"
)

// Tool is the external interface contract of spec.md §6: "name,
// description, get_input_schema, get_output_schema, execute".
type Tool interface {
	Name() string
	Description() string
	InputSchema() node.Schema
	OutputSchema() node.Schema
	Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)
}

// ToolExecutor dispatches Tool-kind nodes by resolving tool_name through the
// registry and merging node inputs over the node's own declared tool_args.
type ToolExecutor struct {
	Registry *registry.Registry
}

func NewToolExecutor(reg *registry.Registry) *ToolExecutor {
	return &ToolExecutor{Registry: reg}
}

func (e *ToolExecutor) Validate(cfg *node.Config) error {
	if cfg.Tool == nil || cfg.Tool.ToolName == "" {
		return fmt.Errorf("tool executor: node %s: tool_name required", cfg.ID)
	}
	if !e.Registry.Has(node.KindTool, cfg.Tool.ToolName) {
		return apperrors.New(apperrors.KindNotFound, "tool.validate",
			fmt.Errorf("tool %q not registered", cfg.Tool.ToolName))
	}
	return nil
}

func (e *ToolExecutor) Execute(ctx context.Context, cfg *node.Config, inputs map[string]interface{}) (interface{}, *node.Usage, error) {
	entry, err := e.Registry.Get(node.KindTool, cfg.Tool.ToolName)
	if err != nil {
		return nil, nil, err
	}
	tool, ok := entry.(Tool)
	if !ok {
		return nil, nil, apperrors.New(apperrors.KindInternal, "tool.execute",
			fmt.Errorf("registered entry for %q does not implement builtin.Tool", cfg.Tool.ToolName))
	}

	args := make(map[string]interface{}, len(cfg.Tool.ToolArgs)+len(inputs))
	for k, v := range cfg.Tool.ToolArgs {
		args[k] = v
	}
	for k, v := range inputs {
		args[k] = v
	}

	out, err := tool.Execute(ctx, args)
	if err != nil {
		return nil, nil, apperrors.NewNode(apperrors.KindUpstream, "tool.execute", cfg.ID, err)
	}
	return out, nil, nil
}
