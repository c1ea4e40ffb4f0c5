// Package agent implements C8: the agent runtime. An agent is a node that,
// up to agent_config.max_iterations, interleaves reading relevant memory,
// calling a reasoner (an LLM with a tool-aware prompt), optionally invoking
// one of its allowed tools, and updating working memory, per spec.md §4.6.
// Termination is an explicit stop token, an empty tool call, or iteration
// exhaustion. Grounded on pkg/engine/sub_workflow.go's bounded-iteration
// shape (here sequential rather than fanned-out, since an agent's own
// reasoning steps are causally dependent) and on
// internal/executor/builtin/llm.go's registry-resolved-provider pattern,
// generalized from a single completion call to a tool-aware reasoning loop.
package agent

import (
	"context"
	"fmt"

	"github.com/smilemakc/flowcore/internal/apperrors"
	"github.com/smilemakc/flowcore/internal/executor/builtin"
	"github.com/smilemakc/flowcore/internal/memory"
	"github.com/smilemakc/flowcore/internal/node"
	"github.com/smilemakc/flowcore/internal/registry"
)

// Step is one entry of an agent's reasoning history, passed back to the
// Reasoner on the next iteration so it can see what it already tried.
type Step struct {
	Iteration  int                    `json:"iteration"`
	Thought    string                 `json:"thought,omitempty"`
	ToolName   string                 `json:"tool_name,omitempty"`
	ToolArgs   map[string]interface{} `json:"tool_args,omitempty"`
	ToolResult map[string]interface{} `json:"tool_result,omitempty"`
	ToolError  string                 `json:"tool_error,omitempty"`
}

// Decision is what a Reasoner returns for one iteration: a thought, an
// optional tool call, and/or a conclusion.
type Decision struct {
	Thought string `json:"thought"`

	// ToolName, when non-empty, names one of the node's allowed tools to
	// invoke this iteration. An empty ToolName is one of the three
	// termination conditions spec.md §4.6 names ("empty tool call").
	ToolName string                 `json:"tool_name,omitempty"`
	ToolArgs map[string]interface{} `json:"tool_args,omitempty"`

	// Stop is the explicit stop token: when true the loop concludes this
	// iteration regardless of ToolName.
	Stop bool `json:"stop"`

	// FinalOutput, when Stop is true or the loop is otherwise concluding,
	// is what the node reports as its output. If nil, the last Thought is
	// used instead.
	FinalOutput interface{} `json:"final_output,omitempty"`
}

// Reasoner is the registry-resolved, tool-aware counterpart of
// builtin.Provider: given the accumulated history and the tools/memory
// context available this iteration, decide what to do next. Concrete
// reasoners (backed by an LLM) are registered by the host application
// under node.KindAgent, keyed by AgentConfig.Package, mirroring how LLM
// providers are registered under node.KindLLM keyed by provider name.
type Reasoner interface {
	Reason(ctx context.Context, cfg *node.Config, history []Step, workingContext map[string]interface{}) (*Decision, *node.Usage, error)
}

// Executor runs Agent-kind nodes. It is registered into an
// executor.Manager by the host application's wiring (not by
// builtin.RegisterAll, since it depends on a memory façade rather than
// just an Invoker - see internal/executor/builtin/register.go's doc
// comment).
type Executor struct {
	Registry *registry.Registry
	Memory   *memory.UnifiedMemory
}

// NewExecutor builds an agent Executor sharing reg for reasoner/tool lookup
// and mem for memory reads/writes.
func NewExecutor(reg *registry.Registry, mem *memory.UnifiedMemory) *Executor {
	return &Executor{Registry: reg, Memory: mem}
}

func (e *Executor) Validate(cfg *node.Config) error {
	if cfg.Agent == nil || cfg.Agent.Package == "" {
		return fmt.Errorf("agent executor: node %s: agent.package is required", cfg.ID)
	}
	if cfg.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent executor: node %s: agent.max_iterations must be > 0", cfg.ID)
	}
	if !e.Registry.Has(node.KindAgent, cfg.Agent.Package) {
		return apperrors.New(apperrors.KindNotFound, "agent.validate",
			fmt.Errorf("agent package %q not registered", cfg.Agent.Package))
	}
	for _, toolName := range cfg.Agent.Tools {
		if !e.Registry.Has(node.KindTool, toolName) {
			return apperrors.New(apperrors.KindNotFound, "agent.validate",
				fmt.Errorf("agent tool %q not registered", toolName))
		}
	}
	return nil
}

// Execute runs the reason/act loop. Each iteration is an independent
// executor call for bookkeeping, per spec.md §4.6 - here expressed as a
// fresh Reasoner.Reason call per Step rather than a separate dispatch
// round-trip through the engine, since the loop is internal to one node's
// execution and the engine already wraps the whole Execute call with
// timing/retries/cache.
func (e *Executor) Execute(ctx context.Context, cfg *node.Config, inputs map[string]interface{}) (interface{}, *node.Usage, error) {
	entry, err := e.Registry.Get(node.KindAgent, cfg.Agent.Package)
	if err != nil {
		return nil, nil, err
	}
	reasoner, ok := entry.(Reasoner)
	if !ok {
		return nil, nil, apperrors.New(apperrors.KindInternal, "agent.execute",
			fmt.Errorf("registered entry for package %q does not implement agent.Reasoner", cfg.Agent.Package))
	}

	allowedTools := make(map[string]bool, len(cfg.Agent.Tools))
	for _, t := range cfg.Agent.Tools {
		allowedTools[t] = true
	}

	goalKey := "work:" + cfg.ID + ":goal"
	if goal, ok := inputs["goal"]; ok {
		_ = e.Memory.Store(goalKey, goal, map[string]interface{}{"node_id": cfg.ID}, memory.KindWorking)
	}

	var history []Step
	var usage node.Usage
	var finalOutput interface{}

	for i := 1; i <= cfg.Agent.MaxIterations; i++ {
		select {
		case <-ctx.Done():
			return nil, &usage, apperrors.NewNode(apperrors.KindCancelled, "agent.execute", cfg.ID, ctx.Err())
		default:
		}

		workingContext := e.Memory.GetWorkingContext()
		for k, v := range inputs {
			if _, exists := workingContext[k]; !exists {
				workingContext[k] = v
			}
		}

		decision, stepUsage, err := reasoner.Reason(ctx, cfg, history, workingContext)
		if err != nil {
			return nil, &usage, apperrors.NewNode(apperrors.KindUpstream, "agent.reason", cfg.ID, err)
		}
		if stepUsage != nil {
			usage.TokensIn += stepUsage.TokensIn
			usage.TokensOut += stepUsage.TokensOut
			usage.Cost += stepUsage.Cost
			usage.Model = stepUsage.Model
			usage.Provider = stepUsage.Provider
		}

		step := Step{Iteration: i, Thought: decision.Thought}

		if decision.Stop {
			finalOutput = decision.FinalOutput
			if finalOutput == nil {
				finalOutput = decision.Thought
			}
			history = append(history, step)
			break
		}

		if decision.ToolName == "" {
			// Empty tool call: the termination condition of spec.md §4.6.
			finalOutput = decision.FinalOutput
			if finalOutput == nil {
				finalOutput = decision.Thought
			}
			history = append(history, step)
			break
		}

		if !allowedTools[decision.ToolName] {
			step.ToolError = fmt.Sprintf("tool %q is not in this agent's allowed_tools", decision.ToolName)
			history = append(history, step)
			finalOutput = decision.Thought
			continue
		}

		step.ToolName = decision.ToolName
		step.ToolArgs = decision.ToolArgs
		result, toolErr := e.invokeTool(ctx, decision.ToolName, decision.ToolArgs)
		if toolErr != nil {
			step.ToolError = toolErr.Error()
		} else {
			step.ToolResult = result
			memKey := fmt.Sprintf("work:%s:step:%d", cfg.ID, i)
			_ = e.Memory.Store(memKey, result, map[string]interface{}{
				"node_id": cfg.ID, "tool": decision.ToolName, "iteration": i,
			}, memory.KindWorking)
		}
		history = append(history, step)

		if i == cfg.Agent.MaxIterations {
			finalOutput = map[string]interface{}{
				"exhausted": true,
				"last_step": step,
			}
		}
	}

	return map[string]interface{}{
		"output":     finalOutput,
		"iterations": len(history),
		"history":    history,
	}, &usage, nil
}

func (e *Executor) invokeTool(ctx context.Context, toolName string, args map[string]interface{}) (map[string]interface{}, error) {
	entry, err := e.Registry.Get(node.KindTool, toolName)
	if err != nil {
		return nil, err
	}
	tool, ok := entry.(builtin.Tool)
	if !ok {
		return nil, fmt.Errorf("registered entry for tool %q does not implement builtin.Tool", toolName)
	}
	return tool.Execute(ctx, args)
}
