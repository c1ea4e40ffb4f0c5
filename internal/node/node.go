// Package node implements the tagged-union node configuration model (C1):
// a common base shared by every node kind, plus kind-specific extensions,
// validated per spec.md §3's invariants.
package node

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

// Kind selects which runtime executor handles a node.
type Kind string

const (
	KindTool      Kind = "tool"
	KindLLM       Kind = "llm"
	KindAgent     Kind = "agent"
	KindCondition Kind = "condition"
	KindLoop      Kind = "loop"
	KindParallel  Kind = "parallel"
	KindCode      Kind = "code"
	KindWorkflow  Kind = "workflow"
	KindRecursive Kind = "recursive"
	KindHuman     Kind = "human"
	KindMonitor   Kind = "monitor"
	KindSwarm     Kind = "swarm"
)

var validKinds = map[Kind]bool{
	KindTool: true, KindLLM: true, KindAgent: true, KindCondition: true,
	KindLoop: true, KindParallel: true, KindCode: true, KindWorkflow: true,
	KindRecursive: true, KindHuman: true, KindMonitor: true, KindSwarm: true,
}

// InputMapping resolves a node's local input key from an upstream node's
// output via a dotted/jq-style path (resolved by internal/executor's
// BuildInputs through internal/template).
type InputMapping struct {
	SourceNodeID     string `json:"source_node_id"`
	SourceOutputPath string `json:"source_output_path"`
}

// Schema is a permissive type-only schema: field name -> type name. Type
// names unify under the rule in spec.md §4.1: "any ⇝ T, dict ⇝ dict,
// primitives by name".
type Schema map[string]string

// WaitStrategy governs how a Parallel node's branches settle.
type WaitStrategy string

const (
	WaitAll  WaitStrategy = "all"
	WaitAny  WaitStrategy = "any"
	WaitRace WaitStrategy = "race"
)

// ToolConfig is the Tool-kind extension.
type ToolConfig struct {
	ToolName string                 `json:"tool_name"`
	ToolArgs map[string]interface{} `json:"tool_args"`
}

// LLMConfig is the LLM-kind extension.
type LLMConfig struct {
	Model          string                 `json:"model"`
	PromptTemplate string                 `json:"prompt_template"`
	Temperature    float64                `json:"temperature"`
	MaxTokens      *int                   `json:"max_tokens,omitempty"`
	Provider       string                 `json:"provider"`
	LLMConfig      map[string]interface{} `json:"llm_config"`
}

// AgentConfig is the Agent-kind extension. MemoryConfig is left as a raw map
// and parsed by internal/agent/internal/memory to avoid a node -> memory
// package import cycle.
type AgentConfig struct {
	Package       string                 `json:"package"`
	AgentConfig   map[string]interface{} `json:"agent_config"`
	Tools         []string               `json:"tools"`
	MaxIterations int                    `json:"max_iterations"`
	MemoryConfig  map[string]interface{} `json:"memory_config,omitempty"`
}

// ConditionConfig is the Condition-kind extension.
type ConditionConfig struct {
	Expression  string   `json:"expression"`
	TrueBranch  []string `json:"true_branch"`
	FalseBranch []string `json:"false_branch"`
}

// LoopConfig is the Loop-kind extension.
type LoopConfig struct {
	IteratorPath  string `json:"iterator_path"`
	BodyNodes     []string `json:"body_nodes"`
	MaxIterations int    `json:"max_iterations"`
	Parallel      bool   `json:"parallel"`
}

// ParallelConfig is the Parallel-kind extension.
type ParallelConfig struct {
	Branches     [][]string   `json:"branches"`
	WaitStrategy WaitStrategy `json:"wait_strategy"`
}

// WorkflowConfig is the Workflow-kind extension (nested sub-workflow).
type WorkflowConfig struct {
	WorkflowRef    string                 `json:"workflow_ref"`
	ConfigOverrides map[string]interface{} `json:"config_overrides"`
	ExposedOutputs []string               `json:"exposed_outputs"`
}

// CodeConfig is the Code-kind extension (spec.md §4.3: "runs user code in a
// sandbox with a declared language... and imports whitelist").
type CodeConfig struct {
	Language string   `json:"language"`
	Code     string   `json:"code"`
	Imports  []string `json:"imports,omitempty"`
}

// RecursiveConfig is the Recursive-kind extension. Convergence itself is
// caller-declared in the node's own output (output._can_recurse / converged),
// not in config - see internal/engine/recursive.go and DESIGN.md's Open
// Question decision.
type RecursiveConfig struct {
	RecursiveSources []string `json:"recursive_sources"`
}

// Config is the tagged union of spec.md §3's NodeConfig. Exactly one of the
// kind-specific pointers is populated, matching Kind.
type Config struct {
	ID             string                  `json:"id" validate:"required"`
	Kind           Kind                    `json:"kind" validate:"required"`
	Name           string                  `json:"name,omitempty"`
	Dependencies   []string                `json:"dependencies"`
	Level          int                     `json:"level"`
	InputMappings  map[string]InputMapping `json:"input_mappings,omitempty"`
	OutputMappings map[string]string       `json:"output_mappings,omitempty"`
	InputSchema    Schema                  `json:"input_schema,omitempty"`
	OutputSchema   Schema                  `json:"output_schema,omitempty"`
	UseCache       bool                    `json:"use_cache"`
	TimeoutSeconds *int                    `json:"timeout_seconds,omitempty"`
	Retries        int                     `json:"retries" validate:"gte=0"`
	BackoffSeconds float64                 `json:"backoff_seconds" validate:"gte=0"`

	Tool      *ToolConfig      `json:"tool,omitempty"`
	LLM       *LLMConfig       `json:"llm,omitempty"`
	Agent     *AgentConfig     `json:"agent,omitempty"`
	Condition *ConditionConfig `json:"condition,omitempty"`
	Loop      *LoopConfig      `json:"loop,omitempty"`
	Parallel  *ParallelConfig  `json:"parallel,omitempty"`
	Workflow  *WorkflowConfig  `json:"workflow,omitempty"`
	Recursive *RecursiveConfig `json:"recursive,omitempty"`
	Code      *CodeConfig      `json:"code,omitempty"`
}

// Timeout returns the node's configured timeout, or 0 if unset (no timeout).
func (c *Config) Timeout() time.Duration {
	if c.TimeoutSeconds == nil {
		return 0
	}
	return time.Duration(*c.TimeoutSeconds) * time.Second
}

// Validate checks the invariants spec.md §3 assigns to a single NodeConfig
// in isolation: no self-dependency, input-mapping source ids drawn from
// dependencies, and kind-specific required fields. Cross-node invariants
// (dependency existence, acyclicity) are checked by internal/graph.Build,
// which has the full node set.
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return fmt.Errorf("node: %w", err)
	}
	if !validKinds[c.Kind] {
		return fmt.Errorf("node %s: unknown kind %q", c.ID, c.Kind)
	}
	for _, dep := range c.Dependencies {
		if dep == c.ID {
			return fmt.Errorf("node %s: self-dependency", c.ID)
		}
	}
	depSet := make(map[string]bool, len(c.Dependencies))
	for _, dep := range c.Dependencies {
		depSet[dep] = true
	}
	for key, mapping := range c.InputMappings {
		if !depSet[mapping.SourceNodeID] {
			return fmt.Errorf("node %s: input_mappings[%s].source_node_id %q is not in dependencies",
				c.ID, key, mapping.SourceNodeID)
		}
	}
	if c.Retries < 0 {
		return fmt.Errorf("node %s: retries must be >= 0", c.ID)
	}
	if c.BackoffSeconds < 0 {
		return fmt.Errorf("node %s: backoff_seconds must be >= 0", c.ID)
	}
	return c.validateKind()
}

func (c *Config) validateKind() error {
	switch c.Kind {
	case KindTool:
		if c.Tool == nil || c.Tool.ToolName == "" {
			return fmt.Errorf("node %s: tool.tool_name is required", c.ID)
		}
	case KindLLM:
		if c.LLM == nil || c.LLM.Model == "" {
			return fmt.Errorf("node %s: llm.model is required", c.ID)
		}
	case KindAgent:
		if c.Agent == nil || c.Agent.Package == "" {
			return fmt.Errorf("node %s: agent.package is required", c.ID)
		}
		if c.Agent.MaxIterations <= 0 {
			return fmt.Errorf("node %s: agent.max_iterations must be > 0", c.ID)
		}
	case KindCondition:
		if c.Condition == nil || c.Condition.Expression == "" {
			return fmt.Errorf("node %s: condition.expression is required", c.ID)
		}
	case KindLoop:
		if c.Loop == nil || c.Loop.IteratorPath == "" {
			return fmt.Errorf("node %s: loop.iterator_path is required", c.ID)
		}
	case KindParallel:
		if c.Parallel == nil || len(c.Parallel.Branches) == 0 {
			return fmt.Errorf("node %s: parallel.branches must be non-empty", c.ID)
		}
		switch c.Parallel.WaitStrategy {
		case WaitAll, WaitAny, WaitRace:
		default:
			return fmt.Errorf("node %s: parallel.wait_strategy %q invalid", c.ID, c.Parallel.WaitStrategy)
		}
	case KindWorkflow:
		if c.Workflow == nil || c.Workflow.WorkflowRef == "" {
			return fmt.Errorf("node %s: workflow.workflow_ref is required", c.ID)
		}
	case KindRecursive:
		if c.Recursive == nil || len(c.Recursive.RecursiveSources) == 0 {
			return fmt.Errorf("node %s: recursive.recursive_sources must be non-empty", c.ID)
		}
	case KindCode:
		if c.Code == nil || c.Code.Language == "" || c.Code.Code == "" {
			return fmt.Errorf("node %s: code.language and code.code are required", c.ID)
		}
	}
	return nil
}
