// Package executor implements C5: per-kind executor dispatch. An Executor
// is the async callable of spec.md §4.3's canonical signature
// "(workflow, cfg, ctx) → NodeExecutionResult", simplified here to
// "(ctx, cfg, inputs) → (output, usage, err)" - the dispatch pipeline
// (Dispatcher.Execute, in dispatch.go) wraps that into a full
// node.ExecutionResult with timing, retries, cache, and schema checks.
package executor

import (
	"context"

	"github.com/smilemakc/flowcore/internal/node"
)

// Executor runs a single node of a given kind.
type Executor interface {
	// Execute runs cfg against inputs and returns its output plus any usage
	// accounting (nil if not applicable to this kind).
	Execute(ctx context.Context, cfg *node.Config, inputs map[string]interface{}) (interface{}, *node.Usage, error)
	// Validate checks kind-specific configuration beyond node.Config.Validate,
	// e.g. that a referenced tool/workflow exists in the registry.
	Validate(cfg *node.Config) error
}

// Manager is the C5 "registry of kind → executor".
type Manager struct {
	executors map[node.Kind]Executor
}

// NewManager builds an empty Manager.
func NewManager() *Manager {
	return &Manager{executors: make(map[node.Kind]Executor)}
}

// Register binds an Executor to a Kind.
func (m *Manager) Register(kind node.Kind, e Executor) {
	m.executors[kind] = e
}

// Get returns the Executor registered for kind, or nil, ok=false.
func (m *Manager) Get(kind node.Kind) (Executor, bool) {
	e, ok := m.executors[kind]
	return e, ok
}

// BaseExecutor provides the small config-reading helpers the teacher's
// pkg/executor.BaseExecutor offers (GetString/GetInt/GetBool with JSON
// numeric-as-float64 awareness), useful for executors reading
// map[string]interface{}-shaped tool_args / llm_config / agent_config.
type BaseExecutor struct {
	NodeType node.Kind
}

func GetString(m map[string]interface{}, key, def string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func GetInt(m map[string]interface{}, key string, def int) int {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return def
}

func GetBool(m map[string]interface{}, key string, def bool) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}
