package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/flowcore/internal/apperrors"
	"github.com/smilemakc/flowcore/internal/engine"
	"github.com/smilemakc/flowcore/internal/events"
	"github.com/smilemakc/flowcore/internal/executor"
	"github.com/smilemakc/flowcore/internal/node"
)

type stubExecutor struct {
	output interface{}
	usage  *node.Usage
	err    error
}

func (s *stubExecutor) Validate(cfg *node.Config) error { return nil }
func (s *stubExecutor) Execute(ctx context.Context, cfg *node.Config, inputs map[string]interface{}) (interface{}, *node.Usage, error) {
	return s.output, s.usage, s.err
}

func toolNode(id string, deps ...string) *node.Config {
	return &node.Config{ID: id, Kind: node.KindTool, Dependencies: deps, Tool: &node.ToolConfig{ToolName: "noop"}}
}

func recursiveNode(id string, sources []string, deps ...string) *node.Config {
	return &node.Config{ID: id, Kind: node.KindRecursive, Dependencies: deps, Recursive: &node.RecursiveConfig{RecursiveSources: sources}}
}

// countingRecursiveExecutor stands in for builtin.RecursiveExecutor: it
// reports converged once called maxRounds times, letting the engine's
// re-entry loop be tested independently of the real re-entry merge logic.
type countingRecursiveExecutor struct {
	rounds    int
	maxRounds int
}

func (c *countingRecursiveExecutor) Validate(cfg *node.Config) error { return nil }
func (c *countingRecursiveExecutor) Execute(ctx context.Context, cfg *node.Config, inputs map[string]interface{}) (interface{}, *node.Usage, error) {
	c.rounds++
	converged := c.rounds >= c.maxRounds
	return map[string]interface{}{
		"_can_recurse": !converged,
		"converged":    converged,
		"round":        c.rounds,
	}, &node.Usage{TokensIn: 1}, nil
}

func conditionNode(id, expr string, trueBranch, falseBranch []string, deps ...string) *node.Config {
	return &node.Config{
		ID: id, Kind: node.KindCondition, Dependencies: deps,
		Condition: &node.ConditionConfig{Expression: expr, TrueBranch: trueBranch, FalseBranch: falseBranch},
	}
}

func newTestEngine(toolOut map[string]interface{}, toolErr error, condOut map[string]interface{}) *engine.Engine {
	mgr := executor.NewManager()
	mgr.Register(node.KindTool, &stubExecutor{output: toolOut, err: toolErr})
	mgr.Register(node.KindCondition, &stubExecutor{output: condOut})
	dispatcher := executor.NewDispatcher(mgr, executor.NewMemoryCache())
	bus := events.NewBus(nil)
	return engine.New(dispatcher, bus, engine.NewMemoryCheckpointStore(), nil, nil)
}

func TestEngineRunsTwoNodeChain(t *testing.T) {
	e := newTestEngine(map[string]interface{}{"ok": true}, nil, nil)
	nodes := []*node.Config{toolNode("a"), toolNode("b", "a")}
	result, err := e.Run(context.Background(), "wf1", nodes, map[string]interface{}{}, engine.Options{MaxParallel: 4})
	require.NoError(t, err)
	assert.Equal(t, engine.PhaseCompleted, result.Phase)
	assert.Contains(t, result.Outputs, "a")
	assert.Contains(t, result.Outputs, "b")
}

func TestEngineHaltsOnFailureByDefault(t *testing.T) {
	e := newTestEngine(nil, assertableErr{}, nil)
	nodes := []*node.Config{toolNode("a"), toolNode("b", "a")}
	result, err := e.Run(context.Background(), "wf2", nodes, map[string]interface{}{}, engine.Options{MaxParallel: 4})
	require.Error(t, err)
	assert.Equal(t, engine.PhaseFailed, result.Phase)
}

type assertableErr struct{}

func (assertableErr) Error() string { return "boom" }

func TestEngineConditionGatingExcludesFalseBranch(t *testing.T) {
	e := newTestEngine(map[string]interface{}{"x": 1}, nil, map[string]interface{}{"result": true})
	nodes := []*node.Config{
		toolNode("root"),
		conditionNode("cond", "true", []string{"true_child"}, []string{"false_child"}, "root"),
		toolNode("true_child", "cond"),
		toolNode("false_child", "cond"),
	}
	result, err := e.Run(context.Background(), "wf3", nodes, map[string]interface{}{}, engine.Options{MaxParallel: 4})
	require.NoError(t, err)
	assert.Contains(t, result.Outputs, "true_child")
	assert.NotContains(t, result.Outputs, "false_child")
}

func TestEngineTokenCeilingStopsExecution(t *testing.T) {
	mgr := executor.NewManager()
	mgr.Register(node.KindTool, &stubExecutor{output: map[string]interface{}{"ok": true}, usage: &node.Usage{TokensIn: 1000}})
	dispatcher := executor.NewDispatcher(mgr, executor.NewMemoryCache())
	e := engine.New(dispatcher, events.NewBus(nil), engine.NewMemoryCheckpointStore(), nil, nil)

	nodes := []*node.Config{toolNode("a"), toolNode("b", "a")}
	result, err := e.Run(context.Background(), "wf4", nodes, map[string]interface{}{},
		engine.Options{MaxParallel: 4, Ceilings: engine.Ceilings{TokenCeiling: 500}})
	require.Error(t, err)
	assert.Equal(t, engine.PhaseFailed, result.Phase)
}

func TestEngineAlwaysContinuePolicyRunsEveryReachableNode(t *testing.T) {
	mgr := executor.NewManager()
	mgr.Register(node.KindTool, &stubExecutor{err: assertableErr{}})
	dispatcher := executor.NewDispatcher(mgr, executor.NewMemoryCache())
	e := engine.New(dispatcher, events.NewBus(nil), engine.NewMemoryCheckpointStore(), nil, nil)

	nodes := []*node.Config{toolNode("a"), toolNode("b")}
	result, err := e.Run(context.Background(), "wf5", nodes, map[string]interface{}{},
		engine.Options{MaxParallel: 4, FailurePolicy: engine.PolicyAlwaysContinue})
	require.NoError(t, err) // ALWAYS_CONTINUE keeps scheduling regardless of per-node failures
	assert.Len(t, result.Errors, 2)
}

func TestEngineRecursiveNodeLoopsUntilConverged(t *testing.T) {
	mgr := executor.NewManager()
	rec := &countingRecursiveExecutor{maxRounds: 3}
	mgr.Register(node.KindRecursive, rec)
	dispatcher := executor.NewDispatcher(mgr, executor.NewMemoryCache())
	e := engine.New(dispatcher, events.NewBus(nil), engine.NewMemoryCheckpointStore(), nil, nil)

	nodes := []*node.Config{recursiveNode("r", []string{"r"})}
	result, err := e.Run(context.Background(), "wf-recursive", nodes, map[string]interface{}{},
		engine.Options{MaxParallel: 1})
	require.NoError(t, err)
	assert.Equal(t, engine.PhaseCompleted, result.Phase)
	assert.Equal(t, 3, rec.rounds)

	out, ok := result.Outputs["r"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, out["converged"])
	assert.EqualValues(t, 3, out["round"])
}

func TestEngineRecursiveDepthCeilingTrips(t *testing.T) {
	mgr := executor.NewManager()
	rec := &countingRecursiveExecutor{maxRounds: 100} // never converges within the ceiling
	mgr.Register(node.KindRecursive, rec)
	dispatcher := executor.NewDispatcher(mgr, executor.NewMemoryCache())
	e := engine.New(dispatcher, events.NewBus(nil), engine.NewMemoryCheckpointStore(), nil, nil)

	nodes := []*node.Config{recursiveNode("r", []string{"r"})}
	result, err := e.Run(context.Background(), "wf-depth", nodes, map[string]interface{}{},
		engine.Options{MaxParallel: 1, Ceilings: engine.Ceilings{DepthCeiling: 2}})
	require.Error(t, err)
	assert.Equal(t, engine.PhaseFailed, result.Phase)
	assert.Equal(t, apperrors.KindDepthExceeded, apperrors.KindOf(err))
}
