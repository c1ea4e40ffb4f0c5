package builtin_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/flowcore/internal/executor/builtin"
	"github.com/smilemakc/flowcore/internal/node"
	"github.com/smilemakc/flowcore/internal/registry"
)

// --- ConditionExecutor ---

func TestConditionExecutorTrueBranch(t *testing.T) {
	e := builtin.NewConditionExecutor()
	cfg := &node.Config{ID: "c1", Kind: node.KindCondition, Condition: &node.ConditionConfig{Expression: "input.score > 50"}}
	require.NoError(t, e.Validate(cfg))
	out, _, err := e.Execute(context.Background(), cfg, map[string]interface{}{"score": 80})
	require.NoError(t, err)
	m := out.(map[string]interface{})
	assert.Equal(t, true, m["result"])
	assert.Equal(t, "true_branch", m["branch"])
}

func TestConditionExecutorFalseBranch(t *testing.T) {
	e := builtin.NewConditionExecutor()
	cfg := &node.Config{ID: "c1", Kind: node.KindCondition, Condition: &node.ConditionConfig{Expression: "input.score > 50"}}
	out, _, err := e.Execute(context.Background(), cfg, map[string]interface{}{"score": 10})
	require.NoError(t, err)
	m := out.(map[string]interface{})
	assert.Equal(t, false, m["result"])
	assert.Equal(t, "false_branch", m["branch"])
}

func TestConditionExecutorNonBooleanRejected(t *testing.T) {
	e := builtin.NewConditionExecutor()
	cfg := &node.Config{ID: "c1", Kind: node.KindCondition, Condition: &node.ConditionConfig{Expression: "input.score"}}
	_, _, err := e.Execute(context.Background(), cfg, map[string]interface{}{"score": 10})
	require.Error(t, err)
}

// --- ToolExecutor ---

type echoTool struct{ calls int }

func (t *echoTool) Name() string                    { return "echo" }
func (t *echoTool) Description() string              { return "echoes args" }
func (t *echoTool) InputSchema() node.Schema         { return nil }
func (t *echoTool) OutputSchema() node.Schema        { return nil }
func (t *echoTool) Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	t.calls++
	return args, nil
}

func TestToolExecutorMergesToolArgsAndInputsWithInputsWinning(t *testing.T) {
	reg := registry.New()
	tool := &echoTool{}
	require.NoError(t, reg.Register(node.KindTool, "echo", tool, false))

	e := builtin.NewToolExecutor(reg)
	cfg := &node.Config{ID: "t1", Kind: node.KindTool, Tool: &node.ToolConfig{
		ToolName: "echo",
		ToolArgs: map[string]interface{}{"a": 1, "b": 2},
	}}
	out, _, err := e.Execute(context.Background(), cfg, map[string]interface{}{"b": 99})
	require.NoError(t, err)
	m := out.(map[string]interface{})
	assert.Equal(t, 1, m["a"])
	assert.Equal(t, 99, m["b"])
	assert.Equal(t, 1, tool.calls)
}

func TestToolExecutorValidateRejectsUnregisteredTool(t *testing.T) {
	reg := registry.New()
	e := builtin.NewToolExecutor(reg)
	cfg := &node.Config{ID: "t1", Kind: node.KindTool, Tool: &node.ToolConfig{ToolName: "missing"}}
	require.Error(t, e.Validate(cfg))
}

// --- CodeExecutor ---

func TestCodeExecutorRunsExprLanguage(t *testing.T) {
	e := builtin.NewCodeExecutor()
	cfg := &node.Config{ID: "code1", Kind: node.KindCode, Code: &node.CodeConfig{Language: "expr", Code: "input.x + input.y"}}
	require.NoError(t, e.Validate(cfg))
	out, _, err := e.Execute(context.Background(), cfg, map[string]interface{}{"x": 2, "y": 3})
	require.NoError(t, err)
	assert.Equal(t, 5, out.(map[string]interface{})["result"])
}

func TestCodeExecutorRejectsUnsupportedLanguage(t *testing.T) {
	e := builtin.NewCodeExecutor()
	cfg := &node.Config{ID: "code1", Kind: node.KindCode, Code: &node.CodeConfig{Language: "python", Code: "x + y"}}
	require.Error(t, e.Validate(cfg))
}

func TestCodeExecutorImportsWhitelistFiltersInputs(t *testing.T) {
	e := builtin.NewCodeExecutor()
	cfg := &node.Config{ID: "code1", Kind: node.KindCode, Code: &node.CodeConfig{
		Language: "expr", Code: "input.allowed", Imports: []string{"allowed"},
	}}
	out, _, err := e.Execute(context.Background(), cfg, map[string]interface{}{"allowed": "yes", "secret": "no"})
	require.NoError(t, err)
	assert.Equal(t, "yes", out.(map[string]interface{})["result"])
}

// --- PassthroughExecutor ---

func TestPassthroughExecutorEchoesInputs(t *testing.T) {
	e := builtin.NewPassthroughExecutor(node.KindHuman)
	out, _, err := e.Execute(context.Background(), &node.Config{ID: "h1", Kind: node.KindHuman}, map[string]interface{}{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"k": "v"}, out)
}

// --- ParallelExecutor ---

type fakeInvoker struct {
	results map[string]*node.ExecutionResult
	delays  map[string]time.Duration
	calls   map[string]int
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{results: map[string]*node.ExecutionResult{}, delays: map[string]time.Duration{}, calls: map[string]int{}}
}

func (f *fakeInvoker) InvokeNode(ctx context.Context, nodeID string, inputs map[string]interface{}) (*node.ExecutionResult, error) {
	f.calls[nodeID]++
	if d, ok := f.delays[nodeID]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r, ok := f.results[nodeID]
	if !ok {
		return nil, errors.New("no result configured for " + nodeID)
	}
	return r, nil
}

func (f *fakeInvoker) InvokeWorkflow(ctx context.Context, ref string, inputs map[string]interface{}, overrides map[string]interface{}) (map[string]interface{}, *node.Usage, error) {
	return nil, nil, errors.New("not implemented in fake")
}

func ok(out map[string]interface{}) *node.ExecutionResult {
	return &node.ExecutionResult{Success: true, Output: out}
}

func failed(msg string) *node.ExecutionResult {
	return &node.ExecutionResult{Success: false, Error: &node.ExecutionError{Kind: "Upstream", Message: msg}}
}

func TestParallelAllFailsIfAnyBranchFails(t *testing.T) {
	inv := newFakeInvoker()
	inv.results["a"] = ok(map[string]interface{}{"r": "a"})
	inv.results["b"] = failed("boom")
	e := builtin.NewParallelExecutor(inv)
	cfg := &node.Config{ID: "p1", Kind: node.KindParallel, Parallel: &node.ParallelConfig{
		Branches: [][]string{{"a"}, {"b"}}, WaitStrategy: node.WaitAll,
	}}
	_, _, err := e.Execute(context.Background(), cfg, map[string]interface{}{})
	require.Error(t, err)
}

func TestParallelAllSucceedsIfEveryBranchSucceeds(t *testing.T) {
	inv := newFakeInvoker()
	inv.results["a"] = ok(map[string]interface{}{"r": "a"})
	inv.results["b"] = ok(map[string]interface{}{"r": "b"})
	e := builtin.NewParallelExecutor(inv)
	cfg := &node.Config{ID: "p1", Kind: node.KindParallel, Parallel: &node.ParallelConfig{
		Branches: [][]string{{"a"}, {"b"}}, WaitStrategy: node.WaitAll,
	}}
	out, _, err := e.Execute(context.Background(), cfg, map[string]interface{}{})
	require.NoError(t, err)
	branches := out.(map[string]interface{})["branches"].([]map[string]interface{})
	assert.Len(t, branches, 2)
}

func TestParallelAnySettlesOnFirstSuccessAbsorbingFailures(t *testing.T) {
	inv := newFakeInvoker()
	inv.results["slow_fail"] = failed("boom")
	inv.results["fast_ok"] = ok(map[string]interface{}{"r": "won"})
	e := builtin.NewParallelExecutor(inv)
	cfg := &node.Config{ID: "p1", Kind: node.KindParallel, Parallel: &node.ParallelConfig{
		Branches: [][]string{{"slow_fail"}, {"fast_ok"}}, WaitStrategy: node.WaitAny,
	}}
	out, _, err := e.Execute(context.Background(), cfg, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"r": "won"}, out.(map[string]interface{})["output"])
}

func TestParallelAnyFailsWhenAllBranchesFail(t *testing.T) {
	inv := newFakeInvoker()
	inv.results["a"] = failed("boom1")
	inv.results["b"] = failed("boom2")
	e := builtin.NewParallelExecutor(inv)
	cfg := &node.Config{ID: "p1", Kind: node.KindParallel, Parallel: &node.ParallelConfig{
		Branches: [][]string{{"a"}, {"b"}}, WaitStrategy: node.WaitAny,
	}}
	_, _, err := e.Execute(context.Background(), cfg, map[string]interface{}{})
	require.Error(t, err)
}

func TestParallelRaceSettlesOnFirstCompletionEvenIfFailure(t *testing.T) {
	inv := newFakeInvoker()
	inv.delays["slow_ok"] = 50 * time.Millisecond
	inv.results["slow_ok"] = ok(map[string]interface{}{"r": "slow"})
	inv.results["fast_fail"] = failed("fast failure")
	e := builtin.NewParallelExecutor(inv)
	cfg := &node.Config{ID: "p1", Kind: node.KindParallel, Parallel: &node.ParallelConfig{
		Branches: [][]string{{"slow_ok"}, {"fast_fail"}}, WaitStrategy: node.WaitRace,
	}}
	// race settles on whichever completes first (the un-delayed branch),
	// and it is the failing one here - differing from "any" which would
	// have waited for slow_ok's success instead.
	_, _, err := e.Execute(context.Background(), cfg, map[string]interface{}{})
	require.Error(t, err)
}

func TestParallelValidateRejectsUnknownWaitStrategy(t *testing.T) {
	e := builtin.NewParallelExecutor(newFakeInvoker())
	cfg := &node.Config{ID: "p1", Kind: node.KindParallel, Parallel: &node.ParallelConfig{
		Branches: [][]string{{"a"}}, WaitStrategy: "bogus",
	}}
	require.Error(t, e.Validate(cfg))
}

// --- LoopExecutor ---

func TestLoopExecutorRunsBodyPerItem(t *testing.T) {
	inv := newFakeInvoker()
	inv.results["body"] = ok(map[string]interface{}{"done": true})
	e := builtin.NewLoopExecutor(inv)
	cfg := &node.Config{ID: "loop1", Kind: node.KindLoop, Loop: &node.LoopConfig{
		IteratorPath: "items", BodyNodes: []string{"body"},
	}}
	out, _, err := e.Execute(context.Background(), cfg, map[string]interface{}{
		"items": []interface{}{"x", "y", "z"},
	})
	require.NoError(t, err)
	summary := out.(map[string]interface{})["summary"].(map[string]interface{})
	assert.Equal(t, 3, summary["total"])
	assert.Equal(t, 3, summary["completed"])
	assert.Equal(t, 3, inv.calls["body"])
}

func TestLoopExecutorRespectsMaxIterations(t *testing.T) {
	inv := newFakeInvoker()
	inv.results["body"] = ok(map[string]interface{}{"done": true})
	e := builtin.NewLoopExecutor(inv)
	cfg := &node.Config{ID: "loop1", Kind: node.KindLoop, Loop: &node.LoopConfig{
		IteratorPath: "items", BodyNodes: []string{"body"}, MaxIterations: 2,
	}}
	out, _, err := e.Execute(context.Background(), cfg, map[string]interface{}{
		"items": []interface{}{"x", "y", "z", "w"},
	})
	require.NoError(t, err)
	summary := out.(map[string]interface{})["summary"].(map[string]interface{})
	assert.Equal(t, 2, summary["total"])
}

// --- WorkflowExecutor ---

type fakeWorkflowInvoker struct{ fakeInvoker }

func (f *fakeWorkflowInvoker) InvokeWorkflow(ctx context.Context, ref string, inputs map[string]interface{}, overrides map[string]interface{}) (map[string]interface{}, *node.Usage, error) {
	return map[string]interface{}{"a": 1, "b": 2}, &node.Usage{TokensIn: 10}, nil
}

func TestWorkflowExecutorFiltersExposedOutputs(t *testing.T) {
	inv := &fakeWorkflowInvoker{fakeInvoker: *newFakeInvoker()}
	e := builtin.NewWorkflowExecutor(inv)
	cfg := &node.Config{ID: "w1", Kind: node.KindWorkflow, Workflow: &node.WorkflowConfig{
		WorkflowRef: "sub", ExposedOutputs: []string{"a"},
	}}
	out, usage, err := e.Execute(context.Background(), cfg, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": 1}, out)
	assert.Equal(t, 10, usage.TokensIn)
}
