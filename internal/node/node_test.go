package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidateSelfDependency(t *testing.T) {
	c := &Config{ID: "a", Kind: KindTool, Dependencies: []string{"a"}, Tool: &ToolConfig{ToolName: "echo"}}
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "self-dependency")
}

func TestConfigValidateInputMappingSourceMustBeDependency(t *testing.T) {
	c := &Config{
		ID:           "b",
		Kind:         KindTool,
		Dependencies: []string{"a"},
		InputMappings: map[string]InputMapping{
			"value": {SourceNodeID: "z", SourceOutputPath: "result"},
		},
		Tool: &ToolConfig{ToolName: "add_one"},
	}
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in dependencies")
}

func TestConfigValidateOK(t *testing.T) {
	c := &Config{
		ID:           "b",
		Kind:         KindTool,
		Dependencies: []string{"a"},
		InputMappings: map[string]InputMapping{
			"value": {SourceNodeID: "a", SourceOutputPath: "x"},
		},
		Tool: &ToolConfig{ToolName: "add_one"},
	}
	assert.NoError(t, c.Validate())
}

func TestConfigValidateKindSpecific(t *testing.T) {
	cases := []*Config{
		{ID: "n", Kind: KindLLM},
		{ID: "n", Kind: KindAgent, Agent: &AgentConfig{Package: "pkg"}},
		{ID: "n", Kind: KindCondition},
		{ID: "n", Kind: KindParallel, Parallel: &ParallelConfig{Branches: [][]string{{"x"}}, WaitStrategy: "bogus"}},
	}
	for _, c := range cases {
		assert.Error(t, c.Validate())
	}
}

func TestBlueprintValidateMissingDependency(t *testing.T) {
	bp := &Blueprint{
		SchemaVersion: "1",
		Nodes: []*Config{
			{ID: "a", Kind: KindTool, Tool: &ToolConfig{ToolName: "echo"}},
			{ID: "b", Kind: KindTool, Dependencies: []string{"missing"}, Tool: &ToolConfig{ToolName: "add_one"}},
		},
	}
	err := bp.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing node")
}

func TestVersionLockDeterministic(t *testing.T) {
	bp := &Blueprint{
		ID:            "bp1",
		SchemaVersion: "1",
		Nodes: []*Config{
			{ID: "a", Kind: KindTool, Tool: &ToolConfig{ToolName: "echo"}},
		},
	}
	lock1, err := VersionLock(bp)
	require.NoError(t, err)
	lock2, err := VersionLock(bp)
	require.NoError(t, err)
	assert.Equal(t, lock1, lock2)

	bp.Nodes[0].Tool.ToolName = "add_one"
	lock3, err := VersionLock(bp)
	require.NoError(t, err)
	assert.NotEqual(t, lock1, lock3)
}

func TestCanRecurse(t *testing.T) {
	canRecurse, converged := CanRecurse(map[string]interface{}{"_can_recurse": true, "converged": false})
	assert.True(t, canRecurse)
	assert.False(t, converged)

	canRecurse, converged = CanRecurse("not a map")
	assert.False(t, canRecurse)
	assert.True(t, converged)
}
