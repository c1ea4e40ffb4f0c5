package registry

import (
	"errors"
	"testing"

	"github.com/smilemakc/flowcore/internal/apperrors"
	"github.com/smilemakc/flowcore/internal/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndGet(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(node.KindTool, "echo", "echo-impl", false))
	entry, err := r.Get(node.KindTool, "echo")
	require.NoError(t, err)
	assert.Equal(t, "echo-impl", entry)
}

func TestGetNotFound(t *testing.T) {
	r := New()
	_, err := r.Get(node.KindTool, "missing")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestRegisterConflictWithoutForce(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(node.KindTool, "echo", "v1", false))
	err := r.Register(node.KindTool, "echo", "v2", false)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestRegisterForceOverwrite(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(node.KindTool, "echo", "v1", false))
	require.NoError(t, r.Register(node.KindTool, "echo", "v2", true))
	entry, err := r.Get(node.KindTool, "echo")
	require.NoError(t, err)
	assert.Equal(t, "v2", entry)
}

func TestFactoryLazilyResolvedAndCached(t *testing.T) {
	r := New()
	calls := 0
	require.NoError(t, r.RegisterFactory(node.KindAgent, "researcher", func() (Entry, error) {
		calls++
		return "agent-instance", nil
	}, false))

	e1, err := r.Get(node.KindAgent, "researcher")
	require.NoError(t, err)
	e2, err := r.Get(node.KindAgent, "researcher")
	require.NoError(t, err)

	assert.Equal(t, "agent-instance", e1)
	assert.Equal(t, "agent-instance", e2)
	assert.Equal(t, 1, calls)
}

func TestFactoryErrorWrapsInternal(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterFactory(node.KindAgent, "broken", func() (Entry, error) {
		return nil, errors.New("boom")
	}, false))
	_, err := r.Get(node.KindAgent, "broken")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(err))
}

func TestListAndUnregister(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(node.KindTool, "echo", "v1", false))
	require.NoError(t, r.Register(node.KindTool, "add_one", "v1", false))
	assert.ElementsMatch(t, []string{"echo", "add_one"}, r.List(node.KindTool))

	r.Unregister(node.KindTool, "echo")
	assert.False(t, r.Has(node.KindTool, "echo"))
	assert.True(t, r.Has(node.KindTool, "add_one"))
}
