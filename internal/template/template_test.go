package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePathDotted(t *testing.T) {
	data := map[string]interface{}{"output": map[string]interface{}{"x": 1}}
	v, err := ResolvePath(data, "output.x")
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)
}

func TestResolvePathArrayIndex(t *testing.T) {
	data := map[string]interface{}{"items": []interface{}{"a", "b", "c"}}
	v, err := ResolvePath(data, "items[1]")
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestResolvePathMissing(t *testing.T) {
	data := map[string]interface{}{"x": 1}
	_, err := ResolvePath(data, "y.z")
	assert.Error(t, err)
}

func TestResolveStringPlaceholders(t *testing.T) {
	data := map[string]interface{}{"name": "world", "count": 3}
	out, err := ResolveString("hello {{name}}, count={{count}}", data, true)
	require.NoError(t, err)
	assert.Equal(t, "hello world, count=3", out)
}

func TestResolveStringNonStrictLeavesPlaceholder(t *testing.T) {
	out, err := ResolveString("value={{missing.path}}", map[string]interface{}{}, false)
	require.NoError(t, err)
	assert.Equal(t, "value={{missing.path}}", out)
}

func TestResolveStringStrictErrors(t *testing.T) {
	_, err := ResolveString("value={{missing.path}}", map[string]interface{}{}, true)
	assert.Error(t, err)
}
