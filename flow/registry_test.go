package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passthroughBody(_ context.Context, input any) (any, error) {
	return input, nil
}

func TestRegistry_CompileRejectsUndeclaredStart(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode("a", passthroughBody, nil))

	_, err := g.Compile("missing", "")
	require.Error(t, err)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CodeMissingStartOrEnd, ce.Code)
}

func TestRegistry_DuplicateNodeName(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode("a", passthroughBody, nil))
	err := g.AddNode("a", passthroughBody, nil)
	require.Error(t, err)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CodeDuplicateNodeName, ce.Code)
}

func TestRegistry_InvalidNodeName(t *testing.T) {
	g := NewGraph()
	err := g.AddNode("has space", passthroughBody, nil)
	require.Error(t, err)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CodeInvalidNodeName, ce.Code)
}

func TestRegistry_EdgeFromUndeclaredNode(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode("a", passthroughBody, nil))
	err := g.Edge("ghost", "a")
	require.Error(t, err)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CodeNodeNotFound, ce.Code)
}

func TestRegistry_DirectEdgeToUndeclaredTarget(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode("a", passthroughBody, nil))
	require.NoError(t, g.Edge("a", "ghost"))

	_, err := g.Compile("a", "")
	require.Error(t, err)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CodeMissingSourceNode, ce.Code)
}

func TestRegistry_DuplicateEdgeDeclaration(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode("a", passthroughBody, nil))
	require.NoError(t, g.AddNode("b", passthroughBody, nil))
	require.NoError(t, g.AddNode("c", passthroughBody, nil))
	require.NoError(t, g.Edge("a", "b"))

	err := g.Edge("a", "c")
	require.Error(t, err)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CodeDuplicateEdge, ce.Code)
}

func TestRegistry_MergeNodeMissingBranchSource(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode("a", passthroughBody, nil))
	mergeBody := func(_ context.Context, inputs map[string]any) (any, error) { return inputs, nil }
	require.NoError(t, g.AddMergeNode("m", []string{"a", "ghost"}, mergeBody, nil))

	_, err := g.Compile("a", "")
	require.Error(t, err)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CodeMergeMissingBranch, ce.Code)
}

func TestRegistry_AddNodeAfterCompileFails(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode("a", passthroughBody, nil))
	_, err := g.Compile("a", "")
	require.NoError(t, err)

	err = g.AddNode("b", passthroughBody, nil)
	require.Error(t, err)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CodeMissingStartOrEnd, ce.Code)
}

func TestRegistry_GetStructurePreservesDeclarationOrder(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode("start", passthroughBody, nil))
	require.NoError(t, g.AddNode("b", passthroughBody, nil))
	require.NoError(t, g.AddNode("a", passthroughBody, nil))
	require.NoError(t, g.Edge("start", "a"))

	r, err := g.Compile("start", "")
	require.NoError(t, err)

	names := make([]string, 0, 3)
	for _, e := range r.GetStructure() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"start", "b", "a"}, names)
}
