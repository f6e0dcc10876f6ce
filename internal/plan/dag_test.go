package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDAG_AddNode_RejectsDanglingDependency(t *testing.T) {
	g := NewDAG()
	err := g.AddNode("a", []string{"missing"})
	require.Error(t, err)
	var dangling *ErrDanglingDependency
	require.ErrorAs(t, err, &dangling)
}

func TestDAG_AddNode_RejectsCycle(t *testing.T) {
	g := NewDAG()
	require.NoError(t, g.AddNode("x", nil))
	require.NoError(t, g.AddNode("y", []string{"x"}))

	// AddNode can only ever wire a new node's dependencies onto nodes that
	// already exist, so a genuine cycle can't arise through the public API
	// alone; exercise the internal cycle check directly by forcing one,
	// mirroring how Reparent could in principle introduce a cycle if a
	// caller reparented a task onto one of its own descendants.
	g.dependsOn["x"] = []string{"y"}
	g.dependents["y"] = append(g.dependents["y"], "x")
	assert.True(t, g.hasCycle())

	// With the cycle in place, AddNode must reject and roll back a new node.
	err := g.AddNode("z", []string{"x"})
	var cyc *ErrCycle
	assert.ErrorAs(t, err, &cyc)
	assert.False(t, g.nodes["z"])
}

func TestDAG_Ready(t *testing.T) {
	g := NewDAG()
	require.NoError(t, g.AddNode("a", nil))
	require.NoError(t, g.AddNode("b", []string{"a"}))

	assert.True(t, g.Ready("a", map[string]bool{}))
	assert.False(t, g.Ready("b", map[string]bool{}))
	assert.True(t, g.Ready("b", map[string]bool{"a": true}))
}

func TestDAG_Reparent(t *testing.T) {
	g := NewDAG()
	require.NoError(t, g.AddNode("a", nil))
	require.NoError(t, g.AddNode("b", []string{"a"}))
	require.NoError(t, g.AddNode("c", []string{"a"}))
	require.NoError(t, g.AddNode("repl", nil))

	g.Reparent("a", []string{"repl"})

	assert.ElementsMatch(t, []string{"repl"}, g.Dependencies("b"))
	assert.ElementsMatch(t, []string{"repl"}, g.Dependencies("c"))
	assert.Empty(t, g.Dependents("a"))
	assert.ElementsMatch(t, []string{"b", "c"}, g.Dependents("repl"))
}

func TestDAG_Clone_Independent(t *testing.T) {
	g := NewDAG()
	require.NoError(t, g.AddNode("a", nil))
	clone := g.Clone()
	require.NoError(t, clone.AddNode("b", []string{"a"}))

	assert.Empty(t, g.Dependents("a"))
	assert.NotEmpty(t, clone.Dependents("a"))
}
