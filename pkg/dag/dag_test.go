package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// NODE AND EDGE BASICS
// ============================================================================

func TestGraph_AddNode_Idempotent(t *testing.T) {
	g := New()
	g.AddNode("a")
	g.AddNode("a")

	assert.True(t, g.HasNode("a"))
	assert.Len(t, g.ExportNodes(), 1)
}

func TestGraph_AddEdge_RejectsMissingEndpoints(t *testing.T) {
	g := New()
	g.AddNode("a")

	err := g.AddEdge("a", "ghost")
	require.ErrorIs(t, err, ErrInvalidNode)

	err = g.AddEdge("ghost", "a")
	require.ErrorIs(t, err, ErrInvalidNode)
}

func TestGraph_AddEdge_IdempotentOnExisting(t *testing.T) {
	g := New()
	g.AddNode("a")
	g.AddNode("b")

	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("a", "b"))

	assert.Equal(t, []string{"b"}, g.GetChildren("a"))
}

// ============================================================================
// CYCLE DETECTION
// ============================================================================

func TestGraph_AddEdge_RejectsDirectCycle(t *testing.T) {
	g := New()
	g.AddNode("a")
	g.AddNode("b")
	require.NoError(t, g.AddEdge("a", "b"))

	err := g.AddEdge("b", "a")
	require.ErrorIs(t, err, ErrCycleDetected)

	// No partial mutation: b should still have no children.
	assert.Empty(t, g.GetChildren("b"))
}

func TestGraph_AddEdge_RejectsTransitiveCycle(t *testing.T) {
	g := New()
	for _, id := range []string{"a", "b", "c"} {
		g.AddNode(id)
	}
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "c"))

	err := g.AddEdge("c", "a")
	require.ErrorIs(t, err, ErrCycleDetected)
}

// ============================================================================
// REMOVAL
// ============================================================================

func TestGraph_RemoveEdge_NotFound(t *testing.T) {
	g := New()
	g.AddNode("a")
	g.AddNode("b")

	err := g.RemoveEdge("a", "b")
	require.ErrorIs(t, err, ErrEdgeNotFound)
}

func TestGraph_ClearIncomingEdges(t *testing.T) {
	g := New()
	for _, id := range []string{"a", "b", "c"} {
		g.AddNode(id)
	}
	require.NoError(t, g.AddEdge("a", "c"))
	require.NoError(t, g.AddEdge("b", "c"))

	g.ClearIncomingEdges("c")

	assert.Empty(t, g.GetDependencies("c"))
	assert.Empty(t, g.GetChildren("a"))
	assert.Empty(t, g.GetChildren("b"))
}

// ============================================================================
// TOPOLOGICAL ORDER
// ============================================================================

func TestGraph_TopologicalSort_Linear(t *testing.T) {
	g := New()
	for _, id := range []string{"a", "b", "c"} {
		g.AddNode(id)
	}
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "c"))

	order, err := g.TopologicalSort()
	require.NoError(t, err)

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["b"], pos["c"])
}

func TestGraph_GetDependenciesAndChildren(t *testing.T) {
	g := New()
	for _, id := range []string{"root", "left", "right", "join"} {
		g.AddNode(id)
	}
	require.NoError(t, g.AddEdge("root", "left"))
	require.NoError(t, g.AddEdge("root", "right"))
	require.NoError(t, g.AddEdge("left", "join"))
	require.NoError(t, g.AddEdge("right", "join"))

	assert.ElementsMatch(t, []string{"left", "right"}, g.GetChildren("root"))
	assert.ElementsMatch(t, []string{"left", "right"}, g.GetDependencies("join"))
}

func TestGraph_ExportEdges(t *testing.T) {
	g := New()
	g.AddNode("a")
	g.AddNode("b")
	require.NoError(t, g.AddEdge("a", "b"))

	edges := g.ExportEdges()
	require.Len(t, edges, 1)
	assert.Equal(t, Edge{From: "a", To: "b"}, edges[0])
}
