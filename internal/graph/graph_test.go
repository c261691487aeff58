package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func spec(nodes ...NodeSpec) *Spec {
	return &Spec{Nodes: nodes}
}

func node(id string, deps ...string) NodeSpec {
	return NodeSpec{ID: id, DependsOn: deps}
}

func TestBuildComputesTranspose(t *testing.T) {
	g, err := Build(spec(
		node("a"),
		node("b", "a"),
		node("c", "a"),
		node("d", "b", "c"),
	))
	require.NoError(t, err)
	require.Equal(t, 4, g.Len())
	require.Equal(t, 4, g.EdgeCount())

	require.Equal(t, []string{"b", "c"}, g.Dependents("a"))
	require.Equal(t, []string{"d"}, g.Dependents("b"))
	require.Empty(t, g.Dependents("d"))
	require.Equal(t, []string{"b", "c"}, g.Dependencies("d"))
}

func TestBuildRejectsDanglingEdge(t *testing.T) {
	_, err := Build(spec(node("a", "ghost")))
	require.Error(t, err)
	require.True(t, IsValidation(err))
	require.Contains(t, err.Error(), "ghost")
}

func TestBuildRejectsDuplicateID(t *testing.T) {
	_, err := Build(spec(node("a"), node("a")))
	require.Error(t, err)
	require.True(t, IsValidation(err))
}

func TestBuildRejectsEmptyID(t *testing.T) {
	_, err := Build(spec(NodeSpec{ID: ""}))
	require.Error(t, err)
	require.True(t, IsValidation(err))
}

func TestAnalyzeEmptyGraph(t *testing.T) {
	g, err := Build(spec())
	require.NoError(t, err)
	_, err = g.Analyze()
	require.Error(t, err)
	require.True(t, IsEmptyGraph(err))
}

func TestAnalyzeAcyclicGraph(t *testing.T) {
	g, err := Build(spec(node("a"), node("b", "a"), node("c", "b")))
	require.NoError(t, err)

	a, err := g.Analyze()
	require.NoError(t, err)
	require.Empty(t, a.Cycles)
	require.Empty(t, a.Blocked())
}

// TestTwoCycleBlocksDependents covers a 2-cycle plus an outside dependent:
// one reported cycle, and the dependent is blocked too.
func TestTwoCycleBlocksDependents(t *testing.T) {
	g, err := Build(spec(node("a", "b"), node("b", "a"), node("c", "a")))
	require.NoError(t, err)

	a, err := g.Analyze()
	require.NoError(t, err)
	require.Len(t, a.Cycles, 1)
	require.ElementsMatch(t, []string{"a", "b"}, a.Cycles[0].Members)
	require.Equal(t, []string{"a", "b", "c"}, a.Blocked())
}

// TestIndependentCyclesAllFound verifies every independent cycle is reported,
// not just the first, and blocking is exactly the closure of cyclic nodes.
func TestIndependentCyclesAllFound(t *testing.T) {
	g, err := Build(spec(
		node("a", "b"), node("b", "a"),
		node("c", "d"), node("d", "e"), node("e", "c"),
		node("f", "b"),
		node("g"),
		node("h", "g"),
	))
	require.NoError(t, err)

	a, err := g.Analyze()
	require.NoError(t, err)
	require.Len(t, a.Cycles, 2)
	require.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, a.Blocked())
	require.False(t, a.IsBlocked("g"))
	require.False(t, a.IsBlocked("h"))
}

func TestSelfLoopIsACycle(t *testing.T) {
	g, err := Build(spec(node("a", "a"), node("b", "a")))
	require.NoError(t, err)

	a, err := g.Analyze()
	require.NoError(t, err)
	require.Len(t, a.Cycles, 1)
	require.Equal(t, []string{"a"}, a.Cycles[0].Members)
	require.Equal(t, []string{"a", "b"}, a.Blocked())
}

func TestTransitiveClosureWithUnrelatedCycle(t *testing.T) {
	g, err := Build(spec(
		node("a"), node("b", "a"), node("c", "b"),
		node("x", "y"), node("y", "x"),
	))
	require.NoError(t, err)

	require.Equal(t, []string{"a", "b"}, g.TransitiveDependencies("c"))
	require.Equal(t, []string{"b", "c"}, g.TransitiveDependents("a"))
	require.True(t, g.DependsOn("c", "a"))
	require.False(t, g.DependsOn("a", "c"))

	// Closure over a cyclic component terminates and includes all members.
	require.Equal(t, []string{"x", "y"}, g.TransitiveDependencies("x"))
}

func TestParseSpecJSON(t *testing.T) {
	s, err := ParseSpec([]byte(`{"nodes":[{"id":"a"},{"id":"b","dependsOn":["a"],"priorityHint":5}]}`))
	require.NoError(t, err)
	require.Len(t, s.Nodes, 2)
	require.Equal(t, 5, s.Nodes[1].PriorityHint)

	g, err := Build(s)
	require.NoError(t, err)
	require.Equal(t, 5, g.Node("b").PriorityHint)
}

func TestParseSpecYAML(t *testing.T) {
	data := []byte("nodes:\n  - id: a\n  - id: b\n    depends_on: [a]\n    priority_hint: 3\n")
	s, err := ParseSpecYAML(data)
	require.NoError(t, err)
	require.Len(t, s.Nodes, 2)
	require.Equal(t, []string{"a"}, s.Nodes[1].DependsOn)
	require.Equal(t, 3, s.Nodes[1].PriorityHint)
}
