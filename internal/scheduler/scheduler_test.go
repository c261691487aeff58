package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/agentcoord/internal/graph"
)

func build(t *testing.T, nodes ...graph.NodeSpec) *Scheduler {
	t.Helper()
	g, err := graph.Build(&graph.Spec{Nodes: nodes})
	require.NoError(t, err)
	s, err := New(g)
	require.NoError(t, err)
	return s
}

func node(id string, deps ...string) graph.NodeSpec {
	return graph.NodeSpec{ID: id, DependsOn: deps}
}

// TestDiamondReadyProgression walks the diamond a <- {b,c} <- d through its
// ready sets as work completes.
func TestDiamondReadyProgression(t *testing.T) {
	s := build(t, node("a"), node("b", "a"), node("c", "a"), node("d", "b", "c"))

	done := map[string]bool{}
	require.Equal(t, []string{"a"}, s.ExecutableIssues(done))

	done["a"] = true
	require.Equal(t, []string{"b", "c"}, s.ExecutableIssues(done))

	done["b"] = true
	require.Equal(t, []string{"c"}, s.ExecutableIssues(done))

	done["c"] = true
	require.Equal(t, []string{"d"}, s.ExecutableIssues(done))

	done["d"] = true
	require.Empty(t, s.ExecutableIssues(done))
}

func TestCycleExcludesMembersAndDependents(t *testing.T) {
	s := build(t, node("a", "b"), node("b", "a"), node("c", "a"))

	require.Len(t, s.Analysis().Cycles, 1)
	require.Empty(t, s.ExecutableIssues(map[string]bool{}))

	_, ok := s.NextExecutableIssue(map[string]bool{})
	require.False(t, ok)
}

func TestPriorityHintOrdersFirst(t *testing.T) {
	s := build(t,
		graph.NodeSpec{ID: "low", PriorityHint: 1},
		graph.NodeSpec{ID: "high", PriorityHint: 10},
		graph.NodeSpec{ID: "mid", PriorityHint: 5},
	)

	require.Equal(t, []string{"high", "mid", "low"}, s.ExecutableIssues(map[string]bool{}))

	next, ok := s.NextExecutableIssue(map[string]bool{})
	require.True(t, ok)
	require.Equal(t, "high", next)
}

func TestDepthBreaksPriorityTies(t *testing.T) {
	// b sits one level deeper than a; with equal hints the shallower node
	// comes first, id breaks the final tie.
	s := build(t, node("a"), node("b", "a"), node("z"))

	done := map[string]bool{"a": true}
	require.Equal(t, []string{"z", "b"}, s.ExecutableIssues(done))
	require.Equal(t, 0, s.Depth("z"))
	require.Equal(t, 1, s.Depth("b"))
}

// TestOrderingIsDeterministic repeats the same query and demands the
// identical sequence every time.
func TestOrderingIsDeterministic(t *testing.T) {
	s := build(t,
		node("e"), node("d"), node("c"), node("b"), node("a"),
	)
	first := s.ExecutableIssues(map[string]bool{})
	for i := 0; i < 20; i++ {
		require.Equal(t, first, s.ExecutableIssues(map[string]bool{}))
	}
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, first)
}

func TestTransitiveQueriesIgnoreUnrelatedCycles(t *testing.T) {
	s := build(t,
		node("a"), node("b", "a"), node("c", "b"),
		node("x", "y"), node("y", "x"),
	)

	require.True(t, s.DependsOn("c", "a"))
	require.False(t, s.DependsOn("a", "c"))
	require.Equal(t, []string{"a", "b"}, s.TransitiveDependencies("c"))
	require.Equal(t, []string{"b"}, s.Dependents("a"))

	// The cycle elsewhere never leaks into the acyclic chain's readiness.
	require.Equal(t, []string{"a"}, s.ExecutableIssues(map[string]bool{}))
}

func TestEmptyGraphFailsFast(t *testing.T) {
	g, err := graph.Build(&graph.Spec{})
	require.NoError(t, err)
	_, err = New(g)
	require.Error(t, err)
	require.True(t, graph.IsEmptyGraph(err))
}

func TestStatistics(t *testing.T) {
	s := build(t, node("a"), node("b", "a"), node("c", "a"), node("d", "b", "c"))

	st := s.Statistics()
	require.Equal(t, 4, st.TotalNodes)
	require.Equal(t, 4, st.TotalEdges)
	require.Equal(t, 2, st.MaxDepth)
	require.Equal(t, []string{"a"}, st.RootNodes)
	require.Equal(t, []string{"d"}, st.LeafNodes)
}

func TestBlockedNodeDepthUndefined(t *testing.T) {
	s := build(t, node("a", "b"), node("b", "a"), node("c"))
	require.Equal(t, -1, s.Depth("a"))
	require.Equal(t, 0, s.Depth("c"))
}
