package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildGraph(t *testing.T, ids []NodeID, edges [][2]NodeID) *Graph {
	t.Helper()
	g := NewGraph("g1", "test")
	for _, id := range ids {
		require.NoError(t, g.AddNode(NewNode(id, AgentStrategy, string(id))))
	}
	for i, e := range edges {
		_, err := g.AddEdge(NewEdge(EdgeID(fmt.Sprintf("e%d", i)), e[0], e[1]))
		require.NoError(t, err)
	}
	return g
}

func TestGraph_AddNode(t *testing.T) {
	g := NewGraph("g1", "test")
	require.NoError(t, g.AddNode(NewNode("a", AgentSEO, "SEO")))

	err := g.AddNode(NewNode("a", AgentSocial, "Other"))
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.Equal(t, 1, g.Len())

	assert.Error(t, g.AddNode(nil))
	assert.Error(t, g.AddNode(NewNode("", AgentSEO, "x")))
	assert.Error(t, g.AddNode(NewNode("b", AgentType("podcast"), "x")))
}

func TestGraph_AddNodeCopiesInput(t *testing.T) {
	g := NewGraph("g1", "test")
	node := NewNode("a", AgentSEO, "SEO").WithConfiguration(&SEOConfig{Keywords: []string{"go"}})
	require.NoError(t, g.AddNode(node))

	node.Label = "mutated"
	node.Configuration.(*SEOConfig).Keywords[0] = "mutated"

	stored, ok := g.Node("a")
	require.True(t, ok)
	assert.Equal(t, "SEO", stored.Label)
	assert.Equal(t, []string{"go"}, stored.Configuration.(*SEOConfig).Keywords)
}

func TestGraph_AddEdgeDangling(t *testing.T) {
	g := buildGraph(t, []NodeID{"a"}, nil)

	_, err := g.AddEdge(NewEdge("e1", "a", "missing"))
	assert.ErrorIs(t, err, ErrDanglingEdge)

	_, err = g.AddEdge(NewEdge("e2", "missing", "a"))
	assert.ErrorIs(t, err, ErrDanglingEdge)
	assert.Empty(t, g.Edges())
}

func TestGraph_AddEdgeRejectsCycleWithoutMutation(t *testing.T) {
	g := buildGraph(t, []NodeID{"a", "b", "c"}, [][2]NodeID{{"a", "b"}, {"b", "c"}})
	before := g.Edges()

	_, err := g.AddEdge(NewEdge("back", "c", "a"))
	require.ErrorIs(t, err, ErrCycleDetected)
	assert.Equal(t, before, g.Edges())

	_, err = g.AddEdge(NewEdge("self", "b", "b"))
	require.ErrorIs(t, err, ErrCycleDetected)
	assert.Equal(t, before, g.Edges())

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"a", "b", "c"}, order)
}

func TestGraph_AddEdgeDuplicates(t *testing.T) {
	g := buildGraph(t, []NodeID{"a", "b"}, [][2]NodeID{{"a", "b"}})

	existing, err := g.AddEdge(NewEdge("again", "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, EdgeID("e0"), existing.ID)
	assert.Len(t, g.Edges(), 1)

	_, err = g.AddEdge(NewEdge("e0", "b", "a"))
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestGraph_RemoveNodeCascades(t *testing.T) {
	g := buildGraph(t, []NodeID{"a", "b", "c"}, [][2]NodeID{{"a", "b"}, {"b", "c"}, {"a", "c"}})

	require.NoError(t, g.RemoveNode("b"))
	edges := g.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, NodeID("a"), edges[0].Source)
	assert.Equal(t, NodeID("c"), edges[0].Target)

	assert.True(t, IsCategory(g.RemoveNode("b"), ErrCatNotFound))

	// The removed edge id can be reused.
	require.NoError(t, g.AddNode(NewNode("d", AgentEmail, "D")))
	added, err := g.AddEdge(NewEdge("e0", "a", "d"))
	require.NoError(t, err)
	assert.Equal(t, EdgeID("e0"), added.ID)
}

func TestGraph_RemoveEdge(t *testing.T) {
	g := buildGraph(t, []NodeID{"a", "b"}, [][2]NodeID{{"a", "b"}})
	require.NoError(t, g.RemoveEdge("e0"))
	assert.Empty(t, g.Edges())
	assert.True(t, IsCategory(g.RemoveEdge("e0"), ErrCatNotFound))
}

func TestGraph_TopologicalOrderTieBreaksByInsertion(t *testing.T) {
	// d and b are independent roots; insertion order decides.
	g := buildGraph(t,
		[]NodeID{"d", "b", "a", "c"},
		[][2]NodeID{{"b", "a"}, {"d", "c"}},
	)

	first, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"d", "b", "a", "c"}, first)

	second, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGraph_TopologicalOrderDiamond(t *testing.T) {
	g := buildGraph(t,
		[]NodeID{"strategy", "writer", "seo", "social"},
		[][2]NodeID{{"strategy", "writer"}, {"strategy", "social"}, {"writer", "seo"}, {"social", "seo"}},
	)
	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"strategy", "writer", "social", "seo"}, order)
}

func TestGraph_TopologicalOrderDetectsRestoredCycle(t *testing.T) {
	g := NewGraph("g1", "test")
	nodes := []*Node{
		NewNode("a", AgentStrategy, "A"),
		NewNode("b", AgentStrategy, "B"),
		NewNode("c", AgentStrategy, "C"),
	}
	edges := []Edge{NewEdge("e1", "a", "b"), NewEdge("e2", "b", "c"), NewEdge("e3", "c", "b")}
	require.NoError(t, g.Restore(nodes, edges))

	_, err := g.TopologicalOrder()
	require.ErrorIs(t, err, ErrCyclicGraph)

	var domErr *DomainError
	require.True(t, errors.As(err, &domErr))
	assert.Equal(t, []string{"b", "c"}, domErr.Details["nodes"])
}

func TestGraph_RestoreRejectsDangling(t *testing.T) {
	g := buildGraph(t, []NodeID{"x"}, nil)
	err := g.Restore([]*Node{NewNode("a", AgentSEO, "A")}, []Edge{NewEdge("e1", "a", "zzz")})
	require.ErrorIs(t, err, ErrDanglingEdge)

	// Original content untouched.
	_, ok := g.Node("x")
	assert.True(t, ok)
}

func TestGraph_SnapshotIsIsolated(t *testing.T) {
	g := buildGraph(t, []NodeID{"a", "b"}, [][2]NodeID{{"a", "b"}})
	snap := g.Snapshot()

	require.NoError(t, g.AddNode(NewNode("c", AgentAds, "C")))
	_, err := g.AddEdge(NewEdge("e9", "b", "c"))
	require.NoError(t, err)
	_, err = g.UpdateNode("a", func(n *Node) (*Node, error) {
		n.Label = "changed"
		return n, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 2, snap.Len())
	assert.Len(t, snap.Edges, 1)
	a, ok := snap.Node("a")
	require.True(t, ok)
	assert.Equal(t, "a", a.Label)

	order, err := snap.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"a", "b"}, order)
}

func TestGraphSnapshot_Descendants(t *testing.T) {
	g := buildGraph(t,
		[]NodeID{"a", "b", "c", "d", "e"},
		[][2]NodeID{{"a", "b"}, {"b", "c"}, {"a", "d"}, {"d", "c"}},
	)
	snap := g.Snapshot()
	assert.ElementsMatch(t, []NodeID{"b", "c", "d"}, snap.Descendants("a"))
	assert.Empty(t, snap.Descendants("e"))
	assert.Equal(t, []NodeID{"b", "d"}, snap.Predecessors("c"))
}

func TestGraph_UpdateNodeAtomic(t *testing.T) {
	g := buildGraph(t, []NodeID{"a"}, nil)

	_, err := g.UpdateNode("a", func(n *Node) (*Node, error) {
		n.Label = "half-applied"
		return nil, errors.New("boom")
	})
	require.Error(t, err)
	n, _ := g.Node("a")
	assert.Equal(t, "a", n.Label)

	_, err = g.UpdateNode("a", func(n *Node) (*Node, error) {
		n.ID = "other"
		return n, nil
	})
	require.Error(t, err)

	_, err = g.UpdateNode("missing", func(n *Node) (*Node, error) { return n, nil })
	assert.True(t, IsCategory(err, ErrCatNotFound))
}

func TestGraph_RunStateDefaultsToIdle(t *testing.T) {
	g := NewGraph("g1", "test")
	assert.Equal(t, RunStateIdle, g.RunState())
	g.SetRunState(RunStateRunning)
	assert.Equal(t, RunStateRunning, g.RunState())
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to RunState
		want     bool
	}{
		{RunStateIdle, RunStateRunning, true},
		{RunStateIdle, RunStateCompleted, false},
		{RunStateRunning, RunStateCompleted, true},
		{RunStateRunning, RunStateReset, true},
		{RunStateRunning, RunStateIdle, false},
		{RunStateCompleted, RunStateReset, true},
		{RunStateCompleted, RunStateRunning, true},
		{RunStateReset, RunStateIdle, true},
		{RunStateReset, RunStateRunning, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestParseAgentType(t *testing.T) {
	got, ok := ParseAgentType("  SEO ")
	assert.True(t, ok)
	assert.Equal(t, AgentSEO, got)

	_, ok = ParseAgentType("podcast")
	assert.False(t, ok)
	assert.Len(t, AllAgentTypes(), 8)
}
