package testutil

import (
	"fmt"
	"testing"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
)

// GraphBuilder assembles graphs in tests and fails the test on the first
// rejected mutation.
type GraphBuilder struct {
	t     *testing.T
	graph *core.Graph
	edges int
}

// NewGraphBuilder starts an empty graph.
func NewGraphBuilder(t *testing.T, id core.GraphID) *GraphBuilder {
	t.Helper()
	return &GraphBuilder{t: t, graph: core.NewGraph(id, "Test workflow")}
}

// Node adds a node with the given agent type, labelled after its id.
func (b *GraphBuilder) Node(id core.NodeID, agentType core.AgentType) *GraphBuilder {
	b.t.Helper()
	if err := b.graph.AddNode(core.NewNode(id, agentType, string(id))); err != nil {
		b.t.Fatalf("adding node %s: %v", id, err)
	}
	return b
}

// Edge connects source to target.
func (b *GraphBuilder) Edge(source, target core.NodeID) *GraphBuilder {
	b.t.Helper()
	b.edges++
	if _, err := b.graph.AddEdge(core.NewEdge(core.EdgeID(fmt.Sprintf("e%d", b.edges)), source, target)); err != nil {
		b.t.Fatalf("adding edge %s->%s: %v", source, target, err)
	}
	return b
}

// Build returns the graph.
func (b *GraphBuilder) Build() *core.Graph {
	return b.graph
}

// LinearGraph builds n1 -> n2 -> ... with one node per agent type.
func LinearGraph(t *testing.T, types ...core.AgentType) *core.Graph {
	t.Helper()
	b := NewGraphBuilder(t, "linear")
	for i, at := range types {
		id := core.NodeID(fmt.Sprintf("n%d", i+1))
		b.Node(id, at)
		if i > 0 {
			b.Edge(core.NodeID(fmt.Sprintf("n%d", i)), id)
		}
	}
	return b.Build()
}

// DiamondGraph builds a -> {b, c} -> d.
func DiamondGraph(t *testing.T) *core.Graph {
	t.Helper()
	return NewGraphBuilder(t, "diamond").
		Node("a", core.AgentStrategy).
		Node("b", core.AgentCopywriting).
		Node("c", core.AgentSEO).
		Node("d", core.AgentSocial).
		Edge("a", "b").
		Edge("a", "c").
		Edge("b", "d").
		Edge("c", "d").
		Build()
}
