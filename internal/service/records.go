package service

import (
	"fmt"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
	"github.com/hugo-lorenzo-mato/teamflow/internal/nodeconfig"
)

// RecordFromGraph converts a graph into its persisted form.
func RecordFromGraph(g *core.Graph) *core.GraphRecord {
	nodes := g.Nodes()
	edges := g.Edges()

	rec := &core.GraphRecord{
		ID:        g.ID(),
		Name:      g.Name(),
		RunState:  g.RunState(),
		Nodes:     make([]core.NodeRecord, 0, len(nodes)),
		Edges:     make([]core.EdgeRecord, 0, len(edges)),
		CreatedAt: g.CreatedAt(),
		UpdatedAt: g.UpdatedAt(),
	}
	for _, n := range nodes {
		var bag map[string]interface{}
		if n.Configuration != nil {
			bag = nodeconfig.ToMap(n.Configuration)
		}
		rec.Nodes = append(rec.Nodes, core.NodeRecord{
			ID:            n.ID,
			AgentType:     n.AgentType,
			Label:         n.Label,
			Description:   n.Description,
			Configuration: bag,
			Position:      n.Position,
		})
	}
	for _, e := range edges {
		rec.Edges = append(rec.Edges, core.EdgeRecord{ID: e.ID, Source: e.Source, Target: e.Target})
	}
	return rec
}

// GraphFromRecord rebuilds a graph from its persisted form. Configurations
// are validated again; a node without one gets its type default. A graph
// persisted mid-run comes back idle.
func GraphFromRecord(rec *core.GraphRecord, configs *nodeconfig.Store) (*core.Graph, error) {
	if rec == nil {
		return nil, core.ErrValidation(core.CodeInvalidNode, "graph record is nil")
	}

	nodes := make([]*core.Node, 0, len(rec.Nodes))
	for _, nr := range rec.Nodes {
		var (
			cfg core.Configuration
			err error
		)
		if len(nr.Configuration) == 0 {
			cfg, err = configs.Default(nr.AgentType)
		} else {
			cfg, err = configs.Decode(nr.AgentType, nr.Configuration)
		}
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", nr.ID, err)
		}
		nodes = append(nodes, core.NewNode(nr.ID, nr.AgentType, nr.Label).
			WithDescription(nr.Description).
			WithConfiguration(cfg).
			WithPosition(nr.Position.X, nr.Position.Y))
	}
	edges := make([]core.Edge, 0, len(rec.Edges))
	for _, er := range rec.Edges {
		edges = append(edges, core.NewEdge(er.ID, er.Source, er.Target))
	}

	g := core.NewGraph(rec.ID, rec.Name)
	if err := g.Restore(nodes, edges); err != nil {
		return nil, err
	}
	switch rec.RunState {
	case core.RunStateCompleted:
		g.SetRunState(core.RunStateCompleted)
	default:
		g.SetRunState(core.RunStateIdle)
	}
	g.SetTimestamps(rec.CreatedAt, rec.UpdatedAt)
	return g, nil
}
