package core

// NodeID uniquely identifies a node within a workflow graph.
type NodeID string

// EdgeID uniquely identifies an edge within a workflow graph.
type EdgeID string

// Position is the canvas location of a node. It carries no execution meaning.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one agent instance placed in a workflow graph.
type Node struct {
	ID            NodeID
	AgentType     AgentType
	Label         string
	Description   string
	Configuration Configuration
	Position      Position
}

// NewNode creates a node with the required fields.
func NewNode(id NodeID, agentType AgentType, label string) *Node {
	return &Node{
		ID:        id,
		AgentType: agentType,
		Label:     label,
	}
}

// WithDescription sets the node description.
func (n *Node) WithDescription(desc string) *Node {
	n.Description = desc
	return n
}

// WithConfiguration sets the node configuration.
func (n *Node) WithConfiguration(cfg Configuration) *Node {
	n.Configuration = cfg
	return n
}

// WithPosition sets the canvas position.
func (n *Node) WithPosition(x, y float64) *Node {
	n.Position = Position{X: x, Y: y}
	return n
}

// DisplayName returns the label, falling back to the id.
func (n *Node) DisplayName() string {
	if n.Label != "" {
		return n.Label
	}
	return string(n.ID)
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	cp := *n
	if n.Configuration != nil {
		cp.Configuration = n.Configuration.Clone()
	}
	return &cp
}

// Edge is a directed dependency: Target consumes Source's output.
type Edge struct {
	ID     EdgeID
	Source NodeID
	Target NodeID
}

// NewEdge creates an edge.
func NewEdge(id EdgeID, source, target NodeID) Edge {
	return Edge{ID: id, Source: source, Target: target}
}
