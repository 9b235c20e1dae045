package core

import (
	"context"
	"iter"
	"time"
)

// =============================================================================
// Agent Catalog Port
// =============================================================================

// AgentCatalog supplies the agent definitions shown in the node library.
type AgentCatalog interface {
	// ListAgents yields every agent definition. The sequence is finite and
	// may be iterated more than once.
	ListAgents(ctx context.Context) iter.Seq[AgentDefinition]

	// Agent looks up one definition by id.
	Agent(id string) (AgentDefinition, bool)
}

// =============================================================================
// Capability Port
// =============================================================================

// Capability invokes the remote behaviour behind a node's agent type.
type Capability interface {
	// Invoke runs one node. A returned error means the invocation was rejected.
	Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error)
}

// PredecessorOutput is the output of one direct upstream node.
type PredecessorOutput struct {
	NodeID    NodeID    `json:"node_id"`
	Label     string    `json:"label"`
	AgentType AgentType `json:"agent_type"`
	Output    string    `json:"output"`
}

// InvokeRequest carries everything a capability needs to run one node.
type InvokeRequest struct {
	RunID              RunID
	NodeID             NodeID
	AgentType          AgentType
	Label              string
	Configuration      Configuration
	PredecessorOutputs []PredecessorOutput
}

// InvokeResult is the output of a successful capability invocation.
type InvokeResult struct {
	Output   string
	Model    string
	Duration time.Duration
}

// CapabilityFunc adapts a function to the Capability interface.
type CapabilityFunc func(ctx context.Context, req InvokeRequest) (*InvokeResult, error)

// Invoke calls f.
func (f CapabilityFunc) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error) {
	return f(ctx, req)
}

// =============================================================================
// WorkflowStore Port
// =============================================================================

// WorkflowStore persists graphs and their latest transcript.
type WorkflowStore interface {
	// SaveGraph inserts or replaces a graph record.
	SaveGraph(ctx context.Context, rec *GraphRecord) error

	// LoadGraph returns a graph record, or nil and no error if it doesn't exist.
	LoadGraph(ctx context.Context, id GraphID) (*GraphRecord, error)

	// ListGraphs returns summaries ordered by most recent update.
	ListGraphs(ctx context.Context) ([]GraphSummary, error)

	// DeleteGraph removes a graph and its transcript.
	DeleteGraph(ctx context.Context, id GraphID) error

	// SaveTranscript replaces the stored transcript of a graph.
	SaveTranscript(ctx context.Context, id GraphID, runID RunID, events []RunEvent) error

	// LoadTranscript returns the stored transcript of a graph (possibly empty).
	LoadTranscript(ctx context.Context, id GraphID) (RunID, []RunEvent, error)

	// Close releases resources.
	Close() error
}

// GraphRecord is the persisted form of a graph.
type GraphRecord struct {
	ID        GraphID      `json:"id"`
	Name      string       `json:"name"`
	RunState  RunState     `json:"run_state"`
	Nodes     []NodeRecord `json:"nodes"`
	Edges     []EdgeRecord `json:"edges"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NodeRecord is the persisted form of a node; the configuration is a raw bag.
type NodeRecord struct {
	ID            NodeID                 `json:"id" yaml:"id"`
	AgentType     AgentType              `json:"agent_type" yaml:"agent_type"`
	Label         string                 `json:"label" yaml:"label"`
	Description   string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Configuration map[string]interface{} `json:"configuration,omitempty" yaml:"configuration,omitempty"`
	Position      Position               `json:"position" yaml:"position"`
}

// EdgeRecord is the persisted form of an edge.
type EdgeRecord struct {
	ID     EdgeID `json:"id" yaml:"id"`
	Source NodeID `json:"source" yaml:"source"`
	Target NodeID `json:"target" yaml:"target"`
}

// GraphSummary is a lightweight listing entry.
type GraphSummary struct {
	ID        GraphID   `json:"id"`
	Name      string    `json:"name"`
	RunState  RunState  `json:"run_state"`
	NodeCount int       `json:"node_count"`
	UpdatedAt time.Time `json:"updated_at"`
}
