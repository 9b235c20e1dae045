package events

import "github.com/hugo-lorenzo-mato/teamflow/internal/core"

// Event type constants for run and graph events.
const (
	TypeRunStateChanged    = "run_state_changed"
	TypeTranscriptAppended = "transcript_appended"
	TypeNodeStatusChanged  = "node_status_changed"
	TypeGraphUpdated       = "graph_updated"
)

// RunStateChangedEvent is emitted on every run state transition.
type RunStateChangedEvent struct {
	BaseEvent
	RunID string        `json:"run_id,omitempty"`
	From  core.RunState `json:"from"`
	To    core.RunState `json:"to"`
}

// NewRunStateChangedEvent creates a new run state changed event.
func NewRunStateChangedEvent(workflowID string, runID core.RunID, from, to core.RunState) RunStateChangedEvent {
	return RunStateChangedEvent{
		BaseEvent: NewBaseEvent(TypeRunStateChanged, workflowID),
		RunID:     string(runID),
		From:      from,
		To:        to,
	}
}

// TranscriptAppendedEvent mirrors one transcript append.
type TranscriptAppendedEvent struct {
	BaseEvent
	Entry core.RunEvent `json:"entry"`
}

// NewTranscriptAppendedEvent creates a new transcript appended event.
func NewTranscriptAppendedEvent(workflowID string, entry core.RunEvent) TranscriptAppendedEvent {
	return TranscriptAppendedEvent{
		BaseEvent: NewBaseEvent(TypeTranscriptAppended, workflowID),
		Entry:     entry,
	}
}

// NodeStatusChangedEvent is emitted when a node changes status within a run.
type NodeStatusChangedEvent struct {
	BaseEvent
	RunID  string          `json:"run_id"`
	NodeID string          `json:"node_id"`
	Label  string          `json:"label"`
	Status core.NodeStatus `json:"status"`
	Error  string          `json:"error,omitempty"`
}

// NewNodeStatusChangedEvent creates a new node status event.
func NewNodeStatusChangedEvent(workflowID string, runID core.RunID, node *core.Node, status core.NodeStatus, err error) NodeStatusChangedEvent {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	return NodeStatusChangedEvent{
		BaseEvent: NewBaseEvent(TypeNodeStatusChanged, workflowID),
		RunID:     string(runID),
		NodeID:    string(node.ID),
		Label:     node.DisplayName(),
		Status:    status,
		Error:     errStr,
	}
}

// GraphUpdatedEvent is emitted after an edit to a graph's topology or configuration.
type GraphUpdatedEvent struct {
	BaseEvent
	Change    string `json:"change"`
	NodeCount int    `json:"node_count"`
	EdgeCount int    `json:"edge_count"`
}

// NewGraphUpdatedEvent creates a new graph updated event.
func NewGraphUpdatedEvent(workflowID, change string, nodeCount, edgeCount int) GraphUpdatedEvent {
	return GraphUpdatedEvent{
		BaseEvent: NewBaseEvent(TypeGraphUpdated, workflowID),
		Change:    change,
		NodeCount: nodeCount,
		EdgeCount: edgeCount,
	}
}
