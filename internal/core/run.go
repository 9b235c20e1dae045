package core

import "time"

// RunID uniquely identifies one execution of a graph.
type RunID string

// RunState is the execution state of a graph.
type RunState string

const (
	RunStateIdle      RunState = "idle"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateReset     RunState = "reset"
)

// CanTransition reports whether the run state machine allows from -> to.
func CanTransition(from, to RunState) bool {
	switch from {
	case RunStateIdle:
		return to == RunStateRunning
	case RunStateRunning:
		return to == RunStateCompleted || to == RunStateReset
	case RunStateCompleted:
		return to == RunStateReset || to == RunStateRunning
	case RunStateReset:
		return to == RunStateIdle
	default:
		return false
	}
}

// NodeStatus is the per-run status of a single node.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusSucceeded NodeStatus = "succeeded"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSkipped   NodeStatus = "skipped"
)

// IsTerminal returns true once the node will not change status again in this run.
func (s NodeStatus) IsTerminal() bool {
	return s == NodeStatusSucceeded || s == NodeStatusFailed || s == NodeStatusSkipped
}

// EventKind distinguishes agent output from engine notices.
type EventKind string

const (
	EventKindMessage EventKind = "message"
	EventKindSystem  EventKind = "system"
)

// RunEvent is one timestamped entry of a run transcript.
type RunEvent struct {
	Seq        int       `json:"seq"`
	RunID      RunID     `json:"run_id"`
	NodeID     NodeID    `json:"node_id,omitempty"`
	AgentLabel string    `json:"agent_label"`
	Kind       EventKind `json:"kind"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// SystemLabel is the agent label used for engine-authored events.
const SystemLabel = "System"

// NewSystemEvent creates a system event for a run.
func NewSystemEvent(runID RunID, nodeID NodeID, content string) RunEvent {
	return RunEvent{
		RunID:      runID,
		NodeID:     nodeID,
		AgentLabel: SystemLabel,
		Kind:       EventKindSystem,
		Content:    content,
	}
}

// NewMessageEvent creates a message event attributed to a node.
func NewMessageEvent(runID RunID, node *Node, content string) RunEvent {
	return RunEvent{
		RunID:      runID,
		NodeID:     node.ID,
		AgentLabel: node.DisplayName(),
		Kind:       EventKindMessage,
		Content:    content,
	}
}

// RunSummary reports the outcome of a finished or aborted run.
type RunSummary struct {
	ID         RunID     `json:"id"`
	GraphID    GraphID   `json:"graph_id"`
	State      RunState  `json:"state"`
	Order      []NodeID  `json:"order"`
	Succeeded  []NodeID  `json:"succeeded"`
	Failed     []NodeID  `json:"failed"`
	Skipped    []NodeID  `json:"skipped"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Duration returns the run duration, zero while unfinished.
func (s RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
