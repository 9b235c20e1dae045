package tui

import (
	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
)

// TranscriptMsg carries one transcript entry.
type TranscriptMsg struct {
	Entry core.RunEvent
}

// NodeStatusMsg signals a node status change.
type NodeStatusMsg struct {
	NodeID core.NodeID
	Status core.NodeStatus
	Error  string
}

// RunStateMsg signals a run state transition.
type RunStateMsg struct {
	RunID string
	From  core.RunState
	To    core.RunState
}

// ErrorMsg signals an error to show in the footer.
type ErrorMsg struct {
	Error error
}

// busClosedMsg is sent once the subscription ends.
type busClosedMsg struct{}

// resetDoneMsg reports the outcome of a reset request.
type resetDoneMsg struct {
	err error
}
