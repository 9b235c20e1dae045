package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
	"github.com/hugo-lorenzo-mato/teamflow/internal/events"
)

// EventBusAdapter turns one workflow's bus events into Bubble Tea messages.
type EventBusAdapter struct {
	bus     *events.EventBus
	eventCh <-chan events.Event
	once    sync.Once
}

// NewEventBusAdapter subscribes to the run events of workflowID.
func NewEventBusAdapter(bus *events.EventBus, workflowID core.GraphID) *EventBusAdapter {
	return &EventBusAdapter{
		bus: bus,
		eventCh: bus.SubscribeWorkflow(string(workflowID),
			events.TypeTranscriptAppended,
			events.TypeNodeStatusChanged,
			events.TypeRunStateChanged,
		),
	}
}

// Next returns a command that waits for the next convertible event.
func (a *EventBusAdapter) Next() tea.Cmd {
	if a == nil {
		return nil
	}
	return func() tea.Msg {
		for event := range a.eventCh {
			if msg := EventToMsg(event); msg != nil {
				return msg
			}
		}
		return busClosedMsg{}
	}
}

// Close ends the subscription.
func (a *EventBusAdapter) Close() {
	if a == nil {
		return
	}
	a.once.Do(func() { a.bus.Unsubscribe(a.eventCh) })
}

// EventToMsg converts a bus event, or returns nil for events the view ignores.
func EventToMsg(event events.Event) tea.Msg {
	switch e := event.(type) {
	case events.TranscriptAppendedEvent:
		return TranscriptMsg{Entry: e.Entry}
	case events.NodeStatusChangedEvent:
		return NodeStatusMsg{NodeID: core.NodeID(e.NodeID), Status: e.Status, Error: e.Error}
	case events.RunStateChangedEvent:
		return RunStateMsg{RunID: e.RunID, From: e.From, To: e.To}
	default:
		return nil
	}
}
