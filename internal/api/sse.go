package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hugo-lorenzo-mato/teamflow/internal/events"
)

// handleSSE streams the run activity of one workflow as Server-Sent Events.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	id := workflowID(r)
	if _, err := s.workspace.Graph(r.Context(), id); err != nil {
		s.respondDomainError(w, err)
		return
	}
	if s.eventBus == nil {
		respondError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// The stream outlives the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	ctx := r.Context()
	eventCh := s.eventBus.SubscribeWorkflow(string(id),
		events.TypeTranscriptAppended,
		events.TypeRunStateChanged,
		events.TypeNodeStatusChanged,
		events.TypeGraphUpdated,
	)
	defer s.eventBus.Unsubscribe(eventCh)

	s.logger.Info("SSE client connected", "remote_addr", r.RemoteAddr, "workflow_id", id)

	s.sendSSEEvent(w, flusher, "connected", map[string]string{
		"status":      "connected",
		"workflow_id": string(id),
	})

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("SSE client disconnected", "remote_addr", r.RemoteAddr)
			return

		case event, ok := <-eventCh:
			if !ok {
				s.logger.Info("EventBus closed, ending SSE stream")
				return
			}
			s.sendEventToClient(w, flusher, event)
		}
	}
}

// sendSSEEvent writes an event to the SSE stream.
func (s *Server) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	// SSE format: event: type\ndata: json\n\n
	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}

// sendEventToClient converts an Event to SSE format and sends it.
func (s *Server) sendEventToClient(w http.ResponseWriter, flusher http.Flusher, event events.Event) {
	var payload interface{}

	switch e := event.(type) {
	case events.TranscriptAppendedEvent:
		payload = map[string]interface{}{
			"workflow_id": e.WorkflowID(),
			"seq":         e.Entry.Seq,
			"run_id":      e.Entry.RunID,
			"node_id":     e.Entry.NodeID,
			"agent_label": e.Entry.AgentLabel,
			"kind":        e.Entry.Kind,
			"content":     e.Entry.Content,
			"timestamp":   e.Entry.Timestamp,
		}

	case events.RunStateChangedEvent:
		payload = map[string]interface{}{
			"workflow_id": e.WorkflowID(),
			"run_id":      e.RunID,
			"from":        e.From,
			"to":          e.To,
			"timestamp":   e.Timestamp(),
		}

	case events.NodeStatusChangedEvent:
		payload = map[string]interface{}{
			"workflow_id": e.WorkflowID(),
			"run_id":      e.RunID,
			"node_id":     e.NodeID,
			"label":       e.Label,
			"status":      e.Status,
			"error":       e.Error,
			"timestamp":   e.Timestamp(),
		}

	case events.GraphUpdatedEvent:
		payload = map[string]interface{}{
			"workflow_id": e.WorkflowID(),
			"change":      e.Change,
			"node_count":  e.NodeCount,
			"edge_count":  e.EdgeCount,
			"timestamp":   e.Timestamp(),
		}

	default:
		payload = map[string]interface{}{
			"workflow_id": event.WorkflowID(),
			"timestamp":   event.Timestamp(),
		}
	}

	s.sendSSEEvent(w, flusher, event.EventType(), payload)
}
