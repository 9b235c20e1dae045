package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
	"github.com/hugo-lorenzo-mato/teamflow/internal/events"
)

// mockFlusher satisfies http.Flusher for recorder-based tests.
type mockFlusher struct{}

func (mockFlusher) Flush() {}

func parseSSEPayload(t *testing.T, body string) (eventType string, payload map[string]interface{}) {
	t.Helper()
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "event: ") {
			eventType = strings.TrimPrefix(line, "event: ")
		}
		if strings.HasPrefix(line, "data: ") {
			raw := strings.TrimPrefix(line, "data: ")
			if err := json.Unmarshal([]byte(raw), &payload); err != nil {
				t.Fatalf("failed to unmarshal SSE data: %v", err)
			}
		}
	}
	return
}

func TestSendEventToClient_TranscriptAppended(t *testing.T) {
	t.Parallel()
	s, _ := newTestAPI(t)

	rec := httptest.NewRecorder()
	entry := core.RunEvent{Seq: 3, RunID: "r1", NodeID: "n1", AgentLabel: "Writer", Kind: core.EventKindMessage, Content: "draft"}
	s.sendEventToClient(rec, mockFlusher{}, events.NewTranscriptAppendedEvent("wf-1", entry))

	eventType, payload := parseSSEPayload(t, rec.Body.String())
	if eventType != events.TypeTranscriptAppended {
		t.Errorf("expected event type %q, got %q", events.TypeTranscriptAppended, eventType)
	}
	if payload["agent_label"] != "Writer" || payload["content"] != "draft" {
		t.Errorf("unexpected payload: %v", payload)
	}
	if payload["seq"] != 3.0 {
		t.Errorf("expected seq 3, got %v", payload["seq"])
	}
}

func TestSendEventToClient_RunStateChanged(t *testing.T) {
	t.Parallel()
	s, _ := newTestAPI(t)

	rec := httptest.NewRecorder()
	s.sendEventToClient(rec, mockFlusher{}, events.NewRunStateChangedEvent("wf-1", "r1", core.RunStateRunning, core.RunStateCompleted))

	eventType, payload := parseSSEPayload(t, rec.Body.String())
	if eventType != events.TypeRunStateChanged {
		t.Errorf("expected %q, got %q", events.TypeRunStateChanged, eventType)
	}
	if payload["from"] != "running" || payload["to"] != "completed" {
		t.Errorf("unexpected payload: %v", payload)
	}
	if payload["workflow_id"] != "wf-1" {
		t.Errorf("expected workflow_id 'wf-1', got %v", payload["workflow_id"])
	}
}

func TestSendEventToClient_NodeStatusChanged(t *testing.T) {
	t.Parallel()
	s, _ := newTestAPI(t)

	rec := httptest.NewRecorder()
	node := core.NewNode("n1", core.AgentSEO, "SEO")
	s.sendEventToClient(rec, mockFlusher{}, events.NewNodeStatusChangedEvent("wf-1", "r1", node, core.NodeStatusFailed, core.ErrTimeout("timed out")))

	_, payload := parseSSEPayload(t, rec.Body.String())
	if payload["status"] != "failed" || payload["label"] != "SEO" {
		t.Errorf("unexpected payload: %v", payload)
	}
	if payload["error"] == "" {
		t.Error("expected an error message")
	}
}

func TestSSE_UnknownWorkflow(t *testing.T) {
	s, _ := newTestAPI(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/workflows/nope/events", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestSSE_StreamsRun(t *testing.T) {
	s, _ := newTestAPI(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	rec := doRequest(t, s, http.MethodPost, "/api/v1/templates/content-marketing/instantiate", nil)
	wf := decode[WorkflowResponse](t, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/workflows/"+string(wf.ID)+"/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	next := func() string {
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "event: ") {
				return strings.TrimPrefix(line, "event: ")
			}
		}
		t.Fatalf("stream ended: %v", scanner.Err())
		return ""
	}

	if got := next(); got != "connected" {
		t.Fatalf("expected connected first, got %q", got)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/workflows/"+string(wf.ID)+"/run", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	seen := map[string]int{}
	for seen[events.TypeRunStateChanged] < 2 {
		seen[next()]++
	}
	if seen[events.TypeTranscriptAppended] != 5 {
		t.Errorf("expected 5 transcript events before completion, got %d", seen[events.TypeTranscriptAppended])
	}
	if seen[events.TypeNodeStatusChanged] != 6 {
		t.Errorf("expected 6 node status events, got %d", seen[events.TypeNodeStatusChanged])
	}
}
