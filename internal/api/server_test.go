package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
	"github.com/hugo-lorenzo-mato/teamflow/internal/events"
	"github.com/hugo-lorenzo-mato/teamflow/internal/service"
	"github.com/hugo-lorenzo-mato/teamflow/internal/template"
)

func echoCapability() core.Capability {
	return core.CapabilityFunc(func(_ context.Context, req core.InvokeRequest) (*core.InvokeResult, error) {
		return &core.InvokeResult{Output: fmt.Sprintf("%s output", req.Label)}, nil
	})
}

func newTestAPI(t *testing.T) (*Server, *events.EventBus) {
	t.Helper()
	bus := events.New(64)
	t.Cleanup(bus.Close)
	ws := service.NewWorkspace(echoCapability(), service.WithEventBus(bus))
	return NewServer(ws, bus), bus
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s, _ := newTestAPI(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %q", body["status"])
	}
}

func TestListAgents(t *testing.T) {
	s, _ := newTestAPI(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/agents", nil)
	all := decode[[]core.AgentDefinition](t, rec)
	if len(all) < len(core.AllAgentTypes()) {
		t.Errorf("expected at least %d agents, got %d", len(core.AllAgentTypes()), len(all))
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/agents?q=seo", nil)
	found := decode[[]core.AgentDefinition](t, rec)
	if len(found) == 0 || found[0].ID != "seo-specialist" {
		t.Errorf("expected seo-specialist first, got %+v", found)
	}
}

func TestTemplates(t *testing.T) {
	s, _ := newTestAPI(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/templates", nil)
	list := decode[[]template.Summary](t, rec)
	if len(list) != template.Default().Len() {
		t.Errorf("expected %d templates, got %d", template.Default().Len(), len(list))
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/templates/product-launch", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	tmpl := decode[template.Template](t, rec)
	if len(tmpl.Agents) != 6 {
		t.Errorf("expected 6 agents, got %d", len(tmpl.Agents))
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/templates/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	errBody := decode[errorResponse](t, rec)
	if errBody.Code != core.CodeTemplateNotFound {
		t.Errorf("expected code %s, got %s", core.CodeTemplateNotFound, errBody.Code)
	}
}

func TestInstantiateAndRun(t *testing.T) {
	s, _ := newTestAPI(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/templates/content-marketing/instantiate", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	wf := decode[WorkflowResponse](t, rec)
	if len(wf.Nodes) != 3 || len(wf.Edges) != 2 {
		t.Fatalf("unexpected workflow shape: %d nodes, %d edges", len(wf.Nodes), len(wf.Edges))
	}
	if wf.Nodes[0].Summary == "" {
		t.Error("expected a configuration summary")
	}

	base := "/api/v1/workflows/" + string(wf.ID)
	rec = doRequest(t, s, http.MethodGet, base+"/order", nil)
	order := decode[[]NodeResponse](t, rec)
	if order[0].Label != "Strategy" || order[2].Label != "SEO" {
		t.Errorf("unexpected order: %+v", order)
	}

	rec = doRequest(t, s, http.MethodPost, base+"/run?wait=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	summary := decode[core.RunSummary](t, rec)
	if summary.State != core.RunStateCompleted || len(summary.Succeeded) != 3 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	rec = doRequest(t, s, http.MethodGet, base+"/transcript", nil)
	tr := decode[TranscriptResponse](t, rec)
	if tr.RunState != core.RunStateCompleted || len(tr.Events) != 5 {
		t.Errorf("unexpected transcript: state %s, %d events", tr.RunState, len(tr.Events))
	}

	rec = doRequest(t, s, http.MethodGet, base+"/transcript?format=text", nil)
	if !strings.Contains(rec.Body.String(), "Writer: Writer output") {
		t.Errorf("text transcript missing writer line: %s", rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, base, nil)
	got := decode[WorkflowResponse](t, rec)
	for _, n := range got.Nodes {
		if n.Status != core.NodeStatusSucceeded {
			t.Errorf("node %s: expected succeeded, got %q", n.Label, n.Status)
		}
	}

	rec = doRequest(t, s, http.MethodPost, base+"/reset", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodPost, base+"/reset", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("reset from idle: expected 409, got %d", rec.Code)
	}
}

func TestEditWorkflow(t *testing.T) {
	s, _ := newTestAPI(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/workflows", CreateWorkflowRequest{Name: "Campaign"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	wf := decode[WorkflowResponse](t, rec)
	base := "/api/v1/workflows/" + string(wf.ID)

	rec = doRequest(t, s, http.MethodPost, base+"/run", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty workflow run: expected 422, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, base+"/nodes", service.NodeSpec{Agent: "strategy", Label: "Plan"})
	plan := decode[NodeResponse](t, rec)
	rec = doRequest(t, s, http.MethodPost, base+"/nodes", service.NodeSpec{Agent: "ads-specialist"})
	ads := decode[NodeResponse](t, rec)
	if ads.Label != "Paid Ads Specialist" {
		t.Errorf("expected catalog name as label, got %q", ads.Label)
	}

	rec = doRequest(t, s, http.MethodPost, base+"/nodes", service.NodeSpec{Agent: "juggler"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown agent: expected 422, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, base+"/edges", AddEdgeRequest{Source: plan.ID, Target: ads.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	edge := decode[core.EdgeRecord](t, rec)

	rec = doRequest(t, s, http.MethodPost, base+"/edges", AddEdgeRequest{Source: ads.ID, Target: plan.ID})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("cycle: expected 422, got %d", rec.Code)
	}
	if decode[errorResponse](t, rec).Code != core.CodeCycleDetected {
		t.Errorf("expected %s", core.CodeCycleDetected)
	}

	rec = doRequest(t, s, http.MethodPatch, base+"/nodes/"+string(ads.ID)+"/configuration",
		map[string]interface{}{"bid_strategy": "yolo", "budget": -1})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid configuration: expected 422, got %d", rec.Code)
	}
	fields := decode[errorResponse](t, rec).Fields
	if len(fields) != 2 || fields[0].Field != "bid_strategy" || fields[1].Field != "budget" {
		t.Errorf("unexpected field errors: %+v", fields)
	}

	rec = doRequest(t, s, http.MethodPatch, base+"/nodes/"+string(ads.ID)+"/configuration",
		map[string]interface{}{"budget": 2500})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if budget := decode[NodeResponse](t, rec).Configuration["budget"]; budget != 2500.0 {
		t.Errorf("expected budget 2500, got %v", budget)
	}

	rec = doRequest(t, s, http.MethodPatch, base+"/nodes/"+string(ads.ID)+"/configuration", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing body: expected 400, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodDelete, base+"/edges/"+string(edge.ID), nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodDelete, base+"/nodes/"+string(plan.ID), nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodDelete, base+"/nodes/"+string(plan.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/workflows", nil)
	if list := decode[[]core.GraphSummary](t, rec); len(list) != 1 || list[0].NodeCount != 1 {
		t.Errorf("unexpected listing: %+v", list)
	}

	rec = doRequest(t, s, http.MethodDelete, base, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodGet, base, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestCreateWorkflow_BadBody(t *testing.T) {
	s, _ := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	bus := events.New(8)
	t.Cleanup(bus.Close)
	ws := service.NewWorkspace(echoCapability(), service.WithEventBus(bus))

	preflight := func(s *Server, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/agents", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		return rec
	}

	t.Run("allowed origin", func(t *testing.T) {
		s := NewServer(ws, bus, WithCORSOrigins([]string{"http://localhost:5173"}))
		rec := preflight(s, "http://localhost:5173")
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
			t.Errorf("expected allowed origin header, got %q", got)
		}
	})

	t.Run("other origin", func(t *testing.T) {
		s := NewServer(ws, bus, WithCORSOrigins([]string{"http://localhost:5173"}))
		rec := preflight(s, "http://evil.example")
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("expected no allow-origin header, got %q", got)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		s := NewServer(ws, bus, WithoutCORS())
		rec := preflight(s, "http://localhost:5173")
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("expected no allow-origin header, got %q", got)
		}
	})
}
