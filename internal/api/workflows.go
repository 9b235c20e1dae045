package api

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
	"github.com/hugo-lorenzo-mato/teamflow/internal/nodeconfig"
	"github.com/hugo-lorenzo-mato/teamflow/internal/service"
	"github.com/hugo-lorenzo-mato/teamflow/internal/transcript"
)

// NodeResponse is the API representation of a node.
type NodeResponse struct {
	ID            core.NodeID            `json:"id"`
	AgentType     core.AgentType         `json:"agent_type"`
	Label         string                 `json:"label"`
	Description   string                 `json:"description,omitempty"`
	Configuration map[string]interface{} `json:"configuration"`
	Summary       string                 `json:"summary,omitempty"`
	Position      core.Position          `json:"position"`
	Status        core.NodeStatus        `json:"status,omitempty"`
}

// WorkflowResponse is the API representation of a graph.
type WorkflowResponse struct {
	ID        core.GraphID      `json:"id"`
	Name      string            `json:"name"`
	RunState  core.RunState     `json:"run_state"`
	Nodes     []NodeResponse    `json:"nodes"`
	Edges     []core.EdgeRecord `json:"edges"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// CreateWorkflowRequest is the body of POST /workflows.
type CreateWorkflowRequest struct {
	Name string `json:"name"`
}

// AddEdgeRequest is the body of POST /workflows/{id}/edges.
type AddEdgeRequest struct {
	Source core.NodeID `json:"source"`
	Target core.NodeID `json:"target"`
}

// TranscriptResponse is the body of GET /workflows/{id}/transcript.
type TranscriptResponse struct {
	RunState core.RunState   `json:"run_state"`
	Events   []core.RunEvent `json:"events"`
}

func nodeResponse(n *core.Node, status core.NodeStatus) NodeResponse {
	resp := NodeResponse{
		ID:            n.ID,
		AgentType:     n.AgentType,
		Label:         n.Label,
		Description:   n.Description,
		Configuration: nodeconfig.ToMap(n.Configuration),
		Position:      n.Position,
		Status:        status,
	}
	if n.Configuration != nil {
		resp.Summary = nodeconfig.Describe(n.Configuration)
	}
	return resp
}

func (s *Server) workflowResponse(ctx context.Context, g *core.Graph) WorkflowResponse {
	var statuses map[core.NodeID]core.NodeStatus
	if engine, err := s.workspace.Engine(ctx, g.ID()); err == nil {
		statuses = engine.NodeStatuses()
	}

	nodes := g.Nodes()
	edges := g.Edges()
	resp := WorkflowResponse{
		ID:        g.ID(),
		Name:      g.Name(),
		RunState:  g.RunState(),
		Nodes:     make([]NodeResponse, 0, len(nodes)),
		Edges:     make([]core.EdgeRecord, 0, len(edges)),
		CreatedAt: g.CreatedAt(),
		UpdatedAt: g.UpdatedAt(),
	}
	for _, n := range nodes {
		resp.Nodes = append(resp.Nodes, nodeResponse(n, statuses[n.ID]))
	}
	for _, e := range edges {
		resp.Edges = append(resp.Edges, core.EdgeRecord{ID: e.ID, Source: e.Source, Target: e.Target})
	}
	return resp
}

func workflowID(r *http.Request) core.GraphID {
	return core.GraphID(chi.URLParam(r, "workflowID"))
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	list, err := s.workspace.ListGraphs(r.Context())
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	g, err := s.workspace.CreateGraph(r.Context(), req.Name)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, s.workflowResponse(r.Context(), g))
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	g, err := s.workspace.Graph(r.Context(), workflowID(r))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.workflowResponse(r.Context(), g))
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.workspace.DeleteGraph(r.Context(), workflowID(r)); err != nil {
		s.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var spec service.NodeSpec
	if err := decodeJSON(r, &spec); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	node, err := s.workspace.AddNode(r.Context(), workflowID(r), spec)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, nodeResponse(node, ""))
}

func (s *Server) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	nodeID := core.NodeID(chi.URLParam(r, "nodeID"))
	if err := s.workspace.RemoveNode(r.Context(), workflowID(r), nodeID); err != nil {
		s.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateConfiguration merges a partial configuration into a node.
// Invalid configurations are rejected with the offending fields listed.
func (s *Server) handleUpdateConfiguration(w http.ResponseWriter, r *http.Request) {
	var partial map[string]interface{}
	if err := decodeJSON(r, &partial); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	nodeID := core.NodeID(chi.URLParam(r, "nodeID"))
	node, err := s.workspace.UpdateNodeConfiguration(r.Context(), workflowID(r), nodeID, partial)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nodeResponse(node, ""))
}

func (s *Server) handleAddEdge(w http.ResponseWriter, r *http.Request) {
	var req AddEdgeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	edge, err := s.workspace.AddEdge(r.Context(), workflowID(r), req.Source, req.Target)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, core.EdgeRecord{ID: edge.ID, Source: edge.Source, Target: edge.Target})
}

func (s *Server) handleRemoveEdge(w http.ResponseWriter, r *http.Request) {
	edgeID := core.EdgeID(chi.URLParam(r, "edgeID"))
	if err := s.workspace.RemoveEdge(r.Context(), workflowID(r), edgeID); err != nil {
		s.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetOrder returns the nodes in execution order.
func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.workspace.Order(r.Context(), workflowID(r))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	out := make([]NodeResponse, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, nodeResponse(n, ""))
	}
	respondJSON(w, http.StatusOK, out)
}

// handleRun starts a run. With ?wait=true the request blocks until the run
// finishes and returns its summary; otherwise it returns 202 immediately.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := workflowID(r)
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if wait {
		summary, err := s.workspace.Run(r.Context(), id)
		if err != nil {
			s.respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, summary)
		return
	}

	run, err := s.workspace.Activate(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"run_id":   run.ID,
		"graph_id": run.GraphID,
		"state":    core.RunStateRunning,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.workspace.Reset(r.Context(), workflowID(r)); err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"run_state": core.RunStateIdle})
}

// handleGetTranscript returns the transcript as JSON, or rendered text with
// ?format=text or ?format=markdown.
func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	id := workflowID(r)
	g, err := s.workspace.Graph(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	evs, err := s.workspace.Transcript(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "json":
		respondJSON(w, http.StatusOK, TranscriptResponse{RunState: g.RunState(), Events: evs})
	case "text", "markdown":
		contentType := "text/plain; charset=utf-8"
		if format == "markdown" {
			contentType = "text/markdown; charset=utf-8"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		_ = transcript.RenderEvents(w, slices.Values(evs), transcript.RenderOptions{
			Markdown: format == "markdown",
			Title:    g.Name(),
		})
	default:
		respondError(w, http.StatusBadRequest, "unknown format "+strconv.Quote(format))
	}
}
