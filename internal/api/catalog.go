package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// handleListAgents lists the agent catalog. ?q= fuzzy-filters by name.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	respondJSON(w, http.StatusOK, s.workspace.Catalog().Search(query))
}

// handleListTemplates lists template summaries. ?q= fuzzy-filters by name
// and category.
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	respondJSON(w, http.StatusOK, s.workspace.Library().Search(query))
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.workspace.Library().Get(chi.URLParam(r, "templateID"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// handleInstantiateTemplate creates a new workflow from a template.
func (s *Server) handleInstantiateTemplate(w http.ResponseWriter, r *http.Request) {
	g, err := s.workspace.InstantiateTemplate(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, s.workflowResponse(r.Context(), g))
}
