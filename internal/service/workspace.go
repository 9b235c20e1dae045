package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/teamflow/internal/catalog"
	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
	"github.com/hugo-lorenzo-mato/teamflow/internal/events"
	"github.com/hugo-lorenzo-mato/teamflow/internal/fsutil"
	"github.com/hugo-lorenzo-mato/teamflow/internal/logging"
	"github.com/hugo-lorenzo-mato/teamflow/internal/nodeconfig"
	"github.com/hugo-lorenzo-mato/teamflow/internal/service/run"
	"github.com/hugo-lorenzo-mato/teamflow/internal/template"
)

// WorkspaceOption configures a Workspace.
type WorkspaceOption func(*Workspace)

// WithStore persists graphs and transcripts. Without a store the workspace
// keeps everything in memory.
func WithStore(store core.WorkflowStore) WorkspaceOption {
	return func(w *Workspace) { w.store = store }
}

// WithLibrary sets the template library.
func WithLibrary(lib *template.Library) WorkspaceOption {
	return func(w *Workspace) {
		if lib != nil {
			w.library = lib
		}
	}
}

// WithCatalog sets the agent catalog.
func WithCatalog(cat *catalog.Catalog) WorkspaceOption {
	return func(w *Workspace) {
		if cat != nil {
			w.catalog = cat
		}
	}
}

// WithConfigStore sets the node configuration store.
func WithConfigStore(store *nodeconfig.Store) WorkspaceOption {
	return func(w *Workspace) {
		if store != nil {
			w.configs = store
		}
	}
}

// WithEventBus publishes graph edits and run activity on bus.
func WithEventBus(bus *events.EventBus) WorkspaceOption {
	return func(w *Workspace) { w.bus = bus }
}

// WithLogger sets the workspace logger.
func WithLogger(logger *logging.Logger) WorkspaceOption {
	return func(w *Workspace) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithEngineOptions adds options to every engine the workspace creates.
func WithEngineOptions(opts ...run.Option) WorkspaceOption {
	return func(w *Workspace) { w.engineOpts = append(w.engineOpts, opts...) }
}

// Workspace owns the open graphs, one engine per graph.
type Workspace struct {
	store      core.WorkflowStore
	library    *template.Library
	catalog    *catalog.Catalog
	configs    *nodeconfig.Store
	capability core.Capability
	bus        *events.EventBus
	logger     *logging.Logger
	engineOpts []run.Option
	newID      func() string

	mu       sync.Mutex
	sessions map[core.GraphID]*session
}

type session struct {
	graph  *core.Graph
	engine *run.Engine
}

// NodeSpec describes a node to add to a graph.
type NodeSpec struct {
	// Agent is a catalog agent id or an agent type.
	Agent         string                 `json:"agent"`
	Label         string                 `json:"label"`
	Description   string                 `json:"description,omitempty"`
	Configuration map[string]interface{} `json:"configuration,omitempty"`
	Position      core.Position          `json:"position"`
}

// NewWorkspace creates a workspace that runs nodes with capability.
func NewWorkspace(capability core.Capability, opts ...WorkspaceOption) *Workspace {
	w := &Workspace{
		capability: capability,
		catalog:    catalog.Default(),
		configs:    nodeconfig.NewStore(),
		logger:     logging.NewNop(),
		newID:      uuid.NewString,
		sessions:   make(map[core.GraphID]*session),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.library == nil {
		w.library = template.Default()
	}
	return w
}

// Catalog returns the agent catalog.
func (w *Workspace) Catalog() *catalog.Catalog { return w.catalog }

// Library returns the template library.
func (w *Workspace) Library() *template.Library { return w.library }

// CreateGraph creates an empty graph.
func (w *Workspace) CreateGraph(ctx context.Context, name string) (*core.Graph, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, core.ErrValidation(core.CodeInvalidNode, "workflow name cannot be empty")
	}
	g := core.NewGraph(core.GraphID(w.newID()), name)
	if err := w.open(ctx, g, "created"); err != nil {
		return nil, err
	}
	return g, nil
}

// InstantiateTemplate creates a graph from a template.
func (w *Workspace) InstantiateTemplate(ctx context.Context, templateID string) (*core.Graph, error) {
	g, err := w.library.Instantiate(templateID)
	if err != nil {
		return nil, err
	}
	if err := w.open(ctx, g, "instantiated "+templateID); err != nil {
		return nil, err
	}
	return g, nil
}

// ImportGraph creates a graph from a YAML workflow document. The document
// uses the template format; agent keys become node ids.
func (w *Workspace) ImportGraph(ctx context.Context, data []byte) (*core.Graph, error) {
	g, err := ParseWorkflow(w.library, data)
	if err != nil {
		return nil, err
	}
	if err := w.open(ctx, g, "imported"); err != nil {
		return nil, err
	}
	return g, nil
}

// LoadGraphFile imports the workflow file at path.
func (w *Workspace) LoadGraphFile(ctx context.Context, path string) (*core.Graph, error) {
	data, err := fsutil.ReadFileScoped(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}
	return w.ImportGraph(ctx, data)
}

// ParseWorkflow validates a YAML workflow document and builds its graph.
func ParseWorkflow(lib *template.Library, data []byte) (*core.Graph, error) {
	t, err := template.Parse(data)
	if err != nil {
		return nil, core.ErrValidation(core.CodeInvalidNode, err.Error()).WithCause(err)
	}
	return lib.Build(t)
}

func (w *Workspace) open(ctx context.Context, g *core.Graph, change string) error {
	s := w.newSession(g)
	if err := w.persist(ctx, g); err != nil {
		return err
	}
	w.mu.Lock()
	w.sessions[g.ID()] = s
	w.mu.Unlock()

	w.logger.WithWorkflow(string(g.ID())).Info("workflow opened", "name", g.Name(), "nodes", g.Len(), "change", change)
	w.publishGraph(g, change)
	return nil
}

func (w *Workspace) newSession(g *core.Graph) *session {
	opts := make([]run.Option, 0, len(w.engineOpts)+2)
	opts = append(opts, w.engineOpts...)
	opts = append(opts, run.WithEventBus(w.bus), run.WithLogger(w.logger))
	return &session{graph: g, engine: run.NewEngine(g, w.capability, opts...)}
}

// session returns the open session for id, loading it from the store on
// first use.
func (w *Workspace) session(ctx context.Context, id core.GraphID) (*session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if s, ok := w.sessions[id]; ok {
		return s, nil
	}
	if w.store == nil {
		return nil, core.ErrNotFound("workflow", string(id))
	}
	rec, err := w.store.LoadGraph(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading workflow: %w", err)
	}
	if rec == nil {
		return nil, core.ErrNotFound("workflow", string(id))
	}
	g, err := GraphFromRecord(rec, w.configs)
	if err != nil {
		return nil, err
	}
	s := w.newSession(g)
	if g.RunState() == core.RunStateCompleted {
		_, evs, err := w.store.LoadTranscript(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading transcript: %w", err)
		}
		s.engine.Transcript().Load(evs)
	}
	w.sessions[id] = s
	return s, nil
}

// Graph returns an open or persisted graph.
func (w *Workspace) Graph(ctx context.Context, id core.GraphID) (*core.Graph, error) {
	s, err := w.session(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.graph, nil
}

// Engine returns the engine bound to a graph.
func (w *Workspace) Engine(ctx context.Context, id core.GraphID) (*run.Engine, error) {
	s, err := w.session(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.engine, nil
}

// ListGraphs lists graphs, most recently updated first.
func (w *Workspace) ListGraphs(ctx context.Context) ([]core.GraphSummary, error) {
	if w.store != nil {
		return w.store.ListGraphs(ctx)
	}

	w.mu.Lock()
	out := make([]core.GraphSummary, 0, len(w.sessions))
	for _, s := range w.sessions {
		out = append(out, summaryOf(s.graph))
	}
	w.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func summaryOf(g *core.Graph) core.GraphSummary {
	return core.GraphSummary{
		ID:        g.ID(),
		Name:      g.Name(),
		RunState:  g.RunState(),
		NodeCount: g.Len(),
		UpdatedAt: g.UpdatedAt(),
	}
}

// DeleteGraph aborts any run of the graph and removes it.
func (w *Workspace) DeleteGraph(ctx context.Context, id core.GraphID) error {
	s, err := w.session(ctx, id)
	if err != nil {
		return err
	}
	if state := s.engine.State(); state == core.RunStateRunning || state == core.RunStateCompleted {
		if err := s.engine.Reset(); err != nil {
			return err
		}
	}

	w.mu.Lock()
	delete(w.sessions, id)
	w.mu.Unlock()

	if w.store != nil {
		if err := w.store.DeleteGraph(ctx, id); err != nil {
			return err
		}
	}
	w.logger.WithWorkflow(string(id)).Info("workflow deleted")
	w.publishGraph(s.graph, "deleted")
	return nil
}

// AddNode adds an agent node. Its configuration is the type default,
// overlaid with the catalog agent's defaults and then spec.Configuration.
func (w *Workspace) AddNode(ctx context.Context, graphID core.GraphID, spec NodeSpec) (*core.Node, error) {
	s, err := w.session(ctx, graphID)
	if err != nil {
		return nil, err
	}

	agentType, defaults, name, err := w.resolveAgent(spec.Agent)
	if err != nil {
		return nil, err
	}
	overrides := make(map[string]interface{}, len(defaults)+len(spec.Configuration))
	for k, v := range defaults {
		overrides[k] = v
	}
	for k, v := range spec.Configuration {
		overrides[k] = v
	}
	cfg, err := w.configs.Merge(agentType, overrides)
	if err != nil {
		return nil, err
	}

	label := strings.TrimSpace(spec.Label)
	if label == "" {
		label = name
	}
	node := core.NewNode(core.NodeID(w.newID()), agentType, label).
		WithDescription(spec.Description).
		WithConfiguration(cfg).
		WithPosition(spec.Position.X, spec.Position.Y)
	if err := s.graph.AddNode(node); err != nil {
		return nil, err
	}
	if err := w.commit(ctx, s.graph, "node added"); err != nil {
		return nil, err
	}
	return node.Clone(), nil
}

// resolveAgent maps a catalog agent id or an agent type to its type, the
// catalog's configuration defaults and a display name.
func (w *Workspace) resolveAgent(ref string) (core.AgentType, map[string]interface{}, string, error) {
	if def, ok := w.catalog.Agent(ref); ok {
		return def.AgentType, def.DefaultConfiguration, def.Name, nil
	}
	if t, ok := core.ParseAgentType(ref); ok {
		return t, nil, t.DisplayName(), nil
	}
	return "", nil, "", core.ErrValidation(core.CodeInvalidNode, fmt.Sprintf("unknown agent %q", ref))
}

// RemoveNode removes a node and every edge touching it.
func (w *Workspace) RemoveNode(ctx context.Context, graphID core.GraphID, nodeID core.NodeID) error {
	s, err := w.session(ctx, graphID)
	if err != nil {
		return err
	}
	if err := s.graph.RemoveNode(nodeID); err != nil {
		return err
	}
	return w.commit(ctx, s.graph, "node removed")
}

// AddEdge connects source to target. Connecting an already connected pair
// returns the existing edge.
func (w *Workspace) AddEdge(ctx context.Context, graphID core.GraphID, source, target core.NodeID) (core.Edge, error) {
	s, err := w.session(ctx, graphID)
	if err != nil {
		return core.Edge{}, err
	}
	edge, err := s.graph.AddEdge(core.NewEdge(core.EdgeID(w.newID()), source, target))
	if err != nil {
		return core.Edge{}, err
	}
	if err := w.commit(ctx, s.graph, "edge added"); err != nil {
		return core.Edge{}, err
	}
	return edge, nil
}

// RemoveEdge removes one edge.
func (w *Workspace) RemoveEdge(ctx context.Context, graphID core.GraphID, edgeID core.EdgeID) error {
	s, err := w.session(ctx, graphID)
	if err != nil {
		return err
	}
	if err := s.graph.RemoveEdge(edgeID); err != nil {
		return err
	}
	return w.commit(ctx, s.graph, "edge removed")
}

// UpdateNodeConfiguration merges partial into a node's configuration.
// Nothing changes if the merged configuration is invalid.
func (w *Workspace) UpdateNodeConfiguration(ctx context.Context, graphID core.GraphID, nodeID core.NodeID, partial map[string]interface{}) (*core.Node, error) {
	s, err := w.session(ctx, graphID)
	if err != nil {
		return nil, err
	}
	node, err := w.configs.ApplyToGraph(s.graph, nodeID, partial)
	if err != nil {
		return nil, err
	}
	if err := w.commit(ctx, s.graph, "configuration updated"); err != nil {
		return nil, err
	}
	return node, nil
}

// Order returns the nodes of a graph in execution order.
func (w *Workspace) Order(ctx context.Context, graphID core.GraphID) ([]*core.Node, error) {
	s, err := w.session(ctx, graphID)
	if err != nil {
		return nil, err
	}
	ids, err := s.graph.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	out := make([]*core.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := s.graph.Node(id); ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// Activate starts a run of a graph and returns without waiting for it.
// The transcript is persisted once the run completes.
func (w *Workspace) Activate(ctx context.Context, graphID core.GraphID) (*run.Run, error) {
	s, r, err := w.activate(ctx, graphID)
	if err != nil {
		return nil, err
	}
	go w.finishRun(context.WithoutCancel(ctx), s, r)
	return r, nil
}

// Run starts a run of a graph and waits for it to finish. If ctx is
// cancelled first, the run is reset.
func (w *Workspace) Run(ctx context.Context, graphID core.GraphID) (core.RunSummary, error) {
	s, r, err := w.activate(ctx, graphID)
	if err != nil {
		return core.RunSummary{}, err
	}
	summary, err := r.Wait(ctx)
	if err != nil {
		_ = w.Reset(context.WithoutCancel(ctx), graphID)
		return r.Result(), err
	}
	w.finishRun(ctx, s, r)
	return summary, nil
}

func (w *Workspace) activate(ctx context.Context, graphID core.GraphID) (*session, *run.Run, error) {
	s, err := w.session(ctx, graphID)
	if err != nil {
		return nil, nil, err
	}
	r, err := s.engine.Activate(ctx)
	if err != nil {
		return nil, nil, err
	}
	return s, r, nil
}

// finishRun waits for r and persists the graph state and transcript if r
// is still the graph's current, completed run.
func (w *Workspace) finishRun(ctx context.Context, s *session, r *run.Run) {
	<-r.Done()
	if r.Result().State != core.RunStateCompleted || s.engine.CurrentRun() != r {
		return
	}
	if w.store == nil {
		return
	}
	logger := w.logger.WithWorkflow(string(s.graph.ID())).WithRun(string(r.ID))
	if err := w.persist(ctx, s.graph); err != nil {
		logger.Error("persisting workflow after run", "error", err)
		return
	}
	if err := w.store.SaveTranscript(ctx, s.graph.ID(), r.ID, s.engine.Transcript().Events()); err != nil {
		logger.Error("persisting transcript", "error", err)
	}
}

// Reset aborts or discards the graph's run and clears its transcript.
func (w *Workspace) Reset(ctx context.Context, graphID core.GraphID) error {
	s, err := w.session(ctx, graphID)
	if err != nil {
		return err
	}
	if err := s.engine.Reset(); err != nil {
		return err
	}
	if w.store == nil {
		return nil
	}
	if err := w.persist(ctx, s.graph); err != nil {
		return err
	}
	return w.store.SaveTranscript(ctx, graphID, "", nil)
}

// Transcript returns the transcript of the graph's current or last
// completed run.
func (w *Workspace) Transcript(ctx context.Context, graphID core.GraphID) ([]core.RunEvent, error) {
	s, err := w.session(ctx, graphID)
	if err != nil {
		return nil, err
	}
	return s.engine.Transcript().Events(), nil
}

// commit persists an edited graph and announces the change.
func (w *Workspace) commit(ctx context.Context, g *core.Graph, change string) error {
	if err := w.persist(ctx, g); err != nil {
		return err
	}
	w.logger.WithWorkflow(string(g.ID())).Debug("workflow updated", "change", change)
	w.publishGraph(g, change)
	return nil
}

func (w *Workspace) persist(ctx context.Context, g *core.Graph) error {
	if w.store == nil {
		return nil
	}
	if err := w.store.SaveGraph(ctx, RecordFromGraph(g)); err != nil {
		return fmt.Errorf("saving workflow: %w", err)
	}
	return nil
}

func (w *Workspace) publishGraph(g *core.Graph, change string) {
	if w.bus == nil {
		return
	}
	w.bus.Publish(events.NewGraphUpdatedEvent(string(g.ID()), change, g.Len(), len(g.Edges())))
}

// Close releases the store.
func (w *Workspace) Close() error {
	if w.store == nil {
		return nil
	}
	return w.store.Close()
}
