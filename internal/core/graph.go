package core

import (
	"container/heap"
	"fmt"
	"sync"
	"time"
)

// GraphID uniquely identifies a workflow graph.
type GraphID string

// Graph is the editable node/edge structure of one workflow.
// It is safe for concurrent use; a run works from a Snapshot.
type Graph struct {
	mu        sync.RWMutex
	id        GraphID
	name      string
	nodes     map[NodeID]*Node
	seq       map[NodeID]int // insertion sequence, used for tie-breaking
	order     []NodeID
	edges     []Edge
	edgeIDs   map[EdgeID]struct{}
	nextSeq   int
	runState  RunState
	createdAt time.Time
	updatedAt time.Time
}

// NewGraph creates an empty graph in the idle run state.
func NewGraph(id GraphID, name string) *Graph {
	now := time.Now()
	return &Graph{
		id:        id,
		name:      name,
		nodes:     make(map[NodeID]*Node),
		seq:       make(map[NodeID]int),
		order:     make([]NodeID, 0),
		edges:     make([]Edge, 0),
		edgeIDs:   make(map[EdgeID]struct{}),
		runState:  RunStateIdle,
		createdAt: now,
		updatedAt: now,
	}
}

// ID returns the graph id.
func (g *Graph) ID() GraphID { return g.id }

// Name returns the graph name.
func (g *Graph) Name() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.name
}

// Rename changes the display name.
func (g *Graph) Rename(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.name = name
	g.touch()
}

// CreatedAt returns the creation time.
func (g *Graph) CreatedAt() time.Time { return g.createdAt }

// UpdatedAt returns the time of the last structural change.
func (g *Graph) UpdatedAt() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.updatedAt
}

// SetTimestamps overrides creation/update times (used when loading from storage).
func (g *Graph) SetTimestamps(created, updated time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createdAt = created
	g.updatedAt = updated
}

// AddNode inserts a node. The graph keeps its own copy.
func (g *Graph) AddNode(node *Node) error {
	if err := validateNode(node); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[node.ID]; exists {
		return NewDuplicateIDError("node", string(node.ID))
	}
	g.insertNode(node.Clone())
	g.touch()
	return nil
}

func (g *Graph) insertNode(node *Node) {
	g.nodes[node.ID] = node
	g.seq[node.ID] = g.nextSeq
	g.nextSeq++
	g.order = append(g.order, node.ID)
}

func validateNode(node *Node) error {
	if node == nil {
		return ErrValidation(CodeInvalidNode, "node cannot be nil")
	}
	if node.ID == "" {
		return ErrValidation(CodeInvalidNode, "node id cannot be empty")
	}
	if !node.AgentType.Valid() {
		return ErrValidation(CodeInvalidNode, fmt.Sprintf("node %q has unknown agent type %q", node.ID, node.AgentType))
	}
	return nil
}

// AddEdge inserts a dependency edge and returns the stored edge.
// Adding an edge whose (source, target) pair already exists is a no-op that
// returns the existing edge. The graph is unchanged on any error.
func (g *Graph) AddEdge(edge Edge) (Edge, error) {
	if edge.ID == "" {
		return Edge{}, ErrValidation(CodeInvalidNode, "edge id cannot be empty")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.edgeIDs[edge.ID]; exists {
		return Edge{}, NewDuplicateIDError("edge", string(edge.ID))
	}
	if _, ok := g.nodes[edge.Source]; !ok {
		return Edge{}, NewDanglingEdgeError(edge.ID, edge.Source)
	}
	if _, ok := g.nodes[edge.Target]; !ok {
		return Edge{}, NewDanglingEdgeError(edge.ID, edge.Target)
	}
	for _, existing := range g.edges {
		if existing.Source == edge.Source && existing.Target == edge.Target {
			return existing, nil
		}
	}
	// The new edge closes a cycle iff the source is already reachable from the target.
	if edge.Source == edge.Target || reachable(g.edges, edge.Target, edge.Source) {
		return Edge{}, NewCycleDetectedError(edge.Source, edge.Target)
	}

	g.edges = append(g.edges, edge)
	g.edgeIDs[edge.ID] = struct{}{}
	g.touch()
	return edge, nil
}

// RemoveNode deletes a node and every edge that references it.
func (g *Graph) RemoveNode(id NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return ErrNotFound("node", string(id))
	}
	delete(g.nodes, id)
	delete(g.seq, id)
	for i, nid := range g.order {
		if nid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}

	kept := g.edges[:0]
	for _, e := range g.edges {
		if e.Source == id || e.Target == id {
			delete(g.edgeIDs, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	g.edges = kept
	g.touch()
	return nil
}

// RemoveEdge deletes a single edge.
func (g *Graph) RemoveEdge(id EdgeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, e := range g.edges {
		if e.ID == id {
			g.edges = append(g.edges[:i], g.edges[i+1:]...)
			delete(g.edgeIDs, id)
			g.touch()
			return nil
		}
	}
	return ErrNotFound("edge", string(id))
}

// UpdateNode replaces a node with the result of fn applied to a copy of it.
// If fn fails the stored node is left untouched.
func (g *Graph) UpdateNode(id NodeID, fn func(*Node) (*Node, error)) (*Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	current, ok := g.nodes[id]
	if !ok {
		return nil, ErrNotFound("node", string(id))
	}
	updated, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}
	if updated.ID != id {
		return nil, ErrValidation(CodeInvalidNode, "node id cannot change")
	}
	if !updated.AgentType.Valid() {
		return nil, ErrValidation(CodeInvalidNode, fmt.Sprintf("node %q has unknown agent type %q", id, updated.AgentType))
	}
	g.nodes[id] = updated
	g.touch()
	return updated.Clone(), nil
}

// Restore replaces the graph contents with persisted nodes and edges.
// Duplicate ids and dangling edges are rejected; cycles are not checked here,
// TopologicalOrder reports them.
func (g *Graph) Restore(nodes []*Node, edges []Edge) error {
	fresh := NewGraph(g.id, "")
	for _, n := range nodes {
		if err := validateNode(n); err != nil {
			return err
		}
		if _, exists := fresh.nodes[n.ID]; exists {
			return NewDuplicateIDError("node", string(n.ID))
		}
		fresh.insertNode(n.Clone())
	}
	for _, e := range edges {
		if _, exists := fresh.edgeIDs[e.ID]; exists {
			return NewDuplicateIDError("edge", string(e.ID))
		}
		if _, ok := fresh.nodes[e.Source]; !ok {
			return NewDanglingEdgeError(e.ID, e.Source)
		}
		if _, ok := fresh.nodes[e.Target]; !ok {
			return NewDanglingEdgeError(e.ID, e.Target)
		}
		fresh.edges = append(fresh.edges, e)
		fresh.edgeIDs[e.ID] = struct{}{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = fresh.nodes
	g.seq = fresh.seq
	g.order = fresh.order
	g.edges = fresh.edges
	g.edgeIDs = fresh.edgeIDs
	g.nextSeq = fresh.nextSeq
	g.touch()
	return nil
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// Nodes returns copies of all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id].Clone())
	}
	return out
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Predecessors returns the direct upstream nodes of id, in edge order.
func (g *Graph) Predecessors(id NodeID) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return predecessors(g.edges, id)
}

// Successors returns the direct downstream nodes of id, in edge order.
func (g *Graph) Successors(id NodeID) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return successors(g.edges, id)
}

// TopologicalOrder returns a deterministic linearisation of the nodes.
// Independent nodes keep their insertion order.
func (g *Graph) TopologicalOrder() ([]NodeID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return topologicalOrder(g.order, g.seq, g.edges)
}

// RunState returns the current run state.
func (g *Graph) RunState() RunState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.runState
}

// SetRunState records the run state. It does not touch nodes or edges.
func (g *Graph) SetRunState(state RunState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.runState = state
}

// Snapshot returns a deep, read-only copy of the graph.
func (g *Graph) Snapshot() *GraphSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := &GraphSnapshot{
		ID:    g.id,
		Name:  g.name,
		Nodes: make([]*Node, 0, len(g.order)),
		Edges: make([]Edge, len(g.edges)),
		index: make(map[NodeID]*Node, len(g.order)),
		seq:   make(map[NodeID]int, len(g.seq)),
	}
	for _, id := range g.order {
		n := g.nodes[id].Clone()
		s.Nodes = append(s.Nodes, n)
		s.index[id] = n
		s.seq[id] = g.seq[id]
	}
	copy(s.Edges, g.edges)
	return s
}

func (g *Graph) touch() {
	g.updatedAt = time.Now()
}

// GraphSnapshot is an immutable copy of a graph taken at one instant.
// Callers must treat the exported slices as read-only.
type GraphSnapshot struct {
	ID    GraphID
	Name  string
	Nodes []*Node
	Edges []Edge

	index map[NodeID]*Node
	seq   map[NodeID]int
}

// Node returns the node with the given id.
func (s *GraphSnapshot) Node(id NodeID) (*Node, bool) {
	n, ok := s.index[id]
	return n, ok
}

// Len returns the number of nodes.
func (s *GraphSnapshot) Len() int { return len(s.Nodes) }

// TopologicalOrder returns the same ordering Graph.TopologicalOrder would.
func (s *GraphSnapshot) TopologicalOrder() ([]NodeID, error) {
	order := make([]NodeID, len(s.Nodes))
	for i, n := range s.Nodes {
		order[i] = n.ID
	}
	return topologicalOrder(order, s.seq, s.Edges)
}

// Predecessors returns the direct upstream nodes of id, in edge order.
func (s *GraphSnapshot) Predecessors(id NodeID) []NodeID {
	return predecessors(s.Edges, id)
}

// Descendants returns every node reachable from id, excluding id itself.
func (s *GraphSnapshot) Descendants(id NodeID) []NodeID {
	seen := map[NodeID]bool{id: true}
	queue := successors(s.Edges, id)
	var out []NodeID
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, cur)
		queue = append(queue, successors(s.Edges, cur)...)
	}
	return out
}

func predecessors(edges []Edge, id NodeID) []NodeID {
	var out []NodeID
	for _, e := range edges {
		if e.Target == id {
			out = append(out, e.Source)
		}
	}
	return out
}

func successors(edges []Edge, id NodeID) []NodeID {
	var out []NodeID
	for _, e := range edges {
		if e.Source == id {
			out = append(out, e.Target)
		}
	}
	return out
}

// reachable reports whether to can be reached from from by following edges.
func reachable(edges []Edge, from, to NodeID) bool {
	visited := map[NodeID]bool{from: true}
	stack := []NodeID{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		for _, next := range successors(edges, cur) {
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// seqHeap is a min-heap of node ids ordered by insertion sequence.
type seqHeap struct {
	ids []NodeID
	seq map[NodeID]int
}

func (h seqHeap) Len() int           { return len(h.ids) }
func (h seqHeap) Less(i, j int) bool { return h.seq[h.ids[i]] < h.seq[h.ids[j]] }
func (h seqHeap) Swap(i, j int)      { h.ids[i], h.ids[j] = h.ids[j], h.ids[i] }
func (h *seqHeap) Push(x any)        { h.ids = append(h.ids, x.(NodeID)) }
func (h *seqHeap) Pop() any {
	old := h.ids
	n := len(old)
	x := old[n-1]
	h.ids = old[:n-1]
	return x
}

// topologicalOrder runs Kahn's algorithm with a min-heap ready queue.
func topologicalOrder(order []NodeID, seq map[NodeID]int, edges []Edge) ([]NodeID, error) {
	inDegree := make(map[NodeID]int, len(order))
	for _, id := range order {
		inDegree[id] = 0
	}
	for _, e := range edges {
		inDegree[e.Target]++
	}

	ready := &seqHeap{seq: seq}
	for _, id := range order {
		if inDegree[id] == 0 {
			ready.ids = append(ready.ids, id)
		}
	}
	heap.Init(ready)

	result := make([]NodeID, 0, len(order))
	for ready.Len() > 0 {
		current := heap.Pop(ready).(NodeID)
		result = append(result, current)
		for _, next := range successors(edges, current) {
			inDegree[next]--
			if inDegree[next] == 0 {
				heap.Push(ready, next)
			}
		}
	}

	if len(result) != len(order) {
		placed := make(map[NodeID]bool, len(result))
		for _, id := range result {
			placed[id] = true
		}
		var stuck []NodeID
		for _, id := range order {
			if !placed[id] {
				stuck = append(stuck, id)
			}
		}
		return nil, NewCyclicGraphError(stuck)
	}
	return result, nil
}
