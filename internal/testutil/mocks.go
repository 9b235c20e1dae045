package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
)

// MockCapability is a scriptable core.Capability that records its calls.
type MockCapability struct {
	mu       sync.Mutex
	calls    []core.InvokeRequest
	outputs  map[core.NodeID]string
	failures map[core.NodeID]error
	delay    time.Duration
	invokeFn func(context.Context, core.InvokeRequest) (*core.InvokeResult, error)
}

// NewMockCapability creates a capability that answers "<label> output".
func NewMockCapability() *MockCapability {
	return &MockCapability{
		outputs:  make(map[core.NodeID]string),
		failures: make(map[core.NodeID]error),
	}
}

// WithOutput scripts the output of one node.
func (m *MockCapability) WithOutput(id core.NodeID, output string) *MockCapability {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs[id] = output
	return m
}

// WithFailure makes one node's invocation fail with err.
func (m *MockCapability) WithFailure(id core.NodeID, err error) *MockCapability {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[id] = err
	return m
}

// WithDelay delays every invocation, honouring cancellation.
func (m *MockCapability) WithDelay(d time.Duration) *MockCapability {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithInvokeFunc replaces the scripted behaviour entirely.
func (m *MockCapability) WithInvokeFunc(fn func(context.Context, core.InvokeRequest) (*core.InvokeResult, error)) *MockCapability {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invokeFn = fn
	return m
}

// Invoke implements core.Capability.
func (m *MockCapability) Invoke(ctx context.Context, req core.InvokeRequest) (*core.InvokeResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	fn, delay := m.invokeFn, m.delay
	output, scripted := m.outputs[req.NodeID]
	failure := m.failures[req.NodeID]
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if failure != nil {
		return nil, failure
	}
	if !scripted {
		output = fmt.Sprintf("%s output", req.Label)
	}
	return &core.InvokeResult{Output: output, Model: "mock"}, nil
}

// Calls returns a copy of the recorded requests in call order.
func (m *MockCapability) Calls() []core.InvokeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.InvokeRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// CalledNodes returns the node ids in call order.
func (m *MockCapability) CalledNodes() []core.NodeID {
	calls := m.Calls()
	ids := make([]core.NodeID, 0, len(calls))
	for _, c := range calls {
		ids = append(ids, c.NodeID)
	}
	return ids
}

// CallCount returns how many times id was invoked.
func (m *MockCapability) CallCount(id core.NodeID) int {
	n := 0
	for _, c := range m.Calls() {
		if c.NodeID == id {
			n++
		}
	}
	return n
}

// MockStore is an in-memory core.WorkflowStore with error injection.
type MockStore struct {
	mu          sync.Mutex
	graphs      map[core.GraphID]*core.GraphRecord
	transcripts map[core.GraphID]storedTranscript
	saveErr     error
	saves       int
	closed      bool
}

type storedTranscript struct {
	runID  core.RunID
	events []core.RunEvent
}

// NewMockStore creates an empty store.
func NewMockStore() *MockStore {
	return &MockStore{
		graphs:      make(map[core.GraphID]*core.GraphRecord),
		transcripts: make(map[core.GraphID]storedTranscript),
	}
}

// WithSaveError makes SaveGraph and SaveTranscript fail.
func (m *MockStore) WithSaveError(err error) *MockStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
	return m
}

// SaveGraph implements core.WorkflowStore.
func (m *MockStore) SaveGraph(_ context.Context, rec *core.GraphRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	cp := *rec
	cp.Nodes = append([]core.NodeRecord(nil), rec.Nodes...)
	cp.Edges = append([]core.EdgeRecord(nil), rec.Edges...)
	m.graphs[rec.ID] = &cp
	return nil
}

// LoadGraph implements core.WorkflowStore.
func (m *MockStore) LoadGraph(_ context.Context, id core.GraphID) (*core.GraphRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.graphs[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// ListGraphs implements core.WorkflowStore.
func (m *MockStore) ListGraphs(context.Context) ([]core.GraphSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.GraphSummary, 0, len(m.graphs))
	for _, rec := range m.graphs {
		out = append(out, core.GraphSummary{
			ID:        rec.ID,
			Name:      rec.Name,
			RunState:  rec.RunState,
			NodeCount: len(rec.Nodes),
			UpdatedAt: rec.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// DeleteGraph implements core.WorkflowStore.
func (m *MockStore) DeleteGraph(_ context.Context, id core.GraphID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.graphs, id)
	delete(m.transcripts, id)
	return nil
}

// SaveTranscript implements core.WorkflowStore.
func (m *MockStore) SaveTranscript(_ context.Context, id core.GraphID, runID core.RunID, events []core.RunEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.transcripts[id] = storedTranscript{runID: runID, events: append([]core.RunEvent(nil), events...)}
	return nil
}

// LoadTranscript implements core.WorkflowStore.
func (m *MockStore) LoadTranscript(_ context.Context, id core.GraphID) (core.RunID, []core.RunEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr := m.transcripts[id]
	return tr.runID, append([]core.RunEvent(nil), tr.events...), nil
}

// Close implements core.WorkflowStore.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Saves reports how many SaveGraph calls succeeded.
func (m *MockStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Closed reports whether Close was called.
func (m *MockStore) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ core.Capability = (*MockCapability)(nil)
var _ core.WorkflowStore = (*MockStore)(nil)
