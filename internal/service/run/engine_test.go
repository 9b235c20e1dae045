package run

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
	"github.com/hugo-lorenzo-mato/teamflow/internal/events"
)

type nodeSpec struct {
	id    core.NodeID
	label string
}

func newGraph(t *testing.T, nodes []nodeSpec, edges [][2]core.NodeID) *core.Graph {
	t.Helper()
	g := core.NewGraph("wf-1", "test")
	for _, n := range nodes {
		require.NoError(t, g.AddNode(core.NewNode(n.id, core.AgentStrategy, n.label)))
	}
	for i, e := range edges {
		_, err := g.AddEdge(core.NewEdge(core.EdgeID(fmt.Sprintf("e%d", i)), e[0], e[1]))
		require.NoError(t, err)
	}
	return g
}

// echo returns "<label> <- [pred outputs]" so tests can check data flow.
func echo() core.Capability {
	return core.CapabilityFunc(func(ctx context.Context, req core.InvokeRequest) (*core.InvokeResult, error) {
		parts := make([]string, 0, len(req.PredecessorOutputs))
		for _, p := range req.PredecessorOutputs {
			parts = append(parts, p.Output)
		}
		return &core.InvokeResult{Output: fmt.Sprintf("%s <- [%s]", req.Label, strings.Join(parts, "; "))}, nil
	})
}

func waitRun(t *testing.T, r *Run) core.RunSummary {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	summary, err := r.Wait(ctx)
	require.NoError(t, err)
	return summary
}

func contents(e *Engine) []string {
	var out []string
	for ev := range e.Transcript().Snapshot() {
		out = append(out, ev.AgentLabel+": "+ev.Content)
	}
	return out
}

func TestEngine_LinearRun(t *testing.T) {
	g := newGraph(t,
		[]nodeSpec{{"a", "Strategy"}, {"b", "Writer"}, {"c", "SEO"}},
		[][2]core.NodeID{{"a", "b"}, {"b", "c"}},
	)
	e := NewEngine(g, echo())

	r, err := e.Activate(context.Background())
	require.NoError(t, err)
	summary := waitRun(t, r)

	assert.Equal(t, core.RunStateCompleted, summary.State)
	assert.Equal(t, []core.NodeID{"a", "b", "c"}, summary.Succeeded)
	assert.Equal(t, core.RunStateCompleted, e.State())
	assert.Equal(t, []string{
		"System: run started",
		"Strategy: Strategy <- []",
		"Writer: Writer <- [Strategy <- []]",
		"SEO: SEO <- [Writer <- [Strategy <- []]]",
		"System: run completed: 3 succeeded, 0 failed, 0 skipped",
	}, contents(e))

	outputs := e.Outputs()
	assert.Equal(t, "Strategy <- []", outputs["a"])
	for _, status := range e.NodeStatuses() {
		assert.Equal(t, core.NodeStatusSucceeded, status)
	}

	var seqs []int
	for ev := range e.Transcript().Snapshot() {
		seqs = append(seqs, ev.Seq)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, seqs)
}

func TestEngine_FailureSkipsDescendants(t *testing.T) {
	g := newGraph(t,
		[]nodeSpec{{"strategy", "Strategy"}, {"writer", "Writer"}, {"social", "Social"}, {"seo", "SEO"}, {"report", "Report"}},
		[][2]core.NodeID{{"strategy", "writer"}, {"strategy", "social"}, {"writer", "seo"}, {"seo", "report"}, {"social", "report"}},
	)
	capability := core.CapabilityFunc(func(ctx context.Context, req core.InvokeRequest) (*core.InvokeResult, error) {
		if req.NodeID == "writer" {
			return nil, core.ErrValidation("BAD_INPUT", "brief was empty")
		}
		return &core.InvokeResult{Output: "ok " + req.Label}, nil
	})
	e := NewEngine(g, capability)

	r, err := e.Activate(context.Background())
	require.NoError(t, err)
	summary := waitRun(t, r)

	assert.Equal(t, []core.NodeID{"strategy", "social"}, summary.Succeeded)
	assert.Equal(t, []core.NodeID{"writer"}, summary.Failed)
	assert.Equal(t, []core.NodeID{"seo", "report"}, summary.Skipped)
	assert.Equal(t, []string{
		"System: run started",
		"Strategy: ok Strategy",
		"System: Writer failed: brief was empty",
		"Social: ok Social",
		"System: SEO skipped: upstream Writer failed",
		"System: Report skipped: upstream Writer failed",
		"System: run completed: 2 succeeded, 1 failed, 2 skipped",
	}, contents(e))

	statuses := e.NodeStatuses()
	assert.Equal(t, core.NodeStatusFailed, statuses["writer"])
	assert.Equal(t, core.NodeStatusSkipped, statuses["report"])
}

// blocker is a capability that waits for release or context cancellation.
type blocker struct {
	started chan core.NodeID
	release chan struct{}
}

func newBlocker() *blocker {
	return &blocker{started: make(chan core.NodeID, 10), release: make(chan struct{})}
}

func (b *blocker) Invoke(ctx context.Context, req core.InvokeRequest) (*core.InvokeResult, error) {
	b.started <- req.NodeID
	<-b.release // ignores ctx on purpose
	return &core.InvokeResult{Output: "late " + req.Label}, nil
}

func TestEngine_ActivateWhileRunning(t *testing.T) {
	g := newGraph(t, []nodeSpec{{"a", "A"}}, nil)
	b := newBlocker()
	e := NewEngine(g, b)

	r, err := e.Activate(context.Background())
	require.NoError(t, err)
	<-b.started
	before := e.Transcript().Len()

	_, err = e.Activate(context.Background())
	require.ErrorIs(t, err, core.ErrRunInProgress)
	assert.Equal(t, before, e.Transcript().Len())

	close(b.release)
	waitRun(t, r)
}

func TestEngine_ActivateRejectsEmptyAndCyclic(t *testing.T) {
	empty := NewEngine(core.NewGraph("wf-empty", "empty"), echo())
	_, err := empty.Activate(context.Background())
	require.ErrorIs(t, err, core.ErrEmptyWorkflow)
	assert.Equal(t, core.RunStateIdle, empty.State())

	g := core.NewGraph("wf-cycle", "cycle")
	require.NoError(t, g.Restore(
		[]*core.Node{core.NewNode("a", core.AgentSEO, "A"), core.NewNode("b", core.AgentSEO, "B")},
		[]core.Edge{core.NewEdge("e1", "a", "b"), core.NewEdge("e2", "b", "a")},
	))
	cyclic := NewEngine(g, echo())
	_, err = cyclic.Activate(context.Background())
	require.ErrorIs(t, err, core.ErrCyclicGraph)
	assert.Equal(t, core.RunStateIdle, cyclic.State())
	assert.Equal(t, 0, cyclic.Transcript().Len())
}

func TestEngine_ResetDuringRunDiscardsLateResults(t *testing.T) {
	g := newGraph(t, []nodeSpec{{"a", "A"}, {"b", "B"}}, [][2]core.NodeID{{"a", "b"}})
	b := newBlocker()
	bus := events.New(50)
	defer bus.Close()
	stateCh := bus.SubscribeWorkflow("wf-1", events.TypeRunStateChanged)
	e := NewEngine(g, b, WithEventBus(bus))

	r, err := e.Activate(context.Background())
	require.NoError(t, err)
	<-b.started

	require.NoError(t, e.Reset())
	assert.Equal(t, core.RunStateIdle, e.State())
	assert.Equal(t, 0, e.Transcript().Len())
	assert.Empty(t, e.Outputs())

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("run handle should be released by reset")
	}
	assert.Equal(t, core.RunStateReset, r.Result().State)

	close(b.release)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, e.Transcript().Len(), "late result must not be appended")
	assert.Equal(t, core.RunStateIdle, e.State())

	var transitions []string
	for i := 0; i < 3; i++ {
		select {
		case ev := <-stateCh:
			changed := ev.(events.RunStateChangedEvent)
			transitions = append(transitions, string(changed.From)+"->"+string(changed.To))
		case <-time.After(time.Second):
			t.Fatalf("missing state event %d", i)
		}
	}
	assert.Equal(t, []string{"idle->running", "running->reset", "reset->idle"}, transitions)
}

func TestEngine_ResetFromIdleIsInvalid(t *testing.T) {
	e := NewEngine(newGraph(t, []nodeSpec{{"a", "A"}}, nil), echo())
	err := e.Reset()
	assert.True(t, core.IsCategory(err, core.ErrCatState))
	assert.ErrorIs(t, err, core.ErrInvalidState)
}

func TestEngine_NewRunClearsCompletedTranscript(t *testing.T) {
	g := newGraph(t, []nodeSpec{{"a", "A"}}, nil)
	e := NewEngine(g, echo())

	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.RunStateCompleted, summary.State)
	assert.Equal(t, 3, e.Transcript().Len())

	second, err := e.Activate(context.Background())
	require.NoError(t, err)
	waitRun(t, second)

	entries := e.Transcript().Events()
	require.Len(t, entries, 3)
	assert.Equal(t, 1, entries[0].Seq)
	assert.Equal(t, second.ID, entries[0].RunID)
}

func TestEngine_ResetAfterCompletion(t *testing.T) {
	e := NewEngine(newGraph(t, []nodeSpec{{"a", "A"}}, nil), echo())
	_, err := e.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, e.Reset())
	assert.Equal(t, core.RunStateIdle, e.State())
	assert.Equal(t, 0, e.Transcript().Len())
	assert.Nil(t, e.CurrentRun())
	assert.Equal(t, 1, e.Graph().Len(), "reset must not touch topology")
}

func TestEngine_NodeTimeoutIsFailure(t *testing.T) {
	g := newGraph(t, []nodeSpec{{"a", "Slow"}, {"b", "Next"}}, [][2]core.NodeID{{"a", "b"}})
	b := newBlocker()
	defer close(b.release)
	e := NewEngine(g, b, WithNodeTimeout(20*time.Millisecond))

	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []core.NodeID{"a"}, summary.Failed)
	assert.Equal(t, []core.NodeID{"b"}, summary.Skipped)
	lines := contents(e)
	assert.Equal(t, "System: Slow failed: timed out after 20ms", lines[1])
	assert.Equal(t, "System: Next skipped: upstream Slow failed", lines[2])
}

func TestEngine_RetriesRetryableFailures(t *testing.T) {
	g := newGraph(t, []nodeSpec{{"a", "Flaky"}}, nil)
	var mu sync.Mutex
	calls := 0
	capability := core.CapabilityFunc(func(ctx context.Context, req core.InvokeRequest) (*core.InvokeResult, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return nil, core.ErrExecution(core.CodeCapabilityFailed, "backend unavailable")
		}
		return &core.InvokeResult{Output: "finally"}, nil
	})
	policy := NewRetryPolicy(WithMaxAttempts(3), WithBaseDelay(time.Millisecond), WithJitter(0))
	e := NewEngine(g, capability, WithRetryPolicy(policy))

	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.NodeID{"a"}, summary.Succeeded)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []string{
		"System: run started",
		"Flaky: finally",
		"System: run completed: 1 succeeded, 0 failed, 0 skipped",
	}, contents(e))
}

func TestEngine_RetryExhaustionMessage(t *testing.T) {
	g := newGraph(t, []nodeSpec{{"a", "Flaky"}}, nil)
	capability := core.CapabilityFunc(func(ctx context.Context, req core.InvokeRequest) (*core.InvokeResult, error) {
		return nil, core.ErrExecution(core.CodeCapabilityFailed, "backend unavailable")
	})
	policy := NewRetryPolicy(WithMaxAttempts(2), WithBaseDelay(time.Millisecond), WithJitter(0))
	e := NewEngine(g, capability, WithRetryPolicy(policy))

	_, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "System: Flaky failed: backend unavailable (after 2 attempts)", contents(e)[1])
}

func TestEngine_RunUsesSnapshot(t *testing.T) {
	g := newGraph(t, []nodeSpec{{"a", "A"}}, nil)
	b := newBlocker()
	e := NewEngine(g, b)

	r, err := e.Activate(context.Background())
	require.NoError(t, err)
	<-b.started

	// Editing during a run is allowed but does not affect it.
	require.NoError(t, g.AddNode(core.NewNode("late", core.AgentAds, "Late")))
	close(b.release)

	summary := waitRun(t, r)
	assert.Equal(t, []core.NodeID{"a"}, summary.Order)
	assert.Equal(t, 2, g.Len())
}

func TestEngine_RunResetsOnCancel(t *testing.T) {
	g := newGraph(t, []nodeSpec{{"a", "A"}}, nil)
	b := newBlocker()
	defer close(b.release)
	e := NewEngine(g, b)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-b.started
		cancel()
	}()

	_, err := e.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, core.RunStateIdle, e.State())
}

func TestEngine_PublishesTranscriptAndNodeEvents(t *testing.T) {
	bus := events.New(100)
	defer bus.Close()
	ch := bus.SubscribeWorkflow("wf-1", events.TypeTranscriptAppended, events.TypeNodeStatusChanged)

	e := NewEngine(newGraph(t, []nodeSpec{{"a", "A"}}, nil), echo(), WithEventBus(bus))
	_, err := e.Run(context.Background())
	require.NoError(t, err)

	var kinds []string
	for i := 0; i < 5; i++ {
		select {
		case ev := <-ch:
			switch v := ev.(type) {
			case events.TranscriptAppendedEvent:
				kinds = append(kinds, fmt.Sprintf("transcript:%d", v.Entry.Seq))
			case events.NodeStatusChangedEvent:
				kinds = append(kinds, "node:"+string(v.Status))
			}
		case <-time.After(time.Second):
			t.Fatalf("missing event %d, got %v", i, kinds)
		}
	}
	assert.Equal(t, []string{"transcript:1", "node:running", "node:succeeded", "transcript:2", "transcript:3"}, kinds)
}

func TestEngine_StalledSubscriberDoesNotBlockRun(t *testing.T) {
	bus := events.New(1)
	defer bus.Close()
	stalled := bus.SubscribeWorkflow("wf-1", events.TypeRunStateChanged)

	g := newGraph(t, []nodeSpec{{"a", "A"}, {"b", "B"}, {"c", "C"}}, [][2]core.NodeID{{"a", "b"}, {"b", "c"}})
	e := NewEngine(g, echo(), WithEventBus(bus))

	r, err := e.Activate(context.Background())
	require.NoError(t, err)
	summary := waitRun(t, r)
	assert.Equal(t, core.RunStateCompleted, summary.State)

	reset := make(chan error, 1)
	go func() { reset <- e.Reset() }()
	select {
	case err := <-reset:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reset blocked on a subscriber that never reads")
	}
	assert.Equal(t, core.RunStateIdle, e.State())

	ev := <-stalled
	state, ok := ev.(events.RunStateChangedEvent)
	require.True(t, ok)
	assert.Equal(t, core.RunStateIdle, state.To, "the newest transition is kept")
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "plain", failureReason(fmt.Errorf("plain")))
	assert.Equal(t, "boom", failureReason(fmt.Errorf("wrapped: %w", core.ErrExecution("X", "boom"))))
}
