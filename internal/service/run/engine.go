// Package run executes workflow graphs: it walks a graph snapshot in
// topological order, invokes each node's capability and records the
// transcript of the run.
package run

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
	"github.com/hugo-lorenzo-mato/teamflow/internal/events"
	"github.com/hugo-lorenzo-mato/teamflow/internal/logging"
	"github.com/hugo-lorenzo-mato/teamflow/internal/transcript"
)

// DefaultNodeTimeout bounds a single capability invocation.
const DefaultNodeTimeout = 2 * time.Minute

// Option configures an Engine.
type Option func(*Engine)

// WithNodeTimeout sets the per-node timeout. Zero disables it.
func WithNodeTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.nodeTimeout = d
	}
}

// WithRetryPolicy sets the retry policy applied to each node.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(e *Engine) {
		if p != nil {
			e.retry = p
		}
	}
}

// WithEventBus mirrors run activity on bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(e *Engine) {
		e.bus = bus
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTranscript makes the engine write into an existing transcript.
func WithTranscript(t *transcript.Transcript) Option {
	return func(e *Engine) {
		if t != nil {
			e.transcript = t
		}
	}
}

// Engine runs one graph. At most one run of the graph is active at a time.
//
// Transcript callbacks are invoked while the engine serialises appends, so
// they must not call Activate or Reset.
type Engine struct {
	graph       *core.Graph
	capability  core.Capability
	transcript  *transcript.Transcript
	bus         *events.EventBus
	logger      *logging.Logger
	nodeTimeout time.Duration
	retry       *RetryPolicy
	now         func() time.Time
	newRunID    func() core.RunID

	// emitMu serialises transcript appends and state transitions against
	// Reset so nothing from an aborted run lands after it.
	emitMu sync.Mutex

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	current    *Run
	outputs    map[core.NodeID]string
	statuses   map[core.NodeID]core.NodeStatus
}

// NewEngine creates an engine for graph using capability to run nodes.
func NewEngine(graph *core.Graph, capability core.Capability, opts ...Option) *Engine {
	e := &Engine{
		graph:       graph,
		capability:  capability,
		transcript:  transcript.New(),
		logger:      logging.NewNop(),
		nodeTimeout: DefaultNodeTimeout,
		retry:       NoRetry(),
		now:         time.Now,
		newRunID:    func() core.RunID { return core.RunID(uuid.NewString()) },
		outputs:     make(map[core.NodeID]string),
		statuses:    make(map[core.NodeID]core.NodeStatus),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithWorkflow(string(graph.ID()))
	return e
}

// Graph returns the graph the engine runs.
func (e *Engine) Graph() *core.Graph { return e.graph }

// Transcript returns the transcript the engine writes to.
func (e *Engine) Transcript() *transcript.Transcript { return e.transcript }

// State returns the current run state.
func (e *Engine) State() core.RunState { return e.graph.RunState() }

// CurrentRun returns the latest run handle, or nil if none has started
// since the last reset.
func (e *Engine) CurrentRun() *Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Outputs returns a copy of the outputs recorded so far in the current run.
func (e *Engine) Outputs() map[core.NodeID]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[core.NodeID]string, len(e.outputs))
	for k, v := range e.outputs {
		out[k] = v
	}
	return out
}

// NodeStatuses returns a copy of per-node statuses of the current run.
func (e *Engine) NodeStatuses() map[core.NodeID]core.NodeStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[core.NodeID]core.NodeStatus, len(e.statuses))
	for k, v := range e.statuses {
		out[k] = v
	}
	return out
}

// Activate starts a run and returns immediately with its handle.
// Nothing changes if the graph is already running, empty or cyclic.
// The walk is detached from ctx cancellation; use Reset to abort it.
func (e *Engine) Activate(ctx context.Context) (*Run, error) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	prev := e.graph.RunState()
	if prev == core.RunStateRunning {
		e.mu.Unlock()
		return nil, core.ErrConflict(core.CodeRunInProgress, "a run is already in progress")
	}
	if !core.CanTransition(prev, core.RunStateRunning) {
		e.mu.Unlock()
		return nil, core.ErrState(core.CodeInvalidState, fmt.Sprintf("cannot start a run from state %s", prev))
	}

	snap := e.graph.Snapshot()
	if snap.Len() == 0 {
		e.mu.Unlock()
		return nil, core.ErrValidation(core.CodeEmptyWorkflow, "workflow has no nodes")
	}
	order, err := snap.TopologicalOrder()
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}

	e.generation++
	gen := e.generation
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := newRun(e.newRunID(), snap.ID, order, e.now())
	e.current = r
	e.cancel = cancel
	e.outputs = make(map[core.NodeID]string, len(order))
	e.statuses = make(map[core.NodeID]core.NodeStatus, len(order))
	for _, id := range order {
		e.statuses[id] = core.NodeStatusPending
	}
	e.graph.SetRunState(core.RunStateRunning)
	e.mu.Unlock()

	// Each run owns its transcript.
	e.transcript.Clear()
	e.publishState(r.ID, prev, core.RunStateRunning)
	e.appendEvent(core.NewSystemEvent(r.ID, "", "run started"))

	logger := e.logger.WithRun(string(r.ID))
	logger.Info("run started", "nodes", len(order))

	go e.walk(runCtx, gen, r, snap, order, logger)
	return r, nil
}

// Run activates the graph and waits for the run to finish.
// If ctx is cancelled first, the run is reset.
func (e *Engine) Run(ctx context.Context) (core.RunSummary, error) {
	r, err := e.Activate(ctx)
	if err != nil {
		return core.RunSummary{}, err
	}
	summary, err := r.Wait(ctx)
	if err != nil {
		_ = e.Reset()
		return r.Result(), err
	}
	return summary, nil
}

// Reset aborts an in-flight run or discards a completed one, clears the
// transcript and outputs, and returns the graph to idle. It does not wait
// for an in-flight capability call; its result is discarded.
func (e *Engine) Reset() error {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	prev := e.graph.RunState()
	if prev != core.RunStateRunning && prev != core.RunStateCompleted {
		e.mu.Unlock()
		return core.ErrState(core.CodeInvalidState, fmt.Sprintf("cannot reset from state %s", prev))
	}
	e.generation++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	r := e.current
	e.current = nil
	e.outputs = make(map[core.NodeID]string)
	e.statuses = make(map[core.NodeID]core.NodeStatus)
	e.graph.SetRunState(core.RunStateReset)
	e.mu.Unlock()

	var runID core.RunID
	if r != nil {
		runID = r.ID
		r.finish(core.RunStateReset, e.now())
	}
	e.transcript.Clear()
	e.publishState(runID, prev, core.RunStateReset)

	e.mu.Lock()
	e.graph.SetRunState(core.RunStateIdle)
	e.mu.Unlock()
	e.publishState(runID, core.RunStateReset, core.RunStateIdle)

	e.logger.Info("run reset", "from", prev, "run_id", runID)
	return nil
}

func (e *Engine) walk(ctx context.Context, gen uint64, r *Run, snap *core.GraphSnapshot, order []core.NodeID, logger *logging.Logger) {
	// failedUpstream maps a skipped node to the label of the failure that caused it.
	failedUpstream := make(map[core.NodeID]string)
	outputs := make(map[core.NodeID]string, len(order))

	for _, id := range order {
		if ctx.Err() != nil {
			return
		}
		node, _ := snap.Node(id)
		label := node.DisplayName()
		nodeLogger := logger.WithNode(string(id), label)

		if cause, skipped := failedUpstream[id]; skipped {
			if !e.settle(gen, r, node, core.NodeStatusSkipped, nil,
				core.NewSystemEvent(r.ID, id, fmt.Sprintf("%s skipped: upstream %s failed", label, cause))) {
				return
			}
			nodeLogger.Info("node skipped", "upstream", cause)
			continue
		}

		if !e.setStatus(gen, r.ID, node, core.NodeStatusRunning, nil) {
			return
		}
		preds := predecessorOutputs(snap, id, outputs)
		nodeLogger.Debug("invoking capability", "agent", node.AgentType, "predecessors", len(preds))

		start := e.now()
		result, err := e.invoke(ctx, r.ID, node, preds, nodeLogger)
		if ctx.Err() != nil {
			// Reset won the race; drop the result.
			return
		}

		if err != nil {
			reason := failureReason(err)
			if !e.settle(gen, r, node, core.NodeStatusFailed, err,
				core.NewSystemEvent(r.ID, id, fmt.Sprintf("%s failed: %s", label, reason))) {
				return
			}
			for _, d := range snap.Descendants(id) {
				if _, already := failedUpstream[d]; !already {
					failedUpstream[d] = label
				}
			}
			nodeLogger.Warn("node failed", "error", reason, "duration", e.now().Sub(start))
			continue
		}

		outputs[id] = result.Output
		if !e.record(gen, id, result.Output) {
			return
		}
		if !e.settle(gen, r, node, core.NodeStatusSucceeded, nil, core.NewMessageEvent(r.ID, node, result.Output)) {
			return
		}
		nodeLogger.Info("node succeeded", "model", result.Model, "duration", e.now().Sub(start))
	}

	e.complete(gen, r, logger)
}

// invoke runs the capability for one node under the timeout and retry policy.
// It returns as soon as ctx is cancelled even if the capability ignores it.
func (e *Engine) invoke(ctx context.Context, runID core.RunID, node *core.Node, preds []core.PredecessorOutput, logger *logging.Logger) (*core.InvokeResult, error) {
	req := core.InvokeRequest{
		RunID:              runID,
		NodeID:             node.ID,
		AgentType:          node.AgentType,
		Label:              node.DisplayName(),
		Configuration:      node.Configuration,
		PredecessorOutputs: preds,
	}

	var result *core.InvokeResult
	err := e.retry.ExecuteWithNotify(ctx, func(ctx context.Context) error {
		res, err := e.attempt(ctx, req)
		if err != nil {
			return err
		}
		result = res
		return nil
	}, func(attempt int, err error, delay time.Duration) {
		logger.Warn("retrying node", "attempt", attempt, "error", err, "delay", delay)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type outcome struct {
	result *core.InvokeResult
	err    error
}

func (e *Engine) attempt(ctx context.Context, req core.InvokeRequest) (*core.InvokeResult, error) {
	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if e.nodeTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, e.nodeTimeout)
	}
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		res, err := e.capability.Invoke(attemptCtx, req)
		done <- outcome{result: res, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, e.timeoutError().WithCause(o.err)
			}
			return nil, o.err
		}
		if o.result == nil {
			return nil, core.ErrExecution(core.CodeCapabilityFailed, "capability returned no result")
		}
		return o.result, nil
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, e.timeoutError()
	}
}

func (e *Engine) timeoutError() *core.DomainError {
	return core.ErrTimeout(fmt.Sprintf("timed out after %s", e.nodeTimeout))
}

// complete finishes the run unless it was reset meanwhile.
func (e *Engine) complete(gen uint64, r *Run, logger *logging.Logger) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	if !e.isCurrent(gen) {
		return
	}
	summary := r.Result()
	e.appendEvent(core.NewSystemEvent(r.ID, "", fmt.Sprintf("run completed: %d succeeded, %d failed, %d skipped",
		len(summary.Succeeded), len(summary.Failed), len(summary.Skipped))))

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.graph.SetRunState(core.RunStateCompleted)
	e.mu.Unlock()

	r.finish(core.RunStateCompleted, e.now())
	e.publishState(r.ID, core.RunStateRunning, core.RunStateCompleted)

	logger.Info("run completed",
		"succeeded", len(summary.Succeeded),
		"failed", len(summary.Failed),
		"skipped", len(summary.Skipped),
		"duration", e.now().Sub(summary.StartedAt))
}

func (e *Engine) isCurrent(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation == gen
}

// settle records a terminal node status and appends its transcript event.
func (e *Engine) settle(gen uint64, r *Run, node *core.Node, status core.NodeStatus, cause error, event core.RunEvent) bool {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	if !e.updateStatus(gen, node.ID, status) {
		return false
	}
	r.record(node.ID, status)
	e.publishNodeStatus(r.ID, node, status, cause)
	e.appendEvent(event)
	return true
}

func (e *Engine) setStatus(gen uint64, runID core.RunID, node *core.Node, status core.NodeStatus, cause error) bool {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	if !e.updateStatus(gen, node.ID, status) {
		return false
	}
	e.publishNodeStatus(runID, node, status, cause)
	return true
}

func (e *Engine) updateStatus(gen uint64, id core.NodeID, status core.NodeStatus) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation != gen {
		return false
	}
	e.statuses[id] = status
	return true
}

func (e *Engine) record(gen uint64, id core.NodeID, output string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation != gen {
		return false
	}
	e.outputs[id] = output
	return true
}

// appendEvent writes to the transcript and mirrors the event on the bus.
// Callers hold emitMu.
func (e *Engine) appendEvent(event core.RunEvent) {
	stored := e.transcript.Append(event)
	if e.bus != nil {
		e.bus.Publish(events.NewTranscriptAppendedEvent(string(e.graph.ID()), stored))
	}
}

func (e *Engine) publishState(runID core.RunID, from, to core.RunState) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.NewRunStateChangedEvent(string(e.graph.ID()), runID, from, to))
}

func (e *Engine) publishNodeStatus(runID core.RunID, node *core.Node, status core.NodeStatus, cause error) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.NewNodeStatusChangedEvent(string(e.graph.ID()), runID, node, status, cause))
}

// predecessorOutputs collects direct predecessor outputs in edge order.
func predecessorOutputs(snap *core.GraphSnapshot, id core.NodeID, outputs map[core.NodeID]string) []core.PredecessorOutput {
	preds := snap.Predecessors(id)
	out := make([]core.PredecessorOutput, 0, len(preds))
	for _, p := range preds {
		node, ok := snap.Node(p)
		if !ok {
			continue
		}
		out = append(out, core.PredecessorOutput{
			NodeID:    p,
			Label:     node.DisplayName(),
			AgentType: node.AgentType,
			Output:    outputs[p],
		})
	}
	return out
}

// failureReason renders an invocation error for the transcript.
func failureReason(err error) string {
	var exhausted *RetryExhaustedError
	if errors.As(err, &exhausted) {
		return fmt.Sprintf("%s (after %d attempts)", failureReason(exhausted.LastErr), exhausted.Attempts)
	}
	var domErr *core.DomainError
	if errors.As(err, &domErr) {
		return domErr.Message
	}
	return err.Error()
}
