package run

import (
	"context"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
)

// Run is the handle of one activation.
type Run struct {
	ID      core.RunID
	GraphID core.GraphID

	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	summary core.RunSummary
}

func newRun(id core.RunID, graphID core.GraphID, order []core.NodeID, startedAt time.Time) *Run {
	o := make([]core.NodeID, len(order))
	copy(o, order)
	return &Run{
		ID:      id,
		GraphID: graphID,
		done:    make(chan struct{}),
		summary: core.RunSummary{
			ID:        id,
			GraphID:   graphID,
			State:     core.RunStateRunning,
			Order:     o,
			StartedAt: startedAt,
		},
	}
}

// Done is closed when the run completes or is reset.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run ends or ctx is done.
func (r *Run) Wait(ctx context.Context) (core.RunSummary, error) {
	select {
	case <-r.done:
		return r.Result(), nil
	case <-ctx.Done():
		return core.RunSummary{}, ctx.Err()
	}
}

// Result returns a copy of the run summary as of now.
func (r *Run) Result() core.RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.summary
	s.Order = append([]core.NodeID(nil), r.summary.Order...)
	s.Succeeded = append([]core.NodeID(nil), r.summary.Succeeded...)
	s.Failed = append([]core.NodeID(nil), r.summary.Failed...)
	s.Skipped = append([]core.NodeID(nil), r.summary.Skipped...)
	return s
}

func (r *Run) record(id core.NodeID, status core.NodeStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch status {
	case core.NodeStatusSucceeded:
		r.summary.Succeeded = append(r.summary.Succeeded, id)
	case core.NodeStatusFailed:
		r.summary.Failed = append(r.summary.Failed, id)
	case core.NodeStatusSkipped:
		r.summary.Skipped = append(r.summary.Skipped, id)
	}
}

// finish sets the final state once and releases waiters.
func (r *Run) finish(state core.RunState, at time.Time) {
	r.once.Do(func() {
		r.mu.Lock()
		r.summary.State = state
		r.summary.FinishedAt = at
		r.mu.Unlock()
		close(r.done)
	})
}
