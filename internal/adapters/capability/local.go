package capability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
	"github.com/hugo-lorenzo-mato/teamflow/internal/nodeconfig"
)

// LocalModel is reported as the model of local invocations.
const LocalModel = "local"

// LocalCapability produces a deterministic markdown brief from a node's
// configuration and its predecessors' outputs. It needs no network access.
type LocalCapability struct {
	delay    time.Duration
	failures map[core.NodeID]string
	now      func() time.Time
}

var _ core.Capability = (*LocalCapability)(nil)

// LocalOption configures a LocalCapability.
type LocalOption func(*LocalCapability)

// WithDelay makes each invocation wait d, or until the context is done.
func WithDelay(d time.Duration) LocalOption {
	return func(c *LocalCapability) {
		c.delay = d
	}
}

// WithFailure makes invocations of node id fail with reason.
func WithFailure(id core.NodeID, reason string) LocalOption {
	return func(c *LocalCapability) {
		c.failures[id] = reason
	}
}

// NewLocalCapability creates a local capability.
func NewLocalCapability(opts ...LocalOption) *LocalCapability {
	c := &LocalCapability{
		failures: make(map[core.NodeID]string),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke implements core.Capability.
func (c *LocalCapability) Invoke(ctx context.Context, req core.InvokeRequest) (*core.InvokeResult, error) {
	start := c.now()
	if c.delay > 0 {
		timer := time.NewTimer(c.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if reason, ok := c.failures[req.NodeID]; ok {
		err := core.ErrExecution(core.CodeCapabilityFailed, reason)
		err.Retryable = false
		return nil, err
	}

	return &core.InvokeResult{
		Output:   Brief(req),
		Model:    LocalModel,
		Duration: c.now().Sub(start),
	}, nil
}

// Brief renders the markdown produced by the local capability.
func Brief(req core.InvokeRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** (%s)\n\n", req.Label, req.AgentType)
	if req.Configuration != nil {
		fmt.Fprintf(&b, "- Plan: %s\n", nodeconfig.Describe(req.Configuration))
	} else {
		b.WriteString("- Plan: default settings\n")
	}
	if len(req.PredecessorOutputs) == 0 {
		b.WriteString("- Inputs: none\n")
		return b.String()
	}
	labels := make([]string, 0, len(req.PredecessorOutputs))
	for _, p := range req.PredecessorOutputs {
		labels = append(labels, p.Label)
	}
	fmt.Fprintf(&b, "- Inputs: %s\n", strings.Join(labels, ", "))
	return b.String()
}
