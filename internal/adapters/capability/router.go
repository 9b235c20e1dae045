// Package capability provides core.Capability implementations: a router that
// dispatches by agent type, an HTTP client for a remote agent backend and a
// deterministic local capability for offline runs.
package capability

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
)

// Router dispatches invocations to the capability registered for the node's
// agent type, falling back to a default when one is set.
type Router struct {
	mu       sync.RWMutex
	routes   map[core.AgentType]core.Capability
	fallback core.Capability
}

var _ core.Capability = (*Router)(nil)

// NewRouter creates a router with an optional fallback capability.
func NewRouter(fallback core.Capability) *Router {
	return &Router{
		routes:   make(map[core.AgentType]core.Capability),
		fallback: fallback,
	}
}

// Register routes an agent type to capability, replacing any previous route.
func (r *Router) Register(t core.AgentType, capability core.Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[t] = capability
}

// Routes lists the agent types with an explicit route.
func (r *Router) Routes() []core.AgentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.AgentType, 0, len(r.routes))
	for t := range r.routes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Invoke implements core.Capability.
func (r *Router) Invoke(ctx context.Context, req core.InvokeRequest) (*core.InvokeResult, error) {
	r.mu.RLock()
	capability, ok := r.routes[req.AgentType]
	if !ok {
		capability = r.fallback
	}
	r.mu.RUnlock()

	if capability == nil {
		err := core.ErrExecution(core.CodeCapabilityFailed, fmt.Sprintf("no capability for agent type %s", req.AgentType))
		err.Retryable = false
		return nil, err
	}
	return capability.Invoke(ctx, req)
}
