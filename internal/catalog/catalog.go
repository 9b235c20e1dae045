// Package catalog provides the read-only registry of agent definitions that
// populates the node library and template agent lists.
package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"iter"
	"sort"
	"sync"

	"github.com/sahilm/fuzzy"
	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
	"github.com/hugo-lorenzo-mato/teamflow/internal/nodeconfig"
)

//go:embed agents.yaml
var agentsYAML []byte

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the process-wide catalog built from the embedded agent list.
// It panics if the embedded data is malformed.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(agentsYAML)
		if err != nil {
			panic(fmt.Sprintf("catalog: embedded agents.yaml: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Catalog is an immutable list of agent definitions.
type Catalog struct {
	agents []core.AgentDefinition
	byID   map[string]int
}

var _ core.AgentCatalog = (*Catalog)(nil)

type catalogFile struct {
	Agents []core.AgentDefinition `yaml:"agents"`
}

// Parse builds a catalog from YAML. Every definition must have a unique id, a
// known agent type and default overrides that validate for that type.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing agents: %w", err)
	}
	return New(file.Agents)
}

// New builds a catalog from definitions, validating them as Parse does.
func New(defs []core.AgentDefinition) (*Catalog, error) {
	store := nodeconfig.NewStore(nodeconfig.WithStrictAgentTypes(true))
	c := &Catalog{
		agents: make([]core.AgentDefinition, 0, len(defs)),
		byID:   make(map[string]int, len(defs)),
	}
	for _, def := range defs {
		if def.ID == "" {
			return nil, core.ErrValidation(core.CodeInvalidNode, "agent id cannot be empty")
		}
		if _, dup := c.byID[def.ID]; dup {
			return nil, core.NewDuplicateIDError("agent", def.ID)
		}
		t, ok := core.ParseAgentType(string(def.AgentType))
		if !ok {
			return nil, core.ErrValidation(core.CodeInvalidNode,
				fmt.Sprintf("agent %q has unknown agent type %q", def.ID, def.AgentType))
		}
		def.AgentType = t
		if _, err := store.Merge(t, def.DefaultConfiguration); err != nil {
			return nil, fmt.Errorf("agent %s: %w", def.ID, err)
		}
		def.DefaultConfiguration = cloneBag(def.DefaultConfiguration)
		c.byID[def.ID] = len(c.agents)
		c.agents = append(c.agents, def)
	}
	return c, nil
}

// ListAgents yields every definition in catalog order. Iteration stops early
// if ctx is done.
func (c *Catalog) ListAgents(ctx context.Context) iter.Seq[core.AgentDefinition] {
	return func(yield func(core.AgentDefinition) bool) {
		for _, def := range c.agents {
			if ctx.Err() != nil {
				return
			}
			if !yield(copyDefinition(def)) {
				return
			}
		}
	}
}

// Agent looks up a definition by id.
func (c *Catalog) Agent(id string) (core.AgentDefinition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return core.AgentDefinition{}, false
	}
	return copyDefinition(c.agents[i]), true
}

// ByType returns the definitions of one agent type in catalog order.
func (c *Catalog) ByType(t core.AgentType) []core.AgentDefinition {
	var out []core.AgentDefinition
	for _, def := range c.agents {
		if def.AgentType == t {
			out = append(out, copyDefinition(def))
		}
	}
	return out
}

// Len returns the number of definitions.
func (c *Catalog) Len() int { return len(c.agents) }

// Search fuzzy-matches query against agent names, types and descriptions.
// An empty query returns every agent sorted by name.
func (c *Catalog) Search(query string) []core.AgentDefinition {
	if query == "" {
		out := make([]core.AgentDefinition, 0, len(c.agents))
		for _, def := range c.agents {
			out = append(out, copyDefinition(def))
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out
	}

	matches := fuzzy.FindFrom(query, searchSource(c.agents))
	out := make([]core.AgentDefinition, 0, len(matches))
	for _, m := range matches {
		out = append(out, copyDefinition(c.agents[m.Index]))
	}
	return out
}

// searchSource adapts the agent list to fuzzy.Source.
type searchSource []core.AgentDefinition

func (s searchSource) String(i int) string {
	return s[i].Name + " " + string(s[i].AgentType) + " " + s[i].Description
}

func (s searchSource) Len() int { return len(s) }

func copyDefinition(def core.AgentDefinition) core.AgentDefinition {
	def.DefaultConfiguration = cloneBag(def.DefaultConfiguration)
	return def
}

func cloneBag(bag map[string]interface{}) map[string]interface{} {
	if bag == nil {
		return nil
	}
	out := make(map[string]interface{}, len(bag))
	for k, v := range bag {
		switch list := v.(type) {
		case []interface{}:
			out[k] = append([]interface{}(nil), list...)
		case []string:
			out[k] = append([]string(nil), list...)
		default:
			out[k] = v
		}
	}
	return out
}
