// Package template holds the library of prebuilt workflow graphs and
// instantiates them into fresh, independent graphs.
package template

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
)

// Complexity is the difficulty tier shown in the template gallery.
type Complexity string

const (
	ComplexityBeginner     Complexity = "beginner"
	ComplexityIntermediate Complexity = "intermediate"
	ComplexityAdvanced     Complexity = "advanced"
)

// Valid reports whether c is a known tier.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexityBeginner, ComplexityIntermediate, ComplexityAdvanced:
		return true
	}
	return false
}

// Duration is a time.Duration written as a Go duration string ("45m").
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON encodes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a duration string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML encodes the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalYAML accepts a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", value.Line, value.Value)
	}
	*d = Duration(parsed)
	return nil
}

// AgentSpec is one node of a template. Agent is either a catalog agent id or
// an agent type.
type AgentSpec struct {
	Key           string                 `yaml:"key" json:"key"`
	Agent         string                 `yaml:"agent" json:"agent"`
	Label         string                 `yaml:"label" json:"label"`
	Description   string                 `yaml:"description,omitempty" json:"description,omitempty"`
	Configuration map[string]interface{} `yaml:"configuration,omitempty" json:"configuration,omitempty"`
	Position      core.Position          `yaml:"position" json:"position"`

	// Resolved at load time.
	AgentType core.AgentType         `yaml:"-" json:"agent_type"`
	overrides map[string]interface{} // catalog defaults overlaid with Configuration
}

// EdgeSpec connects two agents by key.
type EdgeSpec struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// Template is an immutable named graph used to seed new workflows.
type Template struct {
	ID                string      `yaml:"id" json:"id"`
	Name              string      `yaml:"name" json:"name"`
	Description       string      `yaml:"description" json:"description"`
	Category          string      `yaml:"category" json:"category"`
	Complexity        Complexity  `yaml:"complexity" json:"complexity"`
	EstimatedDuration Duration    `yaml:"estimated_duration" json:"estimated_duration"`
	Version           int         `yaml:"version" json:"version"`
	Agents            []AgentSpec `yaml:"agents" json:"agents"`
	Tasks             []string    `yaml:"tasks,omitempty" json:"tasks,omitempty"`
	Edges             []EdgeSpec  `yaml:"edges,omitempty" json:"edges,omitempty"`
}

// Summary is the listing form of a template.
type Summary struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Category          string     `json:"category"`
	Complexity        Complexity `json:"complexity"`
	EstimatedDuration Duration   `json:"estimated_duration"`
	AgentCount        int        `json:"agent_count"`
}

// Summary returns the listing form of t.
func (t *Template) Summary() Summary {
	return Summary{
		ID:                t.ID,
		Name:              t.Name,
		Category:          t.Category,
		Complexity:        t.Complexity,
		EstimatedDuration: t.EstimatedDuration,
		AgentCount:        len(t.Agents),
	}
}

// clone deep-copies t.
func (t *Template) clone() *Template {
	c := *t
	c.Agents = make([]AgentSpec, len(t.Agents))
	for i, a := range t.Agents {
		a.Configuration = cloneBag(a.Configuration)
		a.overrides = cloneBag(a.overrides)
		c.Agents[i] = a
	}
	c.Tasks = append([]string(nil), t.Tasks...)
	c.Edges = append([]EdgeSpec(nil), t.Edges...)
	return &c
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
