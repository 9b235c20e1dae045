package core

import "strings"

// AgentType is the capability kind of a node. The set is closed.
type AgentType string

const (
	AgentStrategy    AgentType = "strategy"
	AgentCreative    AgentType = "creative"
	AgentCopywriting AgentType = "copywriting"
	AgentSEO         AgentType = "seo"
	AgentSocial      AgentType = "social"
	AgentEmail       AgentType = "email"
	AgentAnalytics   AgentType = "analytics"
	AgentAds         AgentType = "ads"
)

var allAgentTypes = []AgentType{
	AgentStrategy,
	AgentCreative,
	AgentCopywriting,
	AgentSEO,
	AgentSocial,
	AgentEmail,
	AgentAnalytics,
	AgentAds,
}

// AllAgentTypes returns every known agent type in canonical order.
func AllAgentTypes() []AgentType {
	out := make([]AgentType, len(allAgentTypes))
	copy(out, allAgentTypes)
	return out
}

// Valid reports whether t is a known agent type.
func (t AgentType) Valid() bool {
	for _, known := range allAgentTypes {
		if t == known {
			return true
		}
	}
	return false
}

func (t AgentType) String() string { return string(t) }

// DisplayName returns a human label for t, e.g. "SEO" or "Copywriting".
func (t AgentType) DisplayName() string {
	switch t {
	case AgentSEO:
		return "SEO"
	case "":
		return ""
	default:
		return strings.ToUpper(string(t[:1])) + string(t[1:])
	}
}

// ParseAgentType normalises s and reports whether it names a known agent type.
func ParseAgentType(s string) (AgentType, bool) {
	t := AgentType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// AgentDefinition is one entry of the agent catalog.
type AgentDefinition struct {
	ID                   string                 `json:"id" yaml:"id"`
	AgentType            AgentType              `json:"agent_type" yaml:"agent_type"`
	Name                 string                 `json:"name" yaml:"name"`
	Description          string                 `json:"description" yaml:"description"`
	DefaultConfiguration map[string]interface{} `json:"default_configuration,omitempty" yaml:"default_configuration,omitempty"`
}
