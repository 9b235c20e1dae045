package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
)

func TestDefault_LoadsEmbeddedAgents(t *testing.T) {
	c := Default()
	require.NotNil(t, c)
	assert.Same(t, c, Default())
	assert.Greater(t, c.Len(), 0)

	covered := make(map[core.AgentType]bool)
	for def := range c.ListAgents(context.Background()) {
		assert.True(t, def.AgentType.Valid(), "agent %s", def.ID)
		covered[def.AgentType] = true
	}
	for _, at := range core.AllAgentTypes() {
		assert.True(t, covered[at], "no catalog agent for %s", at)
	}
}

func TestListAgents_IsRestartable(t *testing.T) {
	c := Default()
	seq := c.ListAgents(context.Background())

	var first, second []string
	for def := range seq {
		first = append(first, def.ID)
	}
	for def := range seq {
		second = append(second, def.ID)
	}
	assert.Equal(t, first, second)
	assert.Len(t, first, c.Len())
}

func TestListAgents_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	count := 0
	for range Default().ListAgents(ctx) {
		count++
	}
	assert.Zero(t, count)
}

func TestAgent_ReturnsCopies(t *testing.T) {
	c := Default()
	def, ok := c.Agent("data-analyst")
	require.True(t, ok)
	def.DefaultConfiguration["metrics"] = "tampered"

	again, _ := c.Agent("data-analyst")
	assert.NotEqual(t, "tampered", again.DefaultConfiguration["metrics"])

	_, ok = c.Agent("nobody")
	assert.False(t, ok)
}

func TestByType(t *testing.T) {
	writers := Default().ByType(core.AgentCopywriting)
	require.Len(t, writers, 2)
	assert.Equal(t, "content-writer", writers[0].ID)
	assert.Equal(t, "headline-writer", writers[1].ID)
}

func TestSearch(t *testing.T) {
	c := Default()

	results := c.Search("seo")
	require.NotEmpty(t, results)
	assert.Equal(t, "seo-specialist", results[0].ID)

	all := c.Search("")
	assert.Len(t, all, c.Len())
	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].Name, all[i].Name)
	}

	assert.Empty(t, c.Search("zzzzqqqq"))
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"duplicate id", "agents:\n  - {id: a, agent_type: seo, name: A}\n  - {id: a, agent_type: seo, name: B}\n"},
		{"unknown type", "agents:\n  - {id: a, agent_type: podcast, name: A}\n"},
		{"missing id", "agents:\n  - {agent_type: seo, name: A}\n"},
		{"bad override", "agents:\n  - id: a\n    agent_type: seo\n    name: A\n    default_configuration: {optimization_level: extreme}\n"},
		{"malformed", "agents: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParse_NormalisesAgentType(t *testing.T) {
	c, err := Parse([]byte("agents:\n  - {id: a, agent_type: ' SEO ', name: A}\n"))
	require.NoError(t, err)
	def, ok := c.Agent("a")
	require.True(t, ok)
	assert.Equal(t, core.AgentSEO, def.AgentType)
}
