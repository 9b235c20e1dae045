// Package tui renders workflow runs in the terminal.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
)

// Color palette
var (
	ColorPrimary   = lipgloss.Color("#7C3AED") // Purple
	ColorSecondary = lipgloss.Color("#06B6D4") // Cyan
	ColorAccent    = lipgloss.Color("#F59E0B") // Amber

	ColorSuccess = lipgloss.Color("#10B981") // Green
	ColorWarning = lipgloss.Color("#F59E0B") // Amber
	ColorError   = lipgloss.Color("#EF4444") // Red
	ColorInfo    = lipgloss.Color("#3B82F6") // Blue

	ColorText       = lipgloss.Color("#E5E7EB") // Light gray
	ColorTextMuted  = lipgloss.Color("#9CA3AF") // Muted gray
	ColorBorder     = lipgloss.Color("#374151") // Dark gray
	ColorBackground = lipgloss.Color("#1F2937") // Dark background
)

// agentColors tints agent labels in the transcript.
var agentColors = map[core.AgentType]lipgloss.Color{
	core.AgentStrategy:    "#8B5CF6",
	core.AgentCreative:    "#EC4899",
	core.AgentCopywriting: "#06B6D4",
	core.AgentSEO:         "#10B981",
	core.AgentSocial:      "#3B82F6",
	core.AgentEmail:       "#F59E0B",
	core.AgentAnalytics:   "#14B8A6",
	core.AgentAds:         "#EF4444",
}

// AgentColor returns the label color for an agent type.
func AgentColor(agentType core.AgentType) lipgloss.Color {
	if c, ok := agentColors[agentType]; ok {
		return c
	}
	return ColorPrimary
}
