package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
)

var (
	// HeaderStyle is the style for the title bar.
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			Background(ColorBackground).
			Padding(0, 1)

	// FooterStyle is the style for key help.
	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)

	// BoxStyle frames the node list.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	PendingStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)

	RunningStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true)

	SucceededStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	FailedStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	SkippedStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			Italic(true)

	// SystemStyle renders engine-authored transcript lines.
	SystemStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			Italic(true)

	// MessageStyle renders agent output.
	MessageStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	TimestampStyle = lipgloss.NewStyle().
			Foreground(ColorBorder)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)
)

// StatusStyle returns the style for a node status.
func StatusStyle(s core.NodeStatus) lipgloss.Style {
	switch s {
	case core.NodeStatusRunning:
		return RunningStyle
	case core.NodeStatusSucceeded:
		return SucceededStyle
	case core.NodeStatusFailed:
		return FailedStyle
	case core.NodeStatusSkipped:
		return SkippedStyle
	default:
		return PendingStyle
	}
}

// StatusIcon returns a one-cell marker for a node status.
func StatusIcon(s core.NodeStatus) string {
	switch s {
	case core.NodeStatusRunning:
		return "●"
	case core.NodeStatusSucceeded:
		return "✓"
	case core.NodeStatusFailed:
		return "✗"
	case core.NodeStatusSkipped:
		return "–"
	default:
		return "○"
	}
}

// RunStateStyle returns the style for the run state badge.
func RunStateStyle(s core.RunState) lipgloss.Style {
	switch s {
	case core.RunStateRunning:
		return RunningStyle
	case core.RunStateCompleted:
		return SucceededStyle
	default:
		return PendingStyle
	}
}
