package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
)

// Resetter resets the run shown by the view.
type Resetter interface {
	Reset() error
}

// NodeView is one row of the node list.
type NodeView struct {
	ID        core.NodeID
	Label     string
	AgentType core.AgentType
	Status    core.NodeStatus
	Error     string
}

// Options configures a run view.
type Options struct {
	Title string
	// Nodes in execution order.
	Nodes    []NodeView
	State    core.RunState
	Adapter  *EventBusAdapter
	Resetter Resetter
	// Start is run once from Init, typically to activate the graph.
	Start          func() error
	RenderMarkdown bool
}

type keyMap struct {
	Quit  key.Binding
	Reset key.Binding
}

var keys = keyMap{
	Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Reset: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset")),
}

// Model is the run view.
type Model struct {
	title    string
	nodes    []NodeView
	index    map[core.NodeID]int
	entries  []core.RunEvent
	state    core.RunState
	adapter  *EventBusAdapter
	resetter Resetter
	start    func() error

	spinner  spinner.Model
	viewport viewport.Model
	markdown bool
	renderer *glamour.TermRenderer

	width  int
	height int
	ready  bool
	err    error
}

// NewModel creates a run view.
func NewModel(opts Options) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = RunningStyle

	m := Model{
		title:    opts.Title,
		nodes:    make([]NodeView, len(opts.Nodes)),
		index:    make(map[core.NodeID]int, len(opts.Nodes)),
		state:    opts.State,
		adapter:  opts.Adapter,
		resetter: opts.Resetter,
		start:    opts.Start,
		spinner:  sp,
		markdown: opts.RenderMarkdown,
	}
	if m.state == "" {
		m.state = core.RunStateIdle
	}
	copy(m.nodes, opts.Nodes)
	for i, n := range m.nodes {
		if n.Status == "" {
			m.nodes[i].Status = core.NodeStatusPending
		}
		m.index[n.ID] = i
	}
	return m
}

// Init starts the spinner, the event subscription and the run.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.adapter.Next()}
	if m.start != nil {
		start := m.start
		cmds = append(cmds, func() tea.Msg {
			if err := start(); err != nil {
				return ErrorMsg{Error: err}
			}
			return nil
		})
	}
	return tea.Batch(cmds...)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TranscriptMsg:
		m.entries = append(m.entries, msg.Entry)
		m.refreshTranscript()
		return m, m.adapter.Next()

	case NodeStatusMsg:
		if i, ok := m.index[msg.NodeID]; ok {
			m.nodes[i].Status = msg.Status
			m.nodes[i].Error = msg.Error
		}
		return m, m.adapter.Next()

	case RunStateMsg:
		m.state = msg.To
		switch msg.To {
		case core.RunStateRunning, core.RunStateIdle:
			m.clearRun()
		}
		return m, m.adapter.Next()

	case resetDoneMsg:
		m.err = msg.err
		return m, nil

	case ErrorMsg:
		m.err = msg.Error
		return m, nil

	case busClosedMsg:
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		m.adapter.Close()
		return m, tea.Quit

	case key.Matches(msg, keys.Reset):
		if m.resetter == nil || (m.state != core.RunStateRunning && m.state != core.RunStateCompleted) {
			return m, nil
		}
		resetter := m.resetter
		return m, func() tea.Msg { return resetDoneMsg{err: resetter.Reset()} }
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) clearRun() {
	m.entries = nil
	m.err = nil
	for i := range m.nodes {
		m.nodes[i].Status = core.NodeStatusPending
		m.nodes[i].Error = ""
	}
	m.refreshTranscript()
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height

	// header, node box borders, footer
	chrome := len(m.nodes) + 6
	vpHeight := height - chrome
	if vpHeight < 3 {
		vpHeight = 3
	}
	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}

	if m.markdown {
		wrap := width - 4
		if wrap > 120 {
			wrap = 120
		}
		if wrap < 20 {
			wrap = 20
		}
		if r, err := glamour.NewTermRenderer(glamour.WithStyles(styles.DraculaStyleConfig), glamour.WithWordWrap(wrap)); err == nil {
			m.renderer = r
		}
	}
	m.refreshTranscript()
}

func (m *Model) refreshTranscript() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.entries) == 0 {
		return PendingStyle.Render("Waiting for the run to start...")
	}

	var b strings.Builder
	for _, e := range m.entries {
		ts := TimestampStyle.Render(e.Timestamp.Format("15:04:05"))
		if e.Kind == core.EventKindSystem {
			fmt.Fprintf(&b, "%s %s\n", ts, SystemStyle.Render(e.Content))
			continue
		}

		label := lipgloss.NewStyle().Bold(true).Foreground(AgentColor(m.agentType(e.NodeID))).Render(e.AgentLabel)
		fmt.Fprintf(&b, "%s %s\n", ts, label)
		b.WriteString(m.renderContent(e.Content))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderContent(content string) string {
	if m.renderer != nil {
		if out, err := m.renderer.Render(content); err == nil {
			return strings.TrimRight(out, "\n") + "\n"
		}
	}
	return MessageStyle.Render(strings.TrimSpace(content)) + "\n"
}

func (m Model) agentType(id core.NodeID) core.AgentType {
	if i, ok := m.index[id]; ok {
		return m.nodes[i].AgentType
	}
	return ""
}

// View renders the model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(BoxStyle.Render(m.renderNodes()))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	state := RunStateStyle(m.state).Render(string(m.state))
	if m.state == core.RunStateRunning {
		state = m.spinner.View() + " " + state
	}
	return HeaderStyle.Render(m.title) + "  " + state
}

func (m Model) renderNodes() string {
	lines := make([]string, 0, len(m.nodes))
	for _, n := range m.nodes {
		style := StatusStyle(n.Status)
		icon := StatusIcon(n.Status)
		if n.Status == core.NodeStatusRunning {
			icon = m.spinner.View()
		}
		line := fmt.Sprintf("%s %s %s", icon, n.Label, style.Render(string(n.Status)))
		if n.Error != "" {
			line += " " + FailedStyle.Render(n.Error)
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return PendingStyle.Render("no nodes")
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderFooter() string {
	help := FooterStyle.Render(fmt.Sprintf("%s %s • %s %s",
		keys.Quit.Help().Key, keys.Quit.Help().Desc,
		keys.Reset.Help().Key, keys.Reset.Help().Desc))
	if m.err != nil {
		return ErrorStyle.Render("Error: "+m.err.Error()) + "\n" + help
	}
	return help
}

// State returns the run state as last seen by the view.
func (m Model) State() core.RunState { return m.state }

// Nodes returns a copy of the node rows.
func (m Model) Nodes() []NodeView {
	out := make([]NodeView, len(m.nodes))
	copy(out, m.nodes)
	return out
}

// Entries returns the transcript entries shown.
func (m Model) Entries() []core.RunEvent {
	return append([]core.RunEvent(nil), m.entries...)
}
