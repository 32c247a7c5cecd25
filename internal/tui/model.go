// Package tui renders a live run in the terminal.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/architectagent/architect/internal/config"
	"github.com/architectagent/architect/internal/events"
	"github.com/architectagent/architect/internal/plan"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneNodes PaneID = iota
	PaneProgress
)

const paneCount = 2

// Options configure a Model.
type Options struct {
	RunID       string         // Only events of this run are shown; empty shows all
	Nodes       []plan.Node    // Initial plan, in scheduling order
	Config      *config.Config // Settings edited by the settings form
	GlobalPath  string
	ProjectPath string
	Cancel      func() // Invoked once when the user cancels the run
}

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	nodePane     NodePaneModel
	progressPane ProgressPaneModel
	settingsPane SettingsPaneModel
	focusedPane  PaneID
	bus          *events.EventBus
	eventSub     <-chan events.Event
	opts         Options
	width        int
	height       int
	quitting     bool
	cancelled    bool
	showSettings bool
}

type busClosedMsg struct{}

// New creates a new TUI model subscribed to every event on bus.
func New(bus *events.EventBus, opts Options) Model {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	return Model{
		nodePane:     NewNodePaneModel(opts.Nodes),
		progressPane: NewProgressPaneModel(),
		settingsPane: NewSettingsPaneModel(opts.Config, opts.GlobalPath, opts.ProjectPath),
		focusedPane:  PaneNodes,
		bus:          bus,
		eventSub:     bus.SubscribeAll(256),
		opts:         opts,
	}
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return busClosedMsg{}
		}
		return event
	}
}

func (m Model) ours(ev events.Event) bool {
	return m.opts.RunID == "" || ev.RunID() == m.opts.RunID
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.showSettings {
			if msg.String() == "esc" {
				m.showSettings = false
				m.settingsPane.SetVisible(false)
				return m, nil
			}
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			if !m.settingsPane.IsVisible() {
				m.showSettings = false
			}
			return m, cmd
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			m.bus.Unsubscribe(m.eventSub)
			return m, tea.Quit

		case KeyCancel:
			if !m.cancelled && !m.progressPane.Finished() && m.opts.Cancel != nil {
				m.cancelled = true
				m.opts.Cancel()
			}

		case KeySettings:
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			cmds = append(cmds, m.settingsPane.Init())

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneNodes
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneProgress
			m.updateFocusStates()

		default:
			if m.focusedPane == PaneNodes {
				var cmd tea.Cmd
				m.nodePane, cmd = m.nodePane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case tickMsg:
		var cmd tea.Cmd
		m.nodePane, cmd = m.nodePane.Update(msg)
		cmds = append(cmds, cmd)

	case events.NodeStartedEvent, events.NodeResolvedEvent, events.NodeFailedEvent, events.NodeRequeuedEvent:
		if m.ours(msg.(events.Event)) {
			var cmd tea.Cmd
			m.nodePane, cmd = m.nodePane.Update(msg)
			cmds = append(cmds, cmd)
		}
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.RunProgressEvent, events.RunFinishedEvent:
		if m.ours(msg.(events.Event)) {
			m.progressPane, _ = m.progressPane.Update(msg)
		}
		cmds = append(cmds, waitForEvent(m.eventSub))

	case busClosedMsg:
		// Nothing more will arrive
	}

	return m, tea.Batch(cmds...)
}

// Finished reports whether the watched run has ended.
func (m Model) Finished() bool { return m.progressPane.Finished() }

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.showSettings {
		return m.settingsPane.View()
	}

	main := lipgloss.JoinHorizontal(lipgloss.Top, m.nodePane.View(), m.progressPane.View())
	return lipgloss.JoinVertical(lipgloss.Left, main, HelpView(m.progressPane.Finished()))
}

// computeLayout splits the screen 65/35 between the node and progress panes.
func (m *Model) computeLayout() {
	nodeWidth := m.width * 65 / 100
	available := m.height - 1 // help bar
	m.nodePane.SetSize(nodeWidth, available)
	m.progressPane.SetSize(m.width-nodeWidth, available)
	m.updateFocusStates()
}

func (m *Model) updateFocusStates() {
	m.nodePane.SetFocused(m.focusedPane == PaneNodes)
	m.progressPane.SetFocused(m.focusedPane == PaneProgress)
}
