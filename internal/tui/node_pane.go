package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/architectagent/architect/internal/events"
	"github.com/architectagent/architect/internal/plan"
)

const nodeListWidth = 30

// NodeState is what the pane knows about one plan node.
type NodeState struct {
	ID       string
	Title    string
	Status   plan.Status
	Step     int
	Attempts int
	Log      []string
	Started  time.Time
	Elapsed  time.Duration
}

// NodePaneModel lists plan nodes and shows the selected node's log.
type NodePaneModel struct {
	nodes       map[string]*NodeState
	order       []string
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int
}

// NewNodePaneModel creates a pane seeded with the run's nodes in scheduling
// order. Nodes first seen in events are appended.
func NewNodePaneModel(seed []plan.Node) NodePaneModel {
	m := NodePaneModel{
		nodes:    make(map[string]*NodeState),
		viewport: viewport.New(0, 0),
	}
	for _, n := range seed {
		m.nodes[n.ID] = &NodeState{ID: n.ID, Title: n.Title, Status: n.Status, Step: n.Steps}
		m.order = append(m.order, n.ID)
	}
	m.updateViewportContent()
	return m
}

type tickMsg struct {
	tag int
}

func (m *NodePaneModel) node(id string) *NodeState {
	if n, ok := m.nodes[id]; ok {
		return n
	}
	n := &NodeState{ID: id, Status: plan.StatusPending}
	m.nodes[id] = n
	m.order = append(m.order, id)
	return n
}

func (m *NodePaneModel) logf(n *NodeState, at time.Time, format string, args ...any) {
	n.Log = append(n.Log, at.Format("15:04:05")+" "+fmt.Sprintf(format, args...))
}

// Update handles messages for the node pane.
func (m NodePaneModel) Update(msg tea.Msg) (NodePaneModel, tea.Cmd) {
	var cmd tea.Cmd
	var touched string

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.NodeStartedEvent:
		n := m.node(msg.Node)
		if msg.Title != "" {
			n.Title = msg.Title
		}
		n.Status = plan.StatusRunning
		n.Step = msg.Step
		n.Started = msg.Timestamp
		m.logf(n, msg.Timestamp, "step %d started", msg.Step)
		touched = msg.Node

	case events.NodeResolvedEvent:
		n := m.node(msg.Node)
		n.Status = plan.StatusResolved
		n.Attempts = msg.Attempts
		n.Elapsed = elapsed(n.Started, msg.Timestamp)
		m.logf(n, msg.Timestamp, "resolved at step %d after %d call attempts (%s)", msg.Step, msg.Attempts, n.Elapsed)
		touched = msg.Node

	case events.NodeFailedEvent:
		n := m.node(msg.Node)
		n.Status = plan.StatusFailed
		n.Attempts = msg.Attempts
		n.Elapsed = elapsed(n.Started, msg.Timestamp)
		if msg.Terminal {
			m.logf(n, msg.Timestamp, "failed for good at step %d: %v", msg.Step, msg.Err)
		} else {
			m.logf(n, msg.Timestamp, "step %d failed, retrying: %v", msg.Step, msg.Err)
		}
		touched = msg.Node

	case events.NodeRequeuedEvent:
		n := m.node(msg.Node)
		n.Status = plan.StatusPending
		m.logf(n, msg.Timestamp, "requeued")
		touched = msg.Node

	case tickMsg:
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	if touched != "" && touched == m.selectedID() {
		m.updateTag++
		tag := m.updateTag
		return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
			return tickMsg{tag: tag}
		})
	}
	return m, cmd
}

func elapsed(from, to time.Time) time.Duration {
	if from.IsZero() || to.Before(from) {
		return 0
	}
	return to.Sub(from).Round(time.Millisecond)
}

// View renders the node pane.
func (m NodePaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderList(nodeListWidth),
		lipgloss.NewStyle().
			Width(max(m.width-nodeListWidth-4, 0)).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.Width(m.width - 2).Height(m.height - 2).Render(content)
}

func (m NodePaneModel) renderList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Plan")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	}
	for i, id := range m.order {
		n := m.nodes[id]
		name := n.Title
		if name == "" {
			name = n.ID
		}
		if r := []rune(name); len(r) > width-4 {
			name = string(r[:width-7]) + "..."
		}
		line := fmt.Sprintf("%s %s", StatusIcon(n.Status), name)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().Width(width).Height(m.height - 2).Render(b.String())
}

// StatusIcon returns a styled indicator for a node status.
func StatusIcon(s plan.Status) string {
	switch s {
	case plan.StatusRunning:
		return StyleStatusRunning.Render("●")
	case plan.StatusResolved:
		return StyleStatusComplete.Render("✓")
	case plan.StatusFailed:
		return StyleStatusFailed.Render("✗")
	default:
		return StyleStatusPending.Render("○")
	}
}

func (m NodePaneModel) selectedID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return ""
}

// Selected returns the selected node, if any.
func (m NodePaneModel) Selected() (NodeState, bool) {
	n, ok := m.nodes[m.selectedID()]
	if !ok {
		return NodeState{}, false
	}
	return *n, true
}

func (m *NodePaneModel) updateViewportContent() {
	n, ok := m.nodes[m.selectedID()]
	if !ok {
		m.viewport.SetContent("Waiting for nodes...")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\nStatus: %s, step %d", n.Title, n.ID, n.Status, n.Step)
	if n.Attempts > 0 {
		fmt.Fprintf(&b, ", %d call attempts", n.Attempts)
	}
	b.WriteString("\n\n")
	b.WriteString(strings.Join(n.Log, "\n"))
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m *NodePaneModel) resizeViewport() {
	m.viewport.Width = max(m.width-nodeListWidth-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *NodePaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *NodePaneModel) SetFocused(focused bool) {
	m.focused = focused
}
