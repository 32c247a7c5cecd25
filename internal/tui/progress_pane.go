package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/architectagent/architect/internal/events"
)

// ProgressPaneModel shows run-level counts and the final outcome.
type ProgressPaneModel struct {
	total    int
	resolved int
	running  int
	failed   int
	pending  int
	finished *events.RunFinishedEvent
	width    int
	height   int
	focused  bool
}

// NewProgressPaneModel creates a progress pane.
func NewProgressPaneModel() ProgressPaneModel {
	return ProgressPaneModel{}
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case events.RunProgressEvent:
		m.total = msg.Total
		m.resolved = msg.Resolved
		m.running = msg.Running
		m.failed = msg.Failed
		m.pending = msg.Pending
	case events.RunFinishedEvent:
		m.finished = &msg
		m.running = 0
	}
	return m, nil
}

// Finished reports whether the run has ended.
func (m ProgressPaneModel) Finished() bool { return m.finished != nil }

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	title := StyleTitle.Render("Run Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Total:    %d\n", m.total)
	fmt.Fprintf(&b, "Resolved: %s\n", StyleStatusComplete.Render(fmt.Sprint(m.resolved)))
	fmt.Fprintf(&b, "Running:  %s\n", StyleStatusRunning.Render(fmt.Sprint(m.running)))
	fmt.Fprintf(&b, "Failed:   %s\n", StyleStatusFailed.Render(fmt.Sprint(m.failed)))
	fmt.Fprintf(&b, "Pending:  %s\n\n", StyleStatusPending.Render(fmt.Sprint(m.pending)))

	if m.total > 0 {
		barWidth := min(m.width-12, 40)
		resolvedWidth := m.resolved * barWidth / m.total
		failedWidth := m.failed * barWidth / m.total
		runningWidth := m.running * barWidth / m.total
		pendingWidth := barWidth - resolvedWidth - failedWidth - runningWidth

		bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, resolvedWidth)))
		bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
		bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
		bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))
		fmt.Fprintf(&b, "[%s]  %d/%d\n", bar, m.resolved, m.total)
	}

	if f := m.finished; f != nil {
		b.WriteString("\n")
		b.WriteString(RunStatusStyle(f.Status).Render("Run " + f.Status))
		b.WriteString("\n")
		if f.Err != nil {
			fmt.Fprintf(&b, "Error: %v\n", f.Err)
		}
		if len(f.Failed) > 0 {
			fmt.Fprintf(&b, "Failed: %s\n", strings.Join(f.Failed, ", "))
		}
		if len(f.Blocked) > 0 {
			fmt.Fprintf(&b, "Blocked: %s\n", strings.Join(f.Blocked, ", "))
		}
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.Width(m.width - 2).Height(m.height - 2).Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
