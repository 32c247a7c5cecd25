package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/architectagent/architect/internal/config"
	"github.com/architectagent/architect/internal/events"
	"github.com/architectagent/architect/internal/plan"
)

func seedNodes() []plan.Node {
	return []plan.Node{
		{ID: "a", Title: "Alpha", Status: plan.StatusResolved},
		{ID: "b", Title: "Beta", Status: plan.StatusPending},
	}
}

func TestNodePane_TracksEvents(t *testing.T) {
	now := time.Now()
	pane := NewNodePaneModel(seedNodes())

	steps := []any{
		events.NodeStartedEvent{Run: "r", Node: "b", Title: "Beta", Step: 1, Timestamp: now},
		events.NodeFailedEvent{Run: "r", Node: "b", Step: 1, Attempts: 3, Err: errors.New("overloaded"), Timestamp: now.Add(time.Second)},
		events.NodeStartedEvent{Run: "r", Node: "b", Step: 2, Timestamp: now.Add(2 * time.Second)},
		events.NodeResolvedEvent{Run: "r", Node: "b", Step: 2, Attempts: 1, Timestamp: now.Add(3 * time.Second)},
		events.NodeRequeuedEvent{Run: "r", Node: "c", Timestamp: now},
	}
	for _, msg := range steps {
		pane, _ = pane.Update(msg)
	}

	b := pane.nodes["b"]
	if b.Status != plan.StatusResolved || b.Step != 2 || b.Attempts != 1 {
		t.Errorf("b = %+v", *b)
	}
	if len(b.Log) != 4 || !strings.Contains(b.Log[1], "retrying: overloaded") {
		t.Errorf("b log = %q", b.Log)
	}
	if b.Elapsed != time.Second {
		t.Errorf("b elapsed = %s, want 1s", b.Elapsed)
	}
	if got := strings.Join(pane.order, ","); got != "a,b,c" {
		t.Errorf("order = %s, want a,b,c", got)
	}
	if pane.nodes["c"].Status != plan.StatusPending {
		t.Errorf("c status = %s", pane.nodes["c"].Status)
	}
}

func TestNodePane_Selection(t *testing.T) {
	pane := NewNodePaneModel(seedNodes())
	pane.SetFocused(true)

	pane, _ = pane.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	if n, ok := pane.Selected(); !ok || n.ID != "b" {
		t.Fatalf("selected = %+v, %v", n, ok)
	}
	pane, _ = pane.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	if n, _ := pane.Selected(); n.ID != "b" {
		t.Errorf("selection moved past the end: %s", n.ID)
	}
	pane, _ = pane.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")})
	if n, _ := pane.Selected(); n.ID != "a" {
		t.Errorf("selected = %s, want a", n.ID)
	}
}

func TestModel_FiltersOtherRuns(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := New(bus, Options{RunID: "mine", Nodes: seedNodes(), Config: config.DefaultConfig()})
	next, _ := m.Update(events.RunProgressEvent{Run: "other", Total: 9, Resolved: 9})
	next, _ = next.Update(events.RunProgressEvent{Run: "mine", Total: 2, Resolved: 1, Pending: 1})
	next, _ = next.Update(events.NodeStartedEvent{Run: "other", Node: "zz"})

	model := next.(Model)
	if model.progressPane.total != 2 || model.progressPane.resolved != 1 {
		t.Errorf("progress = %+v", model.progressPane)
	}
	if _, ok := model.nodePane.nodes["zz"]; ok {
		t.Error("node from another run was shown")
	}

	next, _ = model.Update(events.RunFinishedEvent{Run: "mine", Status: "resolved"})
	if !next.(Model).Finished() {
		t.Error("run finished event not applied")
	}
}

func TestModel_CancelOnce(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	calls := 0
	m := New(bus, Options{RunID: "r", Cancel: func() { calls++ }})
	var next tea.Model = m
	for range 2 {
		next, _ = next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	}
	if calls != 1 {
		t.Errorf("cancel called %d times, want 1", calls)
	}
}

func TestSettingsApply(t *testing.T) {
	cfg := config.DefaultConfig()
	pane := NewSettingsPaneModel(cfg, "/tmp/global.json", "/tmp/project.json")
	pane.provider = "openai"
	pane.model = "gpt-test"
	pane.maxTokens = "2048"
	pane.temperature = "0.7"
	pane.workers = "2"
	pane.stepBudget = "5"
	pane.applyFormToConfig()

	if cfg.Provider != "openai" || cfg.Providers["openai"].Model != "gpt-test" {
		t.Errorf("provider = %s model = %s", cfg.Provider, cfg.Providers["openai"].Model)
	}
	if cfg.Generation.MaxTokens != 2048 || cfg.Generation.Temperature != 0.7 {
		t.Errorf("generation = %+v", cfg.Generation)
	}
	if cfg.Engine.Workers != 2 || cfg.Engine.StepBudget != 5 {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if positiveInt("0") == nil || positiveInt("abc") == nil || positiveInt("3") != nil {
		t.Error("positiveInt validation")
	}
	if validTemperature("2.5") == nil || validTemperature("1.2") != nil {
		t.Error("temperature validation")
	}
}
