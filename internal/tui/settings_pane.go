package tui

import (
	"fmt"
	"sort"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/architectagent/architect/internal/config"
)

// SettingsPaneModel manages the settings form overlay.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.Config
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Form field bindings (strings for Huh)
	saveTarget  string
	provider    string
	model       string
	maxTokens   string
	temperature string
	workers     string
	stepBudget  string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.Config, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
	}
	m.loadFields()
	m.buildForm()
	return m
}

func (m *SettingsPaneModel) loadFields() {
	cfg := m.config
	m.saveTarget = "global"
	m.provider = cfg.Provider
	m.model = cfg.Providers[cfg.Provider].Model
	m.maxTokens = strconv.Itoa(cfg.Generation.MaxTokens)
	m.temperature = strconv.FormatFloat(cfg.Generation.Temperature, 'g', -1, 64)
	m.workers = strconv.Itoa(cfg.Engine.Workers)
	m.stepBudget = strconv.Itoa(cfg.Engine.StepBudget)
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("enter a positive whole number")
	}
	return nil
}

func validTemperature(s string) error {
	t, err := strconv.ParseFloat(s, 64)
	if err != nil || t < 0 || t > 2 {
		return fmt.Errorf("enter a number between 0 and 2")
	}
	return nil
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	names := make([]string, 0, len(m.config.Providers))
	for name := range m.config.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	providers := make([]huh.Option[string], 0, len(names))
	for _, name := range names {
		providers = append(providers, huh.NewOption(fmt.Sprintf("%s (%s)", name, m.config.Providers[name].Type), name))
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Global ("+m.globalPath+")", "global"),
					huh.NewOption("Project ("+m.projectPath+")", "project"),
				).
				Value(&m.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Key("provider").
				Title("Reasoning Backend").
				Options(providers...).
				Value(&m.provider),

			huh.NewInput().
				Key("model").
				Title("Model").
				Description("Leave empty for the backend default").
				Value(&m.model),
		).Title("Backend"),

		huh.NewGroup(
			huh.NewInput().
				Key("maxTokens").
				Title("Max Tokens").
				Value(&m.maxTokens).
				Validate(positiveInt),

			huh.NewInput().
				Key("temperature").
				Title("Temperature").
				Value(&m.temperature).
				Validate(validTemperature),

			huh.NewInput().
				Key("workers").
				Title("Parallel Nodes").
				Value(&m.workers).
				Validate(positiveInt),

			huh.NewInput().
				Key("stepBudget").
				Title("Steps Per Node").
				Value(&m.stepBudget).
				Validate(positiveInt),
		).Title("Engine"),
	)
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		m.visible = false
		m.saved = false
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.applyFormToConfig()

		targetPath := m.globalPath
		if m.saveTarget == "project" {
			targetPath = m.projectPath
		}
		if err := config.Save(m.config, targetPath); err != nil {
			m.err = err
			m.saved = false
		} else {
			m.saved = true
			m.err = nil
			m.visible = false
		}
	}

	return m, cmd
}

// applyFormToConfig copies form field values back to the config struct.
// Fields were validated by the form.
func (m *SettingsPaneModel) applyFormToConfig() {
	cfg := m.config
	cfg.Provider = m.provider
	if p, ok := cfg.Providers[m.provider]; ok {
		p.Model = m.model
		cfg.Providers[m.provider] = p
	}
	if n, err := strconv.Atoi(m.maxTokens); err == nil {
		cfg.Generation.MaxTokens = n
	}
	if t, err := strconv.ParseFloat(m.temperature, 64); err == nil {
		cfg.Generation.Temperature = t
	}
	if n, err := strconv.Atoi(m.workers); err == nil {
		cfg.Engine.Workers = n
	}
	if n, err := strconv.Atoi(m.stepBudget); err == nil {
		cfg.Engine.StepBudget = n
	}
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string
	if m.err != nil {
		content = StyleStatusFailed.Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	} else {
		content = m.form.View()
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings (applies to new runs)")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(content))
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane. Showing it resets the form
// to the current config.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil
	if v {
		m.loadFields()
		m.buildForm()
		if m.width > 0 {
			m.form.WithWidth(m.width - 8).WithHeight(m.height - 8)
		}
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}

// Saved reports whether the last form submission was written.
func (m SettingsPaneModel) Saved() bool {
	return m.saved
}

// settingsApp runs the settings form on its own, outside a run view.
type settingsApp struct {
	pane SettingsPaneModel
}

func (a settingsApp) Init() tea.Cmd { return a.pane.Init() }

func (a settingsApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.pane.SetSize(msg.Width, msg.Height)
		return a, nil
	case tea.KeyMsg:
		if msg.String() == KeyCtrlC {
			a.pane.SetVisible(false)
			return a, tea.Quit
		}
	}
	var cmd tea.Cmd
	a.pane, cmd = a.pane.Update(msg)
	if !a.pane.IsVisible() || a.pane.err != nil {
		return a, tea.Quit
	}
	return a, cmd
}

func (a settingsApp) View() string { return a.pane.View() }

// EditSettings shows the settings form full screen and saves cfg to the
// chosen path on submit. It reports whether anything was saved.
func EditSettings(cfg *config.Config, globalPath, projectPath string) (bool, error) {
	pane := NewSettingsPaneModel(cfg, globalPath, projectPath)
	pane.SetVisible(true)
	final, err := tea.NewProgram(settingsApp{pane: pane}, tea.WithAltScreen()).Run()
	if err != nil {
		return false, err
	}
	app := final.(settingsApp)
	return app.pane.Saved(), app.pane.err
}
