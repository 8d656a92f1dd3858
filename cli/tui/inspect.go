package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/tractography/cli/reader"
)

// InspectModel is a Bubble Tea model for inspect views.
type InspectModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	return InspectModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "inspect_run":
		content = m.renderInspectRun()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m InspectModel) renderInspectRun() string {
	data, ok := m.data.(*reader.InspectRunResponse)
	if !ok {
		return "Invalid data type for inspect_run"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Run " + data.RunID))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Outcome:"),
		StateStyle(data.Outcome).Render(data.Outcome)))

	for _, p := range data.Participants {
		b.WriteString("\n")
		b.WriteString(participantTitle(p.Subject, p.Session))
		b.WriteString("\n")

		rows := [][]string{
			{"Stages", strings.Join(p.Stages, ", ")},
			{"Artifacts", fmt.Sprintf("%d", p.Artifacts)},
			{"Started At", p.StartedAt},
			{"Duration", fmt.Sprintf("%dms", p.DurationMs)},
		}
		if p.FailedStage != "" {
			rows = append(rows, []string{"Failed Stage", p.FailedStage})
		}
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("Outcome:"),
			StateStyle(p.Outcome).Render(p.Outcome)))
		for _, row := range rows {
			b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(row[0]+":"), ValueStyle.Render(row[1])))
		}
		if p.Outcome != "success" && p.Message != "" {
			b.WriteString(ErrorStyle.Render(p.Message))
			b.WriteString("\n")
		}
		for _, f := range p.Files {
			b.WriteString(fmt.Sprintf("  • %s\n", ValueStyle.Render(f.Destination)))
		}
	}

	return BoxStyle.Render(b.String())
}

func participantTitle(subject, session string) string {
	title := "sub-" + subject
	if session != "" && session != "none" {
		title += " ses-" + session
	}
	return lipgloss.NewStyle().Bold(true).Foreground(highlightColor).Render(title)
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	model := NewInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders inspect data without full TUI (for fallback).
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
