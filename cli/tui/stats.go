package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/tractography/cli/reader"
)

// StatsModel is a Bubble Tea model for stats views.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "stats_runs":
		content = m.renderStatsRuns()
	case "stats_metrics":
		content = m.renderStatsMetrics()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatsModel) renderStatsRuns() string {
	data, ok := m.data.(*reader.RunStats)
	if !ok {
		return "Invalid data type for stats_runs"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Run Statistics"))
	b.WriteString("\n\n")

	boxes := []string{
		m.renderStatBox("Total", int64(data.Total), highlightColor),
		m.renderStatBox("Succeeded", int64(data.Succeeded), successColor),
		m.renderStatBox("Failed", int64(data.Failed), errorColor),
		m.renderStatBox("Artifacts", data.Artifacts, primaryColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))

	outcomes := make([]string, 0, len(data.ByOutcome))
	for o := range data.ByOutcome {
		outcomes = append(outcomes, o)
	}
	slices.Sort(outcomes)
	if len(outcomes) > 0 {
		b.WriteString("\n\n")
	}
	for _, o := range outcomes {
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render(o+":"),
			StateStyle(o).Render(fmt.Sprintf("%d", data.ByOutcome[o]))))
	}

	return b.String()
}

func (m StatsModel) renderStatsMetrics() string {
	data, ok := m.data.(*reader.MetricsSnapshot)
	if !ok {
		return "Invalid data type for stats_metrics"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Metrics " + data.RunID))
	b.WriteString("\n")
	b.WriteString(participantTitle(data.Subject, data.Session))
	b.WriteString("\n\n")

	rows := []string{
		lipgloss.JoinHorizontal(lipgloss.Top,
			m.renderStatBox("Stages OK", data.StagesSucceeded, successColor),
			m.renderStatBox("Stages Failed", data.StagesFailed, errorColor),
			m.renderStatBox("Skipped", data.StagesSkipped, warningColor),
		),
		lipgloss.JoinHorizontal(lipgloss.Top,
			m.renderStatBox("Tool Launches", data.ToolLaunchSuccess, highlightColor),
			m.renderStatBox("Non-zero Exits", data.ToolNonZeroExit, errorColor),
			m.renderStatBox("Frozen Vertices", data.VerticesFrozen, warningColor),
		),
		lipgloss.JoinHorizontal(lipgloss.Top,
			m.renderStatBox("Archived", data.ArchiveWriteSuccess, successColor),
			m.renderStatBox("Archive Errors", data.ArchiveWriteFailure, errorColor),
			m.renderStatBox("KiB Archived", data.ArchiveBytes/1024, primaryColor),
		),
	}
	b.WriteString(lipgloss.JoinVertical(lipgloss.Left, rows...))
	return b.String()
}

func (m StatsModel) renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(viewType string, data any) error {
	model := NewStatsModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without full TUI (for fallback).
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
