package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/justapithecus/tractography/cli/reader"
)

// ResolveModel is a scrollable view of resolved participants.
type ResolveModel struct {
	data     []reader.ResolvedParticipant
	viewport viewport.Model
	ready    bool
	quitting bool
}

// NewResolveModel creates a resolve model. data must be a
// []reader.ResolvedParticipant.
func NewResolveModel(data any) ResolveModel {
	participants, _ := data.([]reader.ResolvedParticipant)
	return ResolveModel{data: participants}
}

// Init implements tea.Model.
func (m ResolveModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ResolveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := max(msg.Height-2, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.viewport.SetContent(m.content())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m ResolveModel) View() string {
	if m.quitting {
		return ""
	}
	body := m.content()
	if m.ready {
		body = m.viewport.View()
	}
	return body + "\n" + HelpStyle.Render("↑/↓ to scroll, q or Ctrl+C to quit")
}

func (m ResolveModel) content() string {
	if m.data == nil {
		return "Invalid data type for resolve"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Resolved %d participant(s)", len(m.data))))
	b.WriteString("\n")
	for _, p := range m.data {
		b.WriteString(participantTitle(p.Subject, p.Session))
		b.WriteString("\n")
		for _, f := range p.Files {
			origin := "raw"
			if f.Derivative {
				origin = "derivative"
			}
			b.WriteString(fmt.Sprintf("%s %s %s\n",
				LabelStyle.Render(f.FileType),
				ValueStyle.Render(f.Path),
				HelpStyle.UnsetMarginTop().Render("("+origin+")")))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RunResolveTUI runs the resolve TUI.
func RunResolveTUI(data any) error {
	p := tea.NewProgram(NewResolveModel(data), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
