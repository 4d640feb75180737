package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/xlttj/ssmfwd/pkg/config"
	"github.com/xlttj/ssmfwd/pkg/health"
)

// View renders the current model state
func (m *Model) View() string {
	switch m.uiState {
	case StateList:
		return m.viewList()
	case StateForm:
		return m.viewForm()
	case StateConfirm:
		return m.viewConfirm()
	}
	return "Unknown state"
}

// viewList renders the tunnel table
func (m *Model) viewList() string {
	title := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorTitle)).Bold(true).Render("SSM Tunnels")

	help := ActionList
	if m.width < NarrowWidth {
		help = ActionListNarrow
	}
	if m.store.State().Phase == config.PhaseFailed {
		help = ActionLoadFailed
	}
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelp))
	helpText := helpStyle.Render(help)

	var body string
	switch st := m.store.State(); st.Phase {
	case config.PhaseIdle, config.PhaseLoading:
		body = helpStyle.Render("Loading tunnels...")
	case config.PhaseFailed:
		body = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)).Render(fmt.Sprintf("Could not load tunnels: %v", st.Err))
	case config.PhaseLoaded:
		if m.store.Len() == 0 {
			body = helpStyle.Render("No tunnels yet. Press A to add one.")
		} else {
			body = lipgloss.PlaceHorizontal(m.width, lipgloss.Left, m.table.View())
		}
	}

	// The filter box keeps its place to avoid layout shift
	var filterView string
	switch {
	case m.filterMode:
		filterView = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)).
			Padding(0, 1).
			Render("Filter: " + m.filterInput.View())
	case m.filterInput.Value() != "":
		filterView = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color(ColorInactive)).
			Foreground(lipgloss.Color(ColorInactive)).
			Padding(0, 1).
			Render(fmt.Sprintf("Filter: %s (Press / to edit, Esc to clear)", m.filterInput.Value()))
	default:
		filterView = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)).
			Foreground(lipgloss.Color(ColorBorder)).
			Padding(0, 1).
			Render("Press / to filter...")
	}

	top := title
	if m.width >= NarrowWidth {
		if spacing := m.width - lipgloss.Width(title) - lipgloss.Width(helpText); spacing > 0 {
			top = lipgloss.JoinHorizontal(lipgloss.Left, title, strings.Repeat(" ", spacing), helpText)
		}
	}

	parts := []string{top, "", filterView, body}
	if v, ok := m.selectedView(); ok && m.store.State().Phase == config.PhaseLoaded {
		parts = append(parts, summaryStyle(v.Health).Render(v.Entry.Name()+": "+v.Summary))
	}
	if msg := m.messageText(); msg != "" {
		parts = append(parts, msg)
	}
	if m.width < NarrowWidth {
		parts = append(parts, helpText)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// viewForm renders the add/edit form
func (m *Model) viewForm() string {
	heading := "Add tunnel"
	if m.editTarget != "" {
		heading = "Edit " + m.editTarget
	}
	title := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorTitle)).Bold(true).Render(heading)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLabel)).Width(14)
	fixedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorInactive))

	lines := []string{title, ""}
	for f := formField(0); f < fieldCount; f++ {
		input := m.form[f].View()
		if f == fieldIdentifier && m.editTarget != "" {
			input = fixedStyle.Render(m.editTarget)
		}
		lines = append(lines, labelStyle.Render(fieldLabels[f]+":")+" "+input)
	}
	lines = append(lines, "")
	if msg := m.messageText(); msg != "" {
		lines = append(lines, msg)
	}
	lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelp)).Render(ActionForm))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// viewConfirm renders the delete confirmation
func (m *Model) viewConfirm() string {
	name := m.confirmTarget
	if e, ok := m.store.Get(m.confirmTarget); ok {
		name = e.Name()
		if e.Status == config.StatusRunning {
			name += " (running, will be stopped)"
		}
	}
	prompt := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)).Bold(true).Render("Delete " + name + "?")
	help := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelp)).Render(ActionConfirm)
	return lipgloss.JoinVertical(lipgloss.Left, prompt, "", help)
}

func (m *Model) messageText() string {
	if m.errorMsg != "" {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)).Render("ERROR: " + m.errorMsg)
	}
	if m.statusMsg != "" {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(ColorOkay)).Render(m.statusMsg)
	}
	return ""
}

func summaryStyle(h health.Health) lipgloss.Style {
	switch h {
	case health.Okay:
		return lipgloss.NewStyle().Foreground(lipgloss.Color(ColorOkay))
	case health.Failed:
		return lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelp))
	}
}
