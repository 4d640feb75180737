package ui

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/xlttj/ssmfwd/pkg/config"
	"github.com/xlttj/ssmfwd/pkg/ssm"
)

// updateList handles keys for StateList
func (m *Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	if m.filterMode {
		switch msg.String() {
		case "esc":
			m.filterMode = false
			m.filterInput.Blur()
			m.filterInput.SetValue("")
			m.refreshTable()
			m.table.Focus()
			return m, nil
		case "enter":
			// Keep the filter applied
			m.filterMode = false
			m.filterInput.Blur()
			m.table.Focus()
			return m, nil
		default:
			m.filterInput, cmd = m.filterInput.Update(msg)
			m.refreshTable()
			return m, cmd
		}
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "esc":
		if m.filterInput.Value() != "" {
			m.filterInput.SetValue("")
			m.refreshTable()
		}
		return m, nil
	case ShortcutFilter:
		m.clearMessages()
		m.filterMode = true
		m.filterInput.Focus()
		m.table.Blur()
		return m, nil
	case ShortcutRetry:
		if m.store.State().Phase == config.PhaseFailed {
			m.clearMessages()
			m.startLoad()
		}
		return m, nil
	case ShortcutToggle:
		m.clearMessages()
		return m.toggleSelected()
	case ShortcutAdd:
		m.clearMessages()
		if !m.requireLoaded("add") {
			return m, nil
		}
		return m, m.enterForm(nil)
	case ShortcutEdit:
		m.clearMessages()
		v, ok := m.selectedView()
		if !ok {
			return m, nil
		}
		return m, m.enterForm(&v.Entry)
	case ShortcutDelete:
		m.clearMessages()
		v, ok := m.selectedView()
		if !ok {
			return m, nil
		}
		m.confirmTarget = v.Entry.Identifier
		m.uiState = StateConfirm
		return m, nil
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) toggleSelected() (tea.Model, tea.Cmd) {
	v, ok := m.selectedView()
	if !ok {
		return m, nil
	}
	running, err := m.manager.Toggle(v.Entry.Identifier)
	switch {
	case errors.Is(err, ssm.ErrSpawn):
		m.errorMsg = fmt.Sprintf("Cannot start %s: %v", v.Entry.Name(), err)
	case err != nil:
		m.errorMsg = fmt.Sprintf("Error toggling %s: %v", v.Entry.Name(), err)
	case running:
		m.statusMsg = fmt.Sprintf("Started %s on localhost:%d", v.Entry.Name(), v.Entry.LocalPort)
	default:
		m.statusMsg = fmt.Sprintf("Stopped %s", v.Entry.Name())
	}
	m.refreshTable()
	return m, nil
}

// updateConfirm handles keys for StateConfirm
func (m *Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	target := m.confirmTarget
	m.confirmTarget = ""
	m.uiState = StateList
	if msg.String() != "y" && msg.String() != "Y" {
		return m, nil
	}
	if err := m.manager.Remove(target); err != nil {
		m.errorMsg = fmt.Sprintf("Error removing %s: %v", target, err)
	} else {
		m.statusMsg = fmt.Sprintf("Removed %s", target)
	}
	m.refreshTable()
	return m, nil
}

func (m *Model) requireLoaded(action string) bool {
	if st := m.store.State(); st.Phase != config.PhaseLoaded {
		m.errorMsg = fmt.Sprintf("Cannot %s while tunnels are %s", action, st.Phase)
		return false
	}
	return true
}

func (m *Model) clearMessages() {
	m.errorMsg = ""
	m.statusMsg = ""
}
