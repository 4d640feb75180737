package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/xlttj/ssmfwd/pkg/config"
)

// enterForm opens the form. A nil entry adds a new tunnel; otherwise the
// form edits e and its identifier is fixed.
func (m *Model) enterForm(e *config.Entry) tea.Cmd {
	m.form = newFormInputs()
	m.editTarget = ""
	m.formFocus = fieldNickname
	if e != nil {
		m.editTarget = e.Identifier
		if e.Nickname != nil {
			m.form[fieldNickname].SetValue(*e.Nickname)
		}
		m.form[fieldIdentifier].SetValue(e.Identifier)
		m.form[fieldEnv].SetValue(e.Env)
		m.form[fieldLocalPort].SetValue(strconv.Itoa(e.LocalPort))
		m.form[fieldRemotePort].SetValue(strconv.Itoa(e.RemotePort))
	}
	m.uiState = StateForm
	m.table.Blur()
	return m.form[m.formFocus].Focus()
}

func (m *Model) leaveForm() {
	m.form[m.formFocus].Blur()
	m.editTarget = ""
	m.uiState = StateList
	m.table.Focus()
}

// updateForm handles keys for StateForm
func (m *Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.leaveForm()
		return m, nil
	case "enter":
		return m.commitForm()
	case "tab", "down":
		return m, m.moveFocus(1)
	case "shift+tab", "up":
		return m, m.moveFocus(-1)
	}

	var cmd tea.Cmd
	m.form[m.formFocus], cmd = m.form[m.formFocus].Update(msg)
	return m, cmd
}

func (m *Model) moveFocus(delta int) tea.Cmd {
	m.form[m.formFocus].Blur()
	next := m.formFocus
	for {
		next = (next + formField(delta) + fieldCount) % fieldCount
		// The identifier cannot be edited
		if next != fieldIdentifier || m.editTarget == "" {
			break
		}
	}
	m.formFocus = next
	return m.form[next].Focus()
}

func (m *Model) commitForm() (tea.Model, tea.Cmd) {
	value := func(f formField) string { return strings.TrimSpace(m.form[f].Value()) }

	localPort, err := parsePort(fieldLabels[fieldLocalPort], value(fieldLocalPort))
	if err != nil {
		m.errorMsg = err.Error()
		return m, nil
	}
	remotePort, err := parsePort(fieldLabels[fieldRemotePort], value(fieldRemotePort))
	if err != nil {
		m.errorMsg = err.Error()
		return m, nil
	}
	nickname, env := value(fieldNickname), value(fieldEnv)

	if m.editTarget == "" {
		e := config.NewEntry(value(fieldIdentifier), env, localPort, remotePort).WithNickname(nickname)
		if err := m.store.Add(e); err != nil {
			if errors.Is(err, config.ErrPersistenceWrite) {
				return m.leaveFormUnsaved(err)
			}
			m.errorMsg = fmt.Sprintf("Cannot add tunnel: %v", err)
			return m, nil
		}
		m.statusMsg = fmt.Sprintf("Added %s", e.Name())
	} else {
		fields := config.Fields{Nickname: &nickname, Env: &env, LocalPort: &localPort, RemotePort: &remotePort}
		if err := m.manager.Edit(m.editTarget, fields); err != nil {
			if errors.Is(err, config.ErrPersistenceWrite) {
				return m.leaveFormUnsaved(err)
			}
			m.errorMsg = fmt.Sprintf("Cannot update %s: %v", m.editTarget, err)
			return m, nil
		}
		m.statusMsg = fmt.Sprintf("Updated %s", m.editTarget)
	}

	m.errorMsg = ""
	m.leaveForm()
	m.refreshTable()
	return m, nil
}

// leaveFormUnsaved closes the form after a change that is kept in memory
// but could not be written.
func (m *Model) leaveFormUnsaved(err error) (tea.Model, tea.Cmd) {
	m.leaveForm()
	m.statusMsg = ""
	m.errorMsg = fmt.Sprintf("Saving tunnels failed: %v", err)
	m.refreshTable()
	return m, nil
}

func parsePort(label, s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("%s cannot be empty", label)
	}
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", label)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%s must be between 1 and 65535", label)
	}
	return port, nil
}
