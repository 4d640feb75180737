package ui

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/xlttj/ssmfwd/pkg/config"
	"github.com/xlttj/ssmfwd/pkg/health"
	"github.com/xlttj/ssmfwd/pkg/ssm"
	"github.com/xlttj/ssmfwd/pkg/tunnel"
)

// Model represents the state of the UI
type Model struct {
	uiState UIState

	// Core components
	manager *tunnel.Manager
	store   config.EntryStore
	width   int
	height  int

	// Central error message
	errorMsg string
	// Status/info message (non-error feedback)
	statusMsg string

	// Tunnel table and the identifiers of its rows, in order
	table  table.Model
	rowIDs []string
	views  []health.View

	// Filter state
	filterMode  bool
	filterInput textinput.Model

	// Add/edit form state
	form       [fieldCount]textinput.Model
	formFocus  formField
	editTarget string // Identifier being edited, empty when adding

	// Delete confirmation target
	confirmTarget string

	storeEvents   <-chan config.Event
	sessionEvents <-chan ssm.Event
	unsubscribe   []func()
}

// calculateColumnWidths returns column widths based on terminal width
func (m *Model) calculateColumnWidths() []table.Column {
	minWidths := map[string]int{
		ColName:       8,
		ColTarget:     19, // i-0123456789abcdef0
		ColProfile:    7,
		ColPortLocal:  5,
		ColPortRemote: 6,
		ColStatus:     9,
	}

	availableWidth := m.width - 10
	availableWidth = max(availableWidth, 60)

	totalMinWidth := 0
	for _, width := range minWidths {
		totalMinWidth += width
	}
	extraSpace := max(availableWidth-totalMinWidth, 0)

	finalWidths := make(map[string]int, len(minWidths))
	for col, minWidth := range minWidths {
		finalWidths[col] = minWidth
	}

	// Name and profile get most of the extra room
	remainingSpace := extraSpace
	for _, col := range []string{ColName, ColProfile, ColTarget, ColStatus} {
		if remainingSpace <= 0 {
			break
		}
		var extraForCol int
		switch col {
		case ColName:
			extraForCol = remainingSpace * 50 / 100
		case ColProfile:
			extraForCol = remainingSpace * 30 / 100
		default:
			extraForCol = remainingSpace * 10 / 100
		}
		finalWidths[col] += extraForCol
		remainingSpace -= extraForCol
	}

	return []table.Column{
		{Title: ColName, Width: finalWidths[ColName]},
		{Title: ColTarget, Width: finalWidths[ColTarget]},
		{Title: ColProfile, Width: finalWidths[ColProfile]},
		{Title: ColPortLocal, Width: finalWidths[ColPortLocal]},
		{Title: ColPortRemote, Width: finalWidths[ColPortRemote]},
		{Title: ColStatus, Width: finalWidths[ColStatus]},
	}
}

// NewModel creates the UI model for mgr. The store is loaded from Init.
func NewModel(mgr *tunnel.Manager) *Model {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color(ColorBorder)).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color(ColorSelectedFg)).
		Background(lipgloss.Color(ColorSelectedBg)).
		Bold(false)

	ti := textinput.New()
	ti.Placeholder = "Filter..."
	ti.CharLimit = FilterCharLimit
	ti.Width = 20

	m := &Model{
		uiState:     StateList,
		manager:     mgr,
		store:       mgr.Store(),
		width:       DefaultWidth,
		height:      DefaultHeight,
		filterInput: ti,
	}
	m.form = newFormInputs()

	m.table = table.New(
		table.WithColumns(m.calculateColumnWidths()),
		table.WithFocused(true),
		table.WithHeight(10),
		table.WithStyles(s),
	)

	storeEvents, cancelStore := m.store.Subscribe()
	sessionEvents, cancelSessions := mgr.Supervisor().Subscribe()
	m.storeEvents = storeEvents
	m.sessionEvents = sessionEvents
	m.unsubscribe = []func(){cancelStore, cancelSessions}

	m.refreshTable()
	return m
}

// Cleanup releases the notification subscriptions.
func (m *Model) Cleanup() {
	for _, cancel := range m.unsubscribe {
		cancel()
	}
	m.unsubscribe = nil
}

func (m *Model) Init() tea.Cmd {
	m.startLoad()
	return tea.Batch(waitForStoreEvent(m.storeEvents), waitForSessionEvent(m.sessionEvents))
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		tableHeight := max(m.height-ListViewOffset, MinTableHeight)
		m.table.SetHeight(tableHeight)
		m.table.SetColumns(m.calculateColumnWidths())
		m.filterInput.Width = max(m.width-4, 20)
		return m, nil

	case storeEventMsg:
		m.handleStoreEvent(msg.event)
		return m, waitForStoreEvent(m.storeEvents)

	case sessionEventMsg:
		m.handleSessionEvent(msg.event)
		return m, waitForSessionEvent(m.sessionEvents)

	case subscriptionClosedMsg:
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", ShortcutExit:
			return m, tea.Quit
		}

		switch m.uiState {
		case StateList:
			return m.updateList(msg)
		case StateForm:
			return m.updateForm(msg)
		case StateConfirm:
			return m.updateConfirm(msg)
		}
	}

	var cmd tea.Cmd
	if m.uiState == StateList {
		m.table, cmd = m.table.Update(msg)
	}
	return m, cmd
}

// Run shows the UI until the user quits or ctx is done.
func Run(ctx context.Context, mgr *tunnel.Manager) error {
	m := NewModel(mgr)
	defer m.Cleanup()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}

func waitForStoreEvent(ch <-chan config.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return subscriptionClosedMsg{}
		}
		return storeEventMsg{event: ev}
	}
}

func waitForSessionEvent(ch <-chan ssm.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return subscriptionClosedMsg{}
		}
		return sessionEventMsg{event: ev}
	}
}
