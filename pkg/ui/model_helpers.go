package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"

	"github.com/xlttj/ssmfwd/pkg/config"
	"github.com/xlttj/ssmfwd/pkg/health"
	"github.com/xlttj/ssmfwd/pkg/ssm"
)

// startLoad asks the store to load. A store that is already loading or
// loaded is left alone.
func (m *Model) startLoad() {
	if err := m.store.Load(); err != nil && !errors.Is(err, config.ErrInvalidState) {
		m.errorMsg = fmt.Sprintf("Cannot load tunnels: %v", err)
	}
}

// refreshTable rebuilds the rows from the current store snapshot.
func (m *Model) refreshTable() {
	views := health.ProjectAll(m.store.Entries())
	filterText := strings.ToLower(strings.TrimSpace(m.filterInput.Value()))

	rows := make([]table.Row, 0, len(views))
	m.rowIDs = m.rowIDs[:0]
	m.views = m.views[:0]
	for _, v := range views {
		if filterText != "" && !matchesFilter(v.Entry, filterText) {
			continue
		}
		rows = append(rows, table.Row{
			v.Entry.Name(),
			v.Entry.Identifier,
			v.Entry.Env,
			strconv.Itoa(v.Entry.LocalPort),
			strconv.Itoa(v.Entry.RemotePort),
			statusMark(v.Health),
		})
		m.rowIDs = append(m.rowIDs, v.Entry.Identifier)
		m.views = append(m.views, v)
	}
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
}

// matchesFilter searches the visible fields of e. filterText is lower case.
func matchesFilter(e config.Entry, filterText string) bool {
	for _, field := range []string{
		strings.ToLower(e.Name()),
		strings.ToLower(e.Identifier),
		strings.ToLower(e.Env),
		strconv.Itoa(e.LocalPort),
		strconv.Itoa(e.RemotePort),
	} {
		if strings.Contains(field, filterText) {
			return true
		}
	}
	return false
}

func statusMark(h health.Health) string {
	switch h {
	case health.Okay:
		return MarkRunning
	case health.Failed:
		return MarkError
	default:
		return MarkStopped
	}
}

// selectedView returns the view under the cursor.
func (m *Model) selectedView() (health.View, bool) {
	c := m.table.Cursor()
	if c < 0 || c >= len(m.views) {
		return health.View{}, false
	}
	return m.views[c], true
}

func (m *Model) handleStoreEvent(ev config.Event) {
	switch ev.Kind {
	case config.EventState:
		switch ev.State.Phase {
		case config.PhaseLoading:
			m.statusMsg = "Loading tunnels..."
		case config.PhaseLoaded:
			m.statusMsg = ""
			m.errorMsg = ""
		case config.PhaseFailed:
			m.statusMsg = ""
			m.errorMsg = fmt.Sprintf("Loading tunnels failed: %v", ev.State.Err)
		case config.PhaseIdle:
		}
	case config.EventSaveFailed:
		m.errorMsg = fmt.Sprintf("Saving tunnels failed: %v", ev.Err)
	case config.EventEntries:
	}
	m.refreshTable()
}

func (m *Model) handleSessionEvent(ev ssm.Event) {
	if ev.Status == config.StatusError && ev.Err != nil {
		name := ev.Identifier
		if e, ok := m.store.Get(ev.Identifier); ok {
			name = e.Name()
		}
		m.errorMsg = fmt.Sprintf("%s: %v", name, ev.Err)
	}
	m.refreshTable()
}

func newFormInputs() [fieldCount]textinput.Model {
	var inputs [fieldCount]textinput.Model
	for i := range inputs {
		ti := textinput.New()
		ti.Width = FormInputWidth
		ti.Prompt = ""
		inputs[i] = ti
	}
	inputs[fieldNickname].Placeholder = "optional"
	inputs[fieldIdentifier].Placeholder = "i-0123456789abcdef0"
	inputs[fieldEnv].Placeholder = "AWS profile"
	inputs[fieldLocalPort].CharLimit = 5
	inputs[fieldRemotePort].CharLimit = 5
	return inputs
}
