package ui

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xlttj/ssmfwd/pkg/config"
	"github.com/xlttj/ssmfwd/pkg/ssm"
	"github.com/xlttj/ssmfwd/pkg/tunnel"
)

func newTestModel(t *testing.T) (*Model, *config.Store) {
	t.Helper()
	dir := t.TempDir()
	store := config.NewStore(config.DefaultPath(dir), nil)
	sup := ssm.NewSupervisor(ssm.Options{Executable: filepath.Join(dir, "missing-aws"), ProfileEnv: "AWS_PROFILE"})
	t.Cleanup(sup.Close)
	m := NewModel(tunnel.NewManager(store, sup, nil))
	t.Cleanup(m.Cleanup)

	m.Init()
	_, err := store.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, config.PhaseLoaded, store.State().Phase)
	m.refreshTable()
	return m, store
}

func keys(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(m *Model, msgs ...tea.Msg) {
	for _, msg := range msgs {
		m.Update(msg)
	}
}

func TestAddThroughForm(t *testing.T) {
	m, store := newTestModel(t)

	send(m, keys("a"))
	require.Equal(t, StateForm, m.uiState)

	tab := tea.KeyMsg{Type: tea.KeyTab}
	send(m,
		keys("web"), tab,
		keys("i-0abc"), tab,
		keys("dev"), tab,
		keys("8080"), tab,
		keys("80"),
		tea.KeyMsg{Type: tea.KeyEnter},
	)

	assert.Equal(t, StateList, m.uiState)
	assert.Empty(t, m.errorMsg)
	e, ok := store.Get("i-0abc")
	require.True(t, ok)
	assert.Equal(t, "web", e.Name())
	assert.Equal(t, 8080, e.LocalPort)
	assert.Equal(t, 80, e.RemotePort)
	assert.Equal(t, []string{"i-0abc"}, m.rowIDs)
}

func TestFormRejectsBadPort(t *testing.T) {
	m, store := newTestModel(t)

	send(m, keys("a"))
	m.form[fieldIdentifier].SetValue("i-1")
	m.form[fieldEnv].SetValue("dev")
	m.form[fieldLocalPort].SetValue("70000")
	m.form[fieldRemotePort].SetValue("80")
	send(m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, StateForm, m.uiState)
	assert.Contains(t, m.errorMsg, "between 1 and 65535")
	assert.Zero(t, store.Len())

	send(m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, StateList, m.uiState)
}

func TestFormClosesWhenSaveFails(t *testing.T) {
	m, store := newTestModel(t)

	// A non-empty directory in place of the file makes the rename fail.
	require.NoError(t, os.Remove(store.Path()))
	require.NoError(t, os.MkdirAll(filepath.Join(store.Path(), "keep"), 0o700))

	send(m, keys("a"))
	m.form[fieldIdentifier].SetValue("i-1")
	m.form[fieldEnv].SetValue("dev")
	m.form[fieldLocalPort].SetValue("8080")
	m.form[fieldRemotePort].SetValue("80")
	send(m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, StateList, m.uiState)
	assert.Contains(t, m.errorMsg, "Saving tunnels failed")
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, []string{"i-1"}, m.rowIDs)

	send(m, keys("e"))
	require.Equal(t, StateForm, m.uiState)
	m.form[fieldLocalPort].SetValue("9090")
	send(m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, StateList, m.uiState)
	assert.Contains(t, m.errorMsg, "Saving tunnels failed")
	e, _ := store.Get("i-1")
	assert.Equal(t, 9090, e.LocalPort)
}

func TestEditFormSkipsIdentifier(t *testing.T) {
	m, store := newTestModel(t)
	require.NoError(t, store.Add(config.NewEntry("i-1", "dev", 1, 2)))
	m.refreshTable()

	send(m, keys("e"))
	require.Equal(t, StateForm, m.uiState)
	assert.Equal(t, "i-1", m.editTarget)

	send(m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, fieldEnv, m.formFocus)

	m.form[fieldLocalPort].SetValue("3000")
	send(m, tea.KeyMsg{Type: tea.KeyEnter})
	e, _ := store.Get("i-1")
	assert.Equal(t, 3000, e.LocalPort)
}

func TestToggleSpawnFailureShowsError(t *testing.T) {
	m, store := newTestModel(t)
	require.NoError(t, store.Add(config.NewEntry("i-1", "dev", 1, 2)))
	m.refreshTable()

	send(m, tea.KeyMsg{Type: tea.KeySpace})
	assert.Contains(t, m.errorMsg, "Cannot start i-1")
	require.Len(t, m.views, 1)
	assert.Equal(t, config.StatusError, m.views[0].Entry.Status)
	assert.Contains(t, m.View(), MarkError)
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	m, store := newTestModel(t)
	require.NoError(t, store.Add(config.NewEntry("i-1", "dev", 1, 2)))
	m.refreshTable()

	send(m, keys("d"), keys("n"))
	assert.Equal(t, 1, store.Len())

	send(m, keys("d"))
	assert.Equal(t, StateConfirm, m.uiState)
	send(m, keys("y"))
	assert.Zero(t, store.Len())
	assert.Empty(t, m.rowIDs)
}

func TestFilter(t *testing.T) {
	m, store := newTestModel(t)
	require.NoError(t, store.Add(config.NewEntry("i-1", "dev", 1, 2).WithNickname("web")))
	require.NoError(t, store.Add(config.NewEntry("i-2", "prod", 3, 4).WithNickname("db")))
	m.refreshTable()

	send(m, keys("/"), keys("pro"))
	assert.Equal(t, []string{"i-2"}, m.rowIDs)

	send(m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, []string{"i-1", "i-2"}, m.rowIDs)
}

func TestLoadFailureAndRetry(t *testing.T) {
	dir := t.TempDir()
	store := config.NewStore(config.DefaultPath(dir), nil)
	require.NoError(t, writeFile(store.Path(), "not json"))
	sup := ssm.NewSupervisor(ssm.Options{Executable: "aws", ProfileEnv: "AWS_PROFILE"})
	t.Cleanup(sup.Close)
	m := NewModel(tunnel.NewManager(store, sup, nil))
	t.Cleanup(m.Cleanup)

	m.Init()
	st, err := store.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, config.PhaseFailed, st.Phase)
	assert.Contains(t, m.View(), "Could not load tunnels")

	send(m, keys("a"))
	assert.Equal(t, StateList, m.uiState)
	assert.Contains(t, m.errorMsg, "Failed")

	require.NoError(t, writeFile(store.Path(), "[]"))
	send(m, keys("r"))
	require.Eventually(t, func() bool {
		return store.State().Phase == config.PhaseLoaded
	}, 5*time.Second, 10*time.Millisecond)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
