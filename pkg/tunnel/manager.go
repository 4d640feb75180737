// Package tunnel joins the entry store with the session supervisor.
package tunnel

import (
	"context"
	"errors"
	"fmt"

	"github.com/xlttj/ssmfwd/pkg/config"
	"github.com/xlttj/ssmfwd/pkg/ssm"

	"pkt.systems/pslog"
)

// Manager starts and stops sessions by entry identifier and keeps sessions
// consistent with edits and removals of their entries.
type Manager struct {
	store config.EntryStore
	sup   *ssm.Supervisor
	log   pslog.Logger
}

// NewManager wires store and sup together. Store snapshots take their status
// from sup from now on.
func NewManager(store config.EntryStore, sup *ssm.Supervisor, logger pslog.Logger) *Manager {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	store.SetStatusSource(sup)
	return &Manager{store: store, sup: sup, log: logger.With("component", "tunnel")}
}

// Store returns the entry store.
func (m *Manager) Store() config.EntryStore { return m.store }

// Supervisor returns the session supervisor.
func (m *Manager) Supervisor() *ssm.Supervisor { return m.sup }

// Start launches the session for identifier.
func (m *Manager) Start(identifier string) (*ssm.Handle, error) {
	e, err := m.lookup(identifier)
	if err != nil {
		return nil, err
	}
	m.log.Info("starting tunnel", "identifier", identifier, "name", e.Name())
	return m.sup.Start(identifier, ssm.SpecFromEntry(e))
}

// Stop stops the session for identifier, if any.
func (m *Manager) Stop(identifier string) error {
	if _, err := m.lookup(identifier); err != nil {
		return err
	}
	return m.sup.Stop(identifier)
}

// Toggle stops a running session and starts any other. It reports whether
// a session is running afterwards.
func (m *Manager) Toggle(identifier string) (bool, error) {
	e, err := m.lookup(identifier)
	if err != nil {
		return false, err
	}
	if e.Status == config.StatusRunning {
		return false, m.sup.Stop(identifier)
	}
	if _, err := m.sup.Start(identifier, ssm.SpecFromEntry(e)); err != nil {
		return false, err
	}
	return true, nil
}

// Remove stops the session of identifier and deletes the entry.
func (m *Manager) Remove(identifier string) error {
	if err := m.requireLoaded(); err != nil {
		return err
	}
	if err := m.sup.Stop(identifier); err != nil {
		m.log.Warn("stop before remove failed", "identifier", identifier, "err", err)
	}
	m.sup.Forget(identifier)
	return m.store.Remove(identifier)
}

// Edit updates an entry. A running session is stopped when the change
// affects its connection; the user restarts it.
func (m *Manager) Edit(identifier string, fields config.Fields) error {
	e, err := m.lookup(identifier)
	if err != nil {
		return err
	}
	// A failed write still leaves the edit in memory.
	err = m.store.Edit(identifier, fields)
	if err != nil && !errors.Is(err, config.ErrPersistenceWrite) {
		return err
	}
	if e.Status == config.StatusRunning && fields.ConnectionChanged(e) {
		m.log.Info("connection changed, stopping tunnel", "identifier", identifier)
		if stopErr := m.sup.Stop(identifier); stopErr != nil {
			return errors.Join(err, stopErr)
		}
	}
	return err
}

// Shutdown stops every session and waits for them to exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.log.Debug("shutting down tunnels", "running", m.sup.Running())
	return m.sup.StopAll(ctx)
}

func (m *Manager) lookup(identifier string) (config.Entry, error) {
	if err := m.requireLoaded(); err != nil {
		return config.Entry{}, err
	}
	e, ok := m.store.Get(identifier)
	if !ok {
		return config.Entry{}, fmt.Errorf("%w: '%s'", config.ErrNotFound, identifier)
	}
	return e, nil
}

func (m *Manager) requireLoaded() error {
	if st := m.store.State(); st.Phase != config.PhaseLoaded {
		return fmt.Errorf("%w: store is %s", config.ErrInvalidState, st.Phase)
	}
	return nil
}
