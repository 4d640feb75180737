package cmd

import (
	"context"
	"fmt"

	"github.com/xlttj/ssmfwd/pkg/config"
	"github.com/xlttj/ssmfwd/pkg/ssm"
	"github.com/xlttj/ssmfwd/pkg/tunnel"

	"pkt.systems/pslog"
)

// app holds the components shared by every command.
type app struct {
	settings config.Settings
	store    *config.Store
	sup      *ssm.Supervisor
	manager  *tunnel.Manager
	log      pslog.Logger
}

// newApp builds the store, supervisor and manager from settings. The store
// is not loaded.
func newApp(settings config.Settings, logger pslog.Logger) *app {
	store := config.NewStore(settings.ConnectionsPath(), logger)
	sup := ssm.NewSupervisor(ssm.OptionsFromSettings(settings.AWS, logger))
	return &app{
		settings: settings,
		store:    store,
		sup:      sup,
		manager:  tunnel.NewManager(store, sup, logger),
		log:      logger,
	}
}

// openApp loads settings from cfgPath and waits for the store to load.
func openApp(ctx context.Context, cfgPath string) (*app, error) {
	settings, err := config.LoadSettings(cfgPath)
	if err != nil {
		return nil, err
	}
	a := newApp(settings, pslog.Ctx(ctx))
	if err := a.load(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) load(ctx context.Context) error {
	if err := a.store.Load(); err != nil {
		return err
	}
	st, err := a.store.Wait(ctx)
	if err != nil {
		return err
	}
	switch st.Phase {
	case config.PhaseLoaded:
		return nil
	case config.PhaseFailed:
		return st.Err
	default:
		return fmt.Errorf("%w: store is %s after load", config.ErrInvalidState, st.Phase)
	}
}

// close stops all sessions and releases the supervisor.
func (a *app) close(ctx context.Context) {
	if err := a.manager.Shutdown(ctx); err != nil {
		a.log.Warn("shutdown incomplete", "err", err)
	}
	a.sup.Close()
}
