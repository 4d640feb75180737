package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xlttj/ssmfwd/pkg/config"
	"github.com/xlttj/ssmfwd/pkg/health"
	"github.com/xlttj/ssmfwd/pkg/ssm"
)

const shutdownTimeout = 10 * time.Second

func newStartCmd(cfgPath *string) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "start [instance-id]...",
		Short: "Run tunnels in the foreground until interrupted",
		Long: `Start the given tunnels, or every tunnel with --all, and keep them running
until the command is interrupted or all sessions have exited.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("give instance ids or --all")
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer func() {
				// ctx is already cancelled when interrupted.
				stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				a.close(stopCtx)
			}()

			ids := args
			if all {
				ids = ids[:0]
				for _, e := range a.store.Entries() {
					ids = append(ids, e.Identifier)
				}
			}
			return runForeground(ctx, cmd, a, ids)
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "start every tunnel")
	return cmd
}

// runForeground starts ids and blocks until ctx is done or every session
// has exited.
func runForeground(ctx context.Context, cmd *cobra.Command, a *app, ids []string) error {
	out := cmd.OutOrStdout()
	exits := make(chan ssm.ExitEvent, len(ids))
	a.sup.OnExit(func(ev ssm.ExitEvent) {
		select {
		case exits <- ev:
		default:
		}
	})

	running := 0
	var errs []error
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := a.manager.Start(id); err != nil {
			errs = append(errs, err)
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", id, err)
			continue
		}
		running++
		if e, ok := a.store.Get(id); ok {
			_, _ = fmt.Fprintf(out, "%s: %s\n", e.Name(), health.Project(e).Summary)
		}
	}
	if running == 0 {
		return errors.Join(errs...)
	}

	for running > 0 {
		select {
		case <-ctx.Done():
			_, _ = fmt.Fprintln(out, "Stopping tunnels")
			return errors.Join(errs...)
		case ev := <-exits:
			if ev.Reason != ssm.ExitAbnormal {
				continue
			}
			running--
			errs = append(errs, ev.Err)
			name := ev.Identifier
			if e, ok := a.store.Get(ev.Identifier); ok {
				name = e.Name()
				if e.Status == config.StatusError {
					_, _ = fmt.Fprintf(out, "%s: %s\n", name, health.Project(e).Summary)
					continue
				}
			}
			_, _ = fmt.Fprintf(out, "%s: %v\n", name, ev.Err)
		}
	}
	return errors.Join(errs...)
}
