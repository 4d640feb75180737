// Package cmd implements the ssmfwd command line.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xlttj/ssmfwd/pkg/config"
	"github.com/xlttj/ssmfwd/pkg/logging"
	"github.com/xlttj/ssmfwd/pkg/ui"
)

// NewRootCmd returns the ssmfwd command tree. Without a subcommand it runs
// the interactive UI.
func NewRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:   "ssmfwd",
		Short: "Manage AWS SSM port-forwarding tunnels",
		Long: `ssmfwd keeps a list of SSM port-forwarding tunnels and starts and stops
an aws ssm start-session process for each of them.

Run without a subcommand to open the interactive UI.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.LoadSettings(cfgPath)
			if err != nil {
				return err
			}
			// The terminal belongs to the UI, so logs go to the file.
			logger, closer, err := logging.OpenFile(settings.Log.File, settings.Log.Level)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx := cmd.Context()
			a := newApp(settings, logger)
			defer a.close(ctx)
			logger.Info("ui starting", "connections", a.store.Path())
			return ui.Run(ctx, a.manager)
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default is ~/.config/ssmfwd/config.yaml)")

	root.AddCommand(newListCmd(&cfgPath))
	root.AddCommand(newAddCmd(&cfgPath))
	root.AddCommand(newEditCmd(&cfgPath))
	root.AddCommand(newRemoveCmd(&cfgPath))
	root.AddCommand(newStartCmd(&cfgPath))
	root.AddCommand(newConfigCmd(&cfgPath))

	return root
}
