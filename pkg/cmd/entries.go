package cmd

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/xlttj/ssmfwd/pkg/config"
)

func newListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tunnel definitions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			entries := a.store.Entries()
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				_, _ = fmt.Fprintf(out, "No tunnels defined in %s\n", a.store.Path())
				return nil
			}
			_, _ = fmt.Fprintln(out, entryTable(entries))
			return nil
		},
	}
}

// entryTable renders entries as a plain table.
func entryTable(entries []config.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Name(),
			e.Identifier,
			e.Env,
			strconv.Itoa(e.LocalPort),
			strconv.Itoa(e.RemotePort),
		})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NAME", "TARGET", "PROFILE", "LOCAL", "REMOTE").
		Rows(rows...).
		String()
}

func newAddCmd(cfgPath *string) *cobra.Command {
	var (
		nickname   string
		env        string
		localPort  int
		remotePort int
	)
	cmd := &cobra.Command{
		Use:   "add <instance-id>",
		Short: "Add a tunnel definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			e := config.NewEntry(args[0], env, localPort, remotePort).WithNickname(nickname)
			if err := a.store.Add(e); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added %s (localhost:%d -> %s:%d)\n", e.Name(), e.LocalPort, e.Identifier, e.RemotePort)
			return nil
		},
	}
	cmd.Flags().StringVarP(&nickname, "name", "n", "", "display name")
	cmd.Flags().StringVarP(&env, "env", "e", "", "credential profile used for the session")
	cmd.Flags().IntVarP(&localPort, "local", "l", 0, "local port")
	cmd.Flags().IntVarP(&remotePort, "remote", "r", 0, "remote port")
	_ = cmd.MarkFlagRequired("env")
	_ = cmd.MarkFlagRequired("local")
	_ = cmd.MarkFlagRequired("remote")
	return cmd
}

func newEditCmd(cfgPath *string) *cobra.Command {
	var (
		nickname   string
		env        string
		localPort  int
		remotePort int
	)
	cmd := &cobra.Command{
		Use:   "edit <instance-id>",
		Short: "Change a tunnel definition",
		Long: `Change the name, profile or ports of a tunnel. Only the given flags are
changed. An empty --name clears the display name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var fields config.Fields
			flags := cmd.Flags()
			if flags.Changed("name") {
				fields.Nickname = &nickname
			}
			if flags.Changed("env") {
				fields.Env = &env
			}
			if flags.Changed("local") {
				fields.LocalPort = &localPort
			}
			if flags.Changed("remote") {
				fields.RemotePort = &remotePort
			}
			if fields == (config.Fields{}) {
				return fmt.Errorf("nothing to change for '%s'", args[0])
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if err := a.manager.Edit(args[0], fields); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&nickname, "name", "n", "", "display name")
	cmd.Flags().StringVarP(&env, "env", "e", "", "credential profile used for the session")
	cmd.Flags().IntVarP(&localPort, "local", "l", 0, "local port")
	cmd.Flags().IntVarP(&remotePort, "remote", "r", 0, "remote port")
	return cmd
}

func newRemoveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <instance-id>...",
		Aliases: []string{"remove"},
		Short:   "Remove tunnel definitions",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			for _, id := range args {
				if _, ok := a.store.Get(id); !ok {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "No tunnel for %s\n", id)
					continue
				}
				if err := a.manager.Remove(id); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
			}
			return nil
		},
	}
}
