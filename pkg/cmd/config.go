package cmd

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xlttj/ssmfwd/pkg/config"
)

func newConfigCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect ssmfwd settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective settings as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.LoadSettings(*cfgPath)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(settingsYAML(settings)); err != nil {
				return err
			}
			return enc.Close()
		},
	})
	return cmd
}

// settingsYAML renders durations the way they are written in config.yaml.
func settingsYAML(s config.Settings) map[string]any {
	return map[string]any{
		"data_dir": s.DataDir,
		"aws": map[string]any{
			"executable":   s.AWS.Executable,
			"bin_dir":      s.AWS.BinDir,
			"profile_env":  s.AWS.ProfileEnv,
			"stop_timeout": s.AWS.StopTimeout.String(),
		},
		"log": map[string]any{
			"file":  s.Log.File,
			"level": s.Log.Level,
		},
	}
}
