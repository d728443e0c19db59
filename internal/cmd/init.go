package cmd

import (
	"github.com/spf13/cobra"

	"github.com/promptstudio/promptstudio/internal/cli"
	"github.com/promptstudio/promptstudio/internal/config"
	"github.com/promptstudio/promptstudio/internal/wizard"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard to generate a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			defaults, _ := cmd.Flags().GetBool("defaults")
			envFile, _ := cmd.Flags().GetString("env-file")

			// Values from .env become the wizard's defaults.
			if err := config.LoadEnvFile(envFile); err != nil {
				return err
			}

			w := wizard.New(&cli.Prompter{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()})
			if defaults {
				return w.RunDefaults(output)
			}
			return w.Run(output)
		},
	}
	cmd.Flags().StringP("output", "o", "", "output config file path (default: "+wizard.DefaultOutputPath+")")
	cmd.Flags().Bool("defaults", false, "generate config non-interactively from env vars and defaults")
	return cmd
}
