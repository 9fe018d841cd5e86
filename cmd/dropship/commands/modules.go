package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/dropship/cmd/dropship/handlers"
)

// Modules returns the command that lists the module registry.
func Modules() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List available host modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Modules(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", handlers.DefaultConfigFile, "Path to configuration file")
	return cmd
}
