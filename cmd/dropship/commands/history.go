package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/dropship/cmd/dropship/handlers"
)

// History returns the command that lists journaled runs.
func History() *cobra.Command {
	var opts handlers.HistoryOptions

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past builds from the run journal",
		Long: `List builds recorded in the run journal, newest first. With --run, print
the events of one build.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.History(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", handlers.DefaultConfigFile, "Path to configuration file")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "Show the events of this run")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "Maximum number of runs to list (0 for all)")
	return cmd
}
