package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/dropship/cmd/dropship/handlers"
)

// Status returns the command that shows persisted build progress.
func Status() *cobra.Command {
	var opts handlers.TopologyOptions

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show build progress per instance and group",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Status(cmd.Context(), opts)
		},
	}

	topologyFlags(cmd, &opts)
	return cmd
}
