package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/dropship/cmd/dropship/handlers"
)

// Validate returns the command that checks configuration and topology
// without touching the hypervisor.
func Validate() *cobra.Command {
	var opts handlers.TopologyOptions

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check configuration and network files",
		Long: `Parse the configuration, the definition and the instance file and run
every pre-flight check of a build. Nothing is created.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Validate(cmd.Context(), opts)
		},
	}

	topologyFlags(cmd, &opts)
	return cmd
}
