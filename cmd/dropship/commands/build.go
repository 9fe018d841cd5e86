package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/dropship/cmd/dropship/handlers"
)

// Build returns the command that provisions every network instance.
//
// Required flags:
//
//	--defi: network definition file
//	--inst: network instance file
//
// Environment variables:
//
//	DROPSHIP_USERNAME, DROPSHIP_PASSWORD: Proxmox login (prompted when unset)
//	HCLOUD_TOKEN: Hetzner Cloud API token (prompted when unset)
func Build() *cobra.Command {
	var opts handlers.BuildOptions

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the network instances",
		Long: `Build every network instance of an instance file.

Hosts are cloned from their module templates, attached to the bootstrap
switch, configured and finally moved onto their instance switch. Routers
are built first. Progress is persisted under the output directory, so an
interrupted build resumes where it stopped.

Examples:
  # Build the lab described by nets.def and lab.inst
  dropship build --defi nets.def --inst lab.inst

  # Build instances concurrently with JSON logs
  dropship build -c lab.yaml --defi nets.def --inst lab.inst --parallel --log-format json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Build(cmd.Context(), opts)
		},
	}

	topologyFlags(cmd, &opts.TopologyOptions)
	cmd.Flags().BoolVar(&opts.Parallel, "parallel", false, "Provision instances concurrently")
	cmd.Flags().StringVar(&opts.LogFormat, "log-format", handlers.LogFormatText, "Log format: text or json")
	cmd.Flags().BoolVar(&opts.TUI, "tui", false, "Show an interactive progress view")

	return cmd
}
