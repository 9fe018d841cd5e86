// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/dropship/cmd/dropship/handlers"
)

// Root returns the root command for the dropship CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dropship",
		Short:         "Build virtual lab networks from network definitions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(Build())
	cmd.AddCommand(Validate())
	cmd.AddCommand(Status())
	cmd.AddCommand(History())
	cmd.AddCommand(Modules())
	cmd.AddCommand(Version())

	return cmd
}

// topologyFlags binds the flags shared by commands that read a topology.
func topologyFlags(cmd *cobra.Command, opts *handlers.TopologyOptions) {
	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", handlers.DefaultConfigFile, "Path to configuration file")
	cmd.Flags().StringVar(&opts.DefinitionPath, "defi", "", "Path to the network definition file")
	cmd.Flags().StringVar(&opts.InstancePath, "inst", "", "Path to the network instance file")
	_ = cmd.MarkFlagRequired("defi")
	_ = cmd.MarkFlagRequired("inst")
}
