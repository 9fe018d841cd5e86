// Package main is the entry point for the dropship CLI.
//
// dropship builds virtual lab networks on a hypervisor from a network
// definition file and an instance file: it clones every host from a
// template, addresses it over a temporary bootstrap switch, pushes its
// configuration with Ansible and moves it onto its final switch.
//
// Commands: build, validate, status, history, modules, version.
//
// For detailed usage information, run:
//
//	dropship --help
package main

import (
	"fmt"
	"os"

	"github.com/imamik/dropship/cmd/dropship/commands"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
