// Package naming provides consistent names for VMs and on-disk artifacts.
//
// VM display names are derived deterministically from the instance prefix
// and hostname so that a resumed run addresses the same machines. Output
// directory and ledger file names follow a fixed layout under the output
// root; changing them breaks resumability of existing runs.
package naming
