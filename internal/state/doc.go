// Package state persists per-group provisioning progress.
//
// A Ledger is an ordered set of records (hostname, vmid, mac, ip) stored as
// pipe-delimited lines, one per host:
//
//	router1|100|aa:bb:cc:dd:ee:ff|10.0.0.5
//
// A sibling "<path>.done" file marks the phase that owns the ledger as
// complete. Once a ledger is done the engine never clones or re-addresses
// the hosts it tracks.
//
// RunLock guards an output directory against concurrent runs.
package state
