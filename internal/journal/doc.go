// Package journal records provisioning runs and their events in a SQLite
// database under the output directory, so past runs can be inspected with
// "dropship history".
package journal
