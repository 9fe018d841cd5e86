// Package hcloud implements the hypervisor capability on Hetzner Cloud.
//
// Servers stand in for VMs and private networks for switches. Hetzner
// servers have no numbered NICs, so the network attached at each interface
// index is recorded in a server label ("dropship.net<N>"). Interfaces that
// point at the same network share one attachment and one MAC address.
//
// Every mutating call returns a Hetzner action which the provider records;
// WaitForOutstandingTasks waits for all of them.
package hcloud
