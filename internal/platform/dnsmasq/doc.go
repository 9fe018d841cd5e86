// Package dnsmasq reads dnsmasq lease files and supervises a local dnsmasq
// process serving the bootstrap switch.
//
// Lease sources implement addressing.AddressSource. FileSource reads a local
// lease file; RemoteSource reads one over SSH, for setups where dnsmasq runs
// on the hypervisor. Both re-read the file on every lookup so that leases
// granted while a resolver is polling are picked up.
package dnsmasq
