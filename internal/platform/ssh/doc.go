// Package ssh provides an SSH client for executing commands on remote servers.
//
// dropship uses it to read the lease file of a DHCP service that runs on
// another machine, typically the hypervisor itself. The client supports key
// and password authentication with configurable connection retries.
package ssh
