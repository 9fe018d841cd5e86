// Package proxmox implements the hypervisor capability on Proxmox VE,
// wrapping the go-proxmox client.
//
// The client logs in with a username and password, obtaining a ticket and
// a CSRF prevention token. Tickets are cached in a session file so that
// consecutive runs within the ticket lifetime neither log in again nor need
// the password. Every asynchronous call (clone, start, config, snapshot)
// yields a task which the client records; WaitForOutstandingTasks polls
// them until they stop.
package proxmox
