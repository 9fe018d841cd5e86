// Package provisioning is the phased provisioning engine.
//
// Hosts move through the group states NOT_STARTED, CLONING,
// NETWORK_ATTACHED, ADDRESS_RESOLVED, CONFIGURED, REWIRED and DONE. Each
// group's progress is persisted in a state.Ledger after every expensive
// step, so an interrupted run resumes from the last completed step and never
// clones or re-addresses a host twice.
//
// # Phases
//
// BootstrapRouters brings up every router in two configuration stages.
// BootstrapGroup clones, attaches, addresses, configures and re-wires the
// services or clients of one instance. DeployGroup applies role
// configuration on the final switch, harvesting DHCP addresses where needed.
// RunPost applies post modules to named hosts.
//
// # Capabilities
//
// Provider (hypervisor), ConfigPusher (configuration tool) and
// AddressResolver (DHCP leases) are supplied by the caller through Context.
package provisioning
