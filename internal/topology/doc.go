// Package topology models lab networks: definitions, their concrete
// instances, and the hosts, routers and interfaces they contain.
//
// A NetworkDefinition is the immutable template produced by the definition
// parser. NewInstance realizes it against a switch and a concrete CIDR range,
// substituting octet variables and computing network-wide variables. Hosts
// acquire VM ids, MAC addresses and connect addresses while provisioning runs;
// the instance is the unit of resumability and is never torn down here.
//
// Routers reference networks by name. The reserved name EXTERNAL denotes a
// link outside the managed topology and never resolves to an instance.
//
// The package performs no I/O.
package topology
