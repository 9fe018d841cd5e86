// Package config defines the run configuration of dropship.
//
// [Config] is loaded from a YAML file (dropship.yaml) with [LoadFile] and
// describes the hypervisor provider, the bootstrap switch and DHCP range,
// template image mapping, guest credentials and the optional journal, metrics
// and archive sinks. Timing knobs come from the environment via
// [LoadTimeouts].
package config
