// Package archive uploads a run's output directory to S3-compatible object
// storage.
//
// Objects are keyed "<prefix>/<run id>/<relative path>". The run lock and
// the hypervisor session cache never leave the machine.
package archive
