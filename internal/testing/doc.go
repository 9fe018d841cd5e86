// Package testing provides fakes, builders, and fixtures for provisioning tests.
//
// This package centralizes common testing patterns to avoid duplication across test files:
//   - FakeProvider: in-memory hypervisor recording every call
//   - FakePusher: configuration tool double recording every push
//   - MockAddressSource: testify mock of addressing.AddressSource
//   - ConfigBuilder: fluent builder for test configurations
//   - Lab: a module tree, registry and instances rooted in t.TempDir()
//
// Usage:
//
//	lab := testing.NewLab(t)
//	inst := lab.Instance(t, "corp1", "vmbr10", "7")
//	ctx := lab.Context(t)
//	err := provisioning.BootstrapGroup(ctx, inst, topology.GroupServices)
package testing
