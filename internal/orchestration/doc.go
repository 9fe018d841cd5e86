// Package orchestration coordinates a complete build of a lab topology.
//
// The Builder owns the hypervisor provider, the module registry, the
// configuration pusher and the address resolver. It validates the topology,
// prepares switches, and then delegates to the phases in internal/provisioning.
//
// # Workflow
//
// RunBuild executes the following steps in order:
//  1. Lock - Exclusive run lock in the output directory
//  2. Preflight - Router wiring, offsets, modules and post variables
//  3. Switches - Instance switches and the bootstrap switch
//  4. Commander - Optional NIC of the commander VM on the bootstrap switch
//  5. Routers - Two-stage router bootstrap
//  6. Bootstrap - Services then clients of every instance
//  7. Deploy - Role configuration on the final switches
//  8. Post - Post modules against named hosts
//
// # Usage
//
//	b := orchestration.NewBuilder(cfg, provider, registry, pusher, resolver)
//	for _, inst := range topo.Instances {
//	    if err := b.AddInstance(inst); err != nil {
//	        return err
//	    }
//	}
//	err := b.RunBuild(ctx)
//
// Every phase records its progress in ledgers, so a failed build can be
// rerun and continues where it stopped.
package orchestration
