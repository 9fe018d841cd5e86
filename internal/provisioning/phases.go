package provisioning

import (
	"context"

	"github.com/imamik/dropship/internal/topology"
	"github.com/imamik/dropship/internal/util/async"
)

// RouterPhase bootstraps every router of the topology.
type RouterPhase struct {
	Routers []*topology.Host
	Lookup  topology.NetworkLookup
}

// Name implements Phase.
func (p *RouterPhase) Name() string { return PhaseRouters }

// Provision implements Phase.
func (p *RouterPhase) Provision(ctx *Context) error {
	if len(p.Routers) == 0 {
		ctx.Observer.Printf("[%s] no routers defined", PhaseRouters)
		return nil
	}
	return BootstrapRouters(ctx, p.Routers, p.Lookup)
}

// BootstrapPhase bootstraps the services and then the clients of each instance.
type BootstrapPhase struct {
	Instances []*topology.NetworkInstance
	Parallel  bool
}

// Name implements Phase.
func (p *BootstrapPhase) Name() string { return PhaseBootstrap }

// Provision implements Phase.
func (p *BootstrapPhase) Provision(ctx *Context) error {
	return perInstance(ctx, p.Instances, p.Parallel, func(c *Context, inst *topology.NetworkInstance) error {
		for _, g := range []topology.Group{topology.GroupServices, topology.GroupClients} {
			if err := BootstrapGroup(c, inst, g); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeployPhase deploys the services and then the clients of each instance.
type DeployPhase struct {
	Instances []*topology.NetworkInstance
	Parallel  bool
}

// Name implements Phase.
func (p *DeployPhase) Name() string { return PhaseDeploy }

// Provision implements Phase.
func (p *DeployPhase) Provision(ctx *Context) error {
	return perInstance(ctx, p.Instances, p.Parallel, func(c *Context, inst *topology.NetworkInstance) error {
		for _, g := range []topology.Group{topology.GroupServices, topology.GroupClients} {
			if err := DeployGroup(c, inst, g); err != nil {
				return err
			}
		}
		return nil
	})
}

// PostPhase applies the post modules of each instance.
type PostPhase struct {
	Instances []*topology.NetworkInstance
	Parallel  bool
}

// Name implements Phase.
func (p *PostPhase) Name() string { return PhasePost }

// Provision implements Phase.
func (p *PostPhase) Provision(ctx *Context) error {
	return perInstance(ctx, p.Instances, p.Parallel, RunPost)
}

func perInstance(ctx *Context, instances []*topology.NetworkInstance, parallel bool, fn func(*Context, *topology.NetworkInstance) error) error {
	tasks := make([]async.Task, 0, len(instances))
	for _, inst := range instances {
		tasks = append(tasks, async.Task{
			Name: inst.Name,
			Func: func(c context.Context) error {
				return fn(ctx.WithContext(c), inst)
			},
		})
	}
	return async.Run(ctx, tasks, parallel)
}
