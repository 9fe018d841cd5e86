package provisioning

import (
	"context"

	"github.com/imamik/dropship/internal/config"
	"github.com/imamik/dropship/internal/modules"
)

// Context wraps all dependencies needed for a provisioning phase.
type Context struct {
	context.Context
	Config   *config.Config
	Timeouts *config.Timeouts
	Provider Provider
	Pusher   ConfigPusher
	Resolver AddressResolver
	Modules  *modules.Registry
	Observer Observer

	locks *VMLocks
}

// NewContext creates a new provisioning context with a console observer
// and timeouts from the environment.
func NewContext(
	ctx context.Context,
	cfg *config.Config,
	provider Provider,
	pusher ConfigPusher,
	resolver AddressResolver,
	registry *modules.Registry,
) *Context {
	return &Context{
		Context:  ctx,
		Config:   cfg,
		Timeouts: config.LoadTimeouts(),
		Provider: provider,
		Pusher:   pusher,
		Resolver: resolver,
		Modules:  registry,
		Observer: NewConsoleObserver(),
		locks:    NewVMLocks(),
	}
}

// WithContext returns a shallow copy bound to ctx. The copy shares the
// per-VM locks.
func (c *Context) WithContext(ctx context.Context) *Context {
	cp := *c
	cp.Context = ctx
	if cp.locks == nil {
		c.locks = NewVMLocks()
		cp.locks = c.locks
	}
	return &cp
}

// WithObserver returns a shallow copy logging to o.
func (c *Context) WithObserver(o Observer) *Context {
	cp := c.WithContext(c.Context)
	cp.Observer = o
	return cp
}

func (c *Context) vmLocks() *VMLocks {
	if c.locks == nil {
		c.locks = NewVMLocks()
	}
	return c.locks
}

// timeouts returns the configured timeouts, or the environment defaults
// when the context was built without them.
func (c *Context) timeouts() *config.Timeouts {
	if c.Timeouts == nil {
		return config.LoadTimeouts()
	}
	return c.Timeouts
}
