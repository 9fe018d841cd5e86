package orchestration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/imamik/dropship/internal/config"
	"github.com/imamik/dropship/internal/modules"
	"github.com/imamik/dropship/internal/provisioning"
	"github.com/imamik/dropship/internal/state"
	"github.com/imamik/dropship/internal/topology"
)

var (
	// ErrDuplicateInstance is returned when an instance name is added twice.
	ErrDuplicateInstance = errors.New("duplicate instance")

	// ErrPathEscapesOutput is returned for output paths outside the output root.
	ErrPathEscapesOutput = errors.New("path escapes output directory")
)

// PhaseDHCPStop names the step that stops the bootstrap DHCP server.
const PhaseDHCPStop = "dhcp-stop"

// DHCPServer is an optional capability serving leases on the bootstrap switch.
type DHCPServer interface {
	Start(ctx context.Context) error
	Stop() error
}

// Builder runs builds of a set of network instances.
type Builder struct {
	config   *config.Config
	provider provisioning.Provider
	registry *modules.Registry
	pusher   provisioning.ConfigPusher
	resolver provisioning.AddressResolver
	observer provisioning.Observer
	timeouts *config.Timeouts
	dhcp     DHCPServer

	instances []*topology.NetworkInstance
}

// Option configures a Builder.
type Option func(*Builder)

// WithObserver sets the observer of the build.
func WithObserver(o provisioning.Observer) Option {
	return func(b *Builder) { b.observer = o }
}

// WithTimeouts overrides timeouts loaded from the environment.
func WithTimeouts(t *config.Timeouts) Option {
	return func(b *Builder) { b.timeouts = t }
}

// WithDHCPServer runs srv for the duration of the router and bootstrap phases.
func WithDHCPServer(srv DHCPServer) Option {
	return func(b *Builder) { b.dhcp = srv }
}

// NewBuilder creates a builder.
func NewBuilder(
	cfg *config.Config,
	provider provisioning.Provider,
	registry *modules.Registry,
	pusher provisioning.ConfigPusher,
	resolver provisioning.AddressResolver,
	opts ...Option,
) *Builder {
	b := &Builder{
		config:   cfg,
		provider: provider,
		registry: registry,
		pusher:   pusher,
		resolver: resolver,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.observer == nil {
		b.observer = provisioning.NewConsoleObserver()
	}
	if b.timeouts == nil {
		b.timeouts = config.LoadTimeouts()
	}
	return b
}

// AddInstance registers an instance. Names must be unique and may not be EXTERNAL.
func (b *Builder) AddInstance(inst *topology.NetworkInstance) error {
	if inst.Name == topology.External {
		return fmt.Errorf("%w: %s", topology.ErrReservedName, inst.Name)
	}
	if _, ok := b.Lookup(inst.Name); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateInstance, inst.Name)
	}
	b.instances = append(b.instances, inst)
	return nil
}

// Instances returns the instances in insertion order.
func (b *Builder) Instances() []*topology.NetworkInstance {
	return b.instances
}

// Lookup returns an instance by name. It satisfies topology.NetworkLookup.
func (b *Builder) Lookup(name string) (*topology.NetworkInstance, bool) {
	for _, inst := range b.instances {
		if inst.Name == name {
			return inst, true
		}
	}
	return nil, false
}

// Routers returns the routers of every instance in order.
func (b *Builder) Routers() []*topology.Host {
	var out []*topology.Host
	for _, inst := range b.instances {
		out = append(out, inst.Routers()...)
	}
	return out
}

// EnsureOutputDir creates rel under the output root and returns its
// absolute path. It is idempotent.
func (b *Builder) EnsureOutputDir(rel string) (string, error) {
	root, err := filepath.Abs(b.config.OutputDir)
	if err != nil {
		return "", fmt.Errorf("resolve output directory: %w", err)
	}
	dir := filepath.Join(root, rel)
	r, err := filepath.Rel(root, dir)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapesOutput, rel)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

// Preflight validates the topology without side effects.
func (b *Builder) Preflight() error {
	if err := provisioning.CheckRouters(b.Routers(), b.Lookup, b.config.ExternalSwitch); err != nil {
		return err
	}
	for _, r := range b.Routers() {
		if _, err := b.registry.Get(r.Module); err != nil {
			return fmt.Errorf("%w: router %s: %v", provisioning.ErrConfiguration, r.Hostname, err)
		}
	}
	for _, inst := range b.instances {
		for _, h := range inst.Hosts() {
			d, err := b.registry.Get(h.Module)
			if err != nil {
				return fmt.Errorf("%w: host %s of %s: %v", provisioning.ErrConfiguration, h.Hostname, inst.Name, err)
			}
			if d.Role != h.Role {
				return fmt.Errorf("%w: host %s of %s: module %s has role %s", provisioning.ErrConfiguration, h.Hostname, inst.Name, d.Name, d.Role)
			}
		}
		if err := provisioning.ValidatePost(b.registry, inst); err != nil {
			return err
		}
	}
	return nil
}

// RunBuild builds every instance. It stops at the first failure and returns
// a *provisioning.PhaseError for failures inside a phase.
func (b *Builder) RunBuild(ctx context.Context) (err error) {
	root, err := b.EnsureOutputDir(".")
	if err != nil {
		return err
	}
	lock, err := state.AcquireRunLock(root)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()

	if err := b.Preflight(); err != nil {
		b.observer.Event(provisioning.Event{Type: provisioning.EventValidationError, Phase: "preflight", Message: err.Error()})
		return err
	}

	pctx := provisioning.NewContext(ctx, b.config, b.provider, b.pusher, b.resolver, b.registry)
	pctx.Timeouts = b.timeouts
	pctx.Observer = b.observer

	if err := b.prepareSwitches(pctx); err != nil {
		return err
	}

	stopDHCP := func() error { return nil }
	if b.dhcp != nil {
		if err := b.dhcp.Start(ctx); err != nil {
			return fmt.Errorf("start dhcp server: %w", err)
		}
		stopped := false
		stopDHCP = func() error {
			if stopped {
				return nil
			}
			stopped = true
			return b.dhcp.Stop()
		}
		defer func() { _ = stopDHCP() }()
	}

	parallel := b.config.Parallel
	phases := []provisioning.Phase{
		&provisioning.RouterPhase{Routers: b.Routers(), Lookup: b.Lookup},
		&provisioning.BootstrapPhase{Instances: b.instances, Parallel: parallel},
		provisioning.PhaseFunc{PhaseName: PhaseDHCPStop, Fn: func(*provisioning.Context) error { return stopDHCP() }},
		&provisioning.DeployPhase{Instances: b.instances, Parallel: parallel},
		&provisioning.PostPhase{Instances: b.instances, Parallel: parallel},
	}
	return provisioning.RunPhases(pctx, phases)
}

// prepareSwitches creates the instance and bootstrap switches and attaches
// the commander VM to the bootstrap switch.
func (b *Builder) prepareSwitches(ctx *provisioning.Context) error {
	switches := []string{b.config.Bootstrap.Switch}
	for _, inst := range b.instances {
		switches = append(switches, inst.SwitchID)
	}
	if b.config.ExternalSwitch != "" {
		switches = append(switches, b.config.ExternalSwitch)
	}

	seen := map[string]bool{}
	for _, id := range switches {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if err := b.provider.CreateSwitch(ctx, id); err != nil {
			return &provisioning.ProviderError{Op: "create switch " + id, Err: err}
		}
		provisioning.LogResourceCreated(b.observer, "switches", "switch", id)
	}

	if c := b.config.Commander; c != nil {
		if err := b.provider.SetInterface(ctx, c.VMID, c.Interface, b.config.Bootstrap.Switch); err != nil {
			return &provisioning.ProviderError{Op: "attach commander", VMID: c.VMID, Err: err}
		}
		provisioning.LogVM(b.observer, provisioning.EventVMAttached, "switches", "commander", c.VMID,
			fmt.Sprintf("net%d -> %s", c.Interface, b.config.Bootstrap.Switch))
	}
	return nil
}
