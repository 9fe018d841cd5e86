// Package handlers implements the business logic for CLI commands.
//
// This package contains handler functions that are called by command definitions
// in the commands package. Handlers are framework-agnostic and can be tested
// independently of the CLI framework.
package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/imamik/dropship/internal/archive"
	"github.com/imamik/dropship/internal/config"
	"github.com/imamik/dropship/internal/definition"
	"github.com/imamik/dropship/internal/modules"
	"github.com/imamik/dropship/internal/orchestration"
	"github.com/imamik/dropship/internal/platform/ansible"
	"github.com/imamik/dropship/internal/platform/dnsmasq"
	"github.com/imamik/dropship/internal/platform/hcloud"
	"github.com/imamik/dropship/internal/platform/proxmox"
	"github.com/imamik/dropship/internal/provisioning"
	"github.com/imamik/dropship/internal/ui/prompt"
	"github.com/imamik/dropship/internal/ui/tui"
	"github.com/imamik/dropship/internal/util/naming"
	"github.com/imamik/dropship/internal/util/prerequisites"
)

// DefaultConfigFile is the configuration file used when -c is not given.
const DefaultConfigFile = "dropship.yaml"

// TopologyOptions locate the configuration and the network files.
type TopologyOptions struct {
	ConfigPath     string
	DefinitionPath string
	InstancePath   string
}

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// loadConfigFile loads config from file.
	loadConfigFile = config.LoadFile

	// loadTopology parses the definition and instance files.
	loadTopology = func(defPath, instPath string, roles definition.RoleLookup) (*definition.Topology, error) {
		return definition.Load(defPath, instPath, roles)
	}

	// newProvider creates the hypervisor provider selected by the configuration.
	newProvider = defaultProvider

	// newLeaseSource creates the DHCP lease source.
	newLeaseSource = dnsmasq.NewSource

	// newPusher creates the configuration pusher.
	newPusher = func(cfg config.AnsibleConfig, out io.Writer) provisioning.ConfigPusher {
		return ansible.NewPusher(cfg, out)
	}

	// newDHCPServer creates the managed bootstrap DHCP server.
	newDHCPServer = func(cfg *config.Config) orchestration.DHCPServer {
		return dnsmasq.NewServer(cfg.Bootstrap, cfg.Leases.Path)
	}

	// newArchiveStore creates the object store for output archives.
	newArchiveStore = func(ctx context.Context, cfg *config.ArchiveConfig) (archive.ObjectStore, error) {
		return archive.NewS3Client(ctx, cfg)
	}

	// checkTools looks up the external tools the build shells out to.
	checkTools = prerequisites.CheckConfig

	// promptCredentials fills missing provider secrets interactively.
	promptCredentials = defaultPromptCredentials

	// runTUI runs a build under the interactive progress view.
	runTUI = tui.RunBuildTUI

	// newRunID returns the identifier of a new run.
	newRunID = func() string {
		return time.Now().UTC().Format("20060102T150405Z")
	}

	// stdout receives command output.
	stdout io.Writer = os.Stdout
)

func defaultProvider(cfg *config.Config, timeouts *config.Timeouts) (provisioning.Provider, error) {
	switch cfg.Provider.Type {
	case config.ProviderHCloud:
		return hcloud.NewProvider(cfg.Provider.HCloud, hcloud.WithTimeouts(timeouts))
	default:
		return proxmox.NewClient(cfg.Provider.Proxmox,
			proxmox.WithSessionFile(sessionPath(cfg)),
			proxmox.WithPollInterval(timeouts.TaskPollInterval))
	}
}

func sessionPath(cfg *config.Config) string {
	return filepath.Join(cfg.OutputDir, naming.SessionFile)
}

func defaultPromptCredentials(ctx context.Context, cfg *config.Config) error {
	switch cfg.Provider.Type {
	case config.ProviderHCloud:
		return prompt.Token(ctx, "Hetzner Cloud", &cfg.Provider.HCloud.Token)
	default:
		p := &cfg.Provider.Proxmox
		if proxmox.HasCachedSession(*p, sessionPath(cfg)) {
			return nil
		}
		return prompt.Credentials(ctx, "Proxmox VE "+p.URL, &p.Username, &p.Password)
	}
}

// workspace is everything loaded from the command line files.
type workspace struct {
	config   *config.Config
	registry *modules.Registry
	topology *definition.Topology
}

// loadWorkspace loads the configuration, the module registry and the topology.
func loadWorkspace(opts TopologyOptions) (*workspace, error) {
	cfg, err := loadConfigFile(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	registry, err := loadRegistry(cfg)
	if err != nil {
		return nil, err
	}

	topo, err := loadTopology(opts.DefinitionPath, opts.InstancePath, registry)
	if err != nil {
		return nil, err
	}
	return &workspace{config: cfg, registry: registry, topology: topo}, nil
}

// loadRegistry returns the built-in modules extended by the catalog directory.
func loadRegistry(cfg *config.Config) (*modules.Registry, error) {
	registry := modules.Builtin(cfg.ModulesDir)
	if cfg.CatalogDir != "" {
		if _, err := registry.LoadCatalog(cfg.CatalogDir); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// newBuilder registers every instance of the workspace with a builder.
func (w *workspace) newBuilder(provider provisioning.Provider, pusher provisioning.ConfigPusher, resolver provisioning.AddressResolver, opts ...orchestration.Option) (*orchestration.Builder, error) {
	b := orchestration.NewBuilder(w.config, provider, w.registry, pusher, resolver, opts...)
	for _, inst := range w.topology.Instances {
		if err := b.AddInstance(inst); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// instanceSummary lists the instance names of the workspace.
func (w *workspace) instanceSummary() string {
	names := make([]string, 0, len(w.topology.Instances))
	for _, inst := range w.topology.Instances {
		names = append(names, inst.Name)
	}
	return strings.Join(names, ",")
}

// printf writes to the handler output.
func printf(format string, args ...any) {
	_, _ = fmt.Fprintf(stdout, format, args...)
}
