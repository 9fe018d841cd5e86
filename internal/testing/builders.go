package testing

import (
	"maps"

	"github.com/imamik/dropship/internal/config"
)

// ConfigBuilder provides a fluent interface for constructing test configs.
// Each method returns a new builder (immutable) for chaining.
type ConfigBuilder struct {
	cfg config.Config
}

// NewConfigBuilder creates a new ConfigBuilder with sensible defaults.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		cfg: config.Config{
			OutputDir: "out",
			Provider: config.ProviderConfig{
				Type: config.ProviderProxmox,
				Proxmox: config.ProxmoxConfig{
					URL:      "https://pve.lab:8006",
					Node:     "pve",
					Realm:    "pam",
					Username: "root",
				},
			},
			Bootstrap: config.BootstrapConfig{Switch: "vmbr0"},
			Credentials: map[string]config.Credential{
				config.DefaultCredentialKey: {Username: "admin", Password: "admin"},
			},
			Ansible: config.AnsibleConfig{Binary: "ansible-playbook"},
		},
	}
}

// WithOutputDir sets the output root.
func (b *ConfigBuilder) WithOutputDir(dir string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.OutputDir = dir
	return newBuilder
}

// WithModulesDir sets the module source root.
func (b *ConfigBuilder) WithModulesDir(dir string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.ModulesDir = dir
	return newBuilder
}

// WithBootstrapSwitch sets the bootstrap switch.
func (b *ConfigBuilder) WithBootstrapSwitch(id string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.Bootstrap.Switch = id
	return newBuilder
}

// WithExternalSwitch sets the switch EXTERNAL router interfaces join.
func (b *ConfigBuilder) WithExternalSwitch(id string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.ExternalSwitch = id
	return newBuilder
}

// WithSnapshotLabel enables snapshots after bootstrap.
func (b *ConfigBuilder) WithSnapshotLabel(label string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.SnapshotLabel = label
	return newBuilder
}

// WithImage maps a logical image name to a provider template.
func (b *ConfigBuilder) WithImage(name, ref string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.Images[name] = ref
	return newBuilder
}

// WithCredential sets the credential of an OS type.
func (b *ConfigBuilder) WithCredential(osType, username, password string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.Credentials[osType] = config.Credential{Username: username, Password: password}
	return newBuilder
}

// WithParallel enables per-instance parallelism.
func (b *ConfigBuilder) WithParallel(parallel bool) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.Parallel = parallel
	return newBuilder
}

// WithCommander attaches the commander VM NIC to the bootstrap switch.
func (b *ConfigBuilder) WithCommander(vmid, iface int) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.Commander = &config.CommanderConfig{VMID: vmid, Interface: iface}
	return newBuilder
}

// Build returns the constructed config.
func (b *ConfigBuilder) Build() *config.Config {
	cfg := b.clone().cfg
	return &cfg
}

func (b *ConfigBuilder) clone() *ConfigBuilder {
	cfg := b.cfg
	cfg.Images = maps.Clone(b.cfg.Images)
	if cfg.Images == nil {
		cfg.Images = map[string]string{}
	}
	cfg.Credentials = maps.Clone(b.cfg.Credentials)
	if cfg.Credentials == nil {
		cfg.Credentials = map[string]config.Credential{}
	}
	if b.cfg.Commander != nil {
		c := *b.cfg.Commander
		cfg.Commander = &c
	}
	return &ConfigBuilder{cfg: cfg}
}
