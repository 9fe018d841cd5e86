package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/imamik/dropship/internal/util/naming"
)

// Defaults.
const (
	DefaultOutputDir   = "./out"
	DefaultModulesDir  = "./modules"
	DefaultLeasePath   = "/tmp/ds-dnsmasq.leases"
	DefaultAnsible     = "ansible-playbook"
	DefaultProxmoxPort = 8006
)

// LoadFile reads, defaults and validates a configuration file.
func LoadFile(path string) (*Config, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(cfg.OutputDir) {
		cfg.OutputDir = filepath.Join(filepath.Dir(path), cfg.OutputDir)
	}
	return cfg, nil
}

// Parse decodes, defaults and validates configuration YAML.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}
	cfg.ApplyDefaults()
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.ModulesDir == "" {
		c.ModulesDir = DefaultModulesDir
	}
	if c.Provider.Type == "" {
		c.Provider.Type = ProviderProxmox
	}
	if c.Provider.Proxmox.Realm == "" {
		c.Provider.Proxmox.Realm = "pam"
	}
	if c.Provider.HCloud.NetworkZone == "" {
		c.Provider.HCloud.NetworkZone = "eu-central"
	}
	if c.Leases.Path == "" {
		c.Leases.Path = DefaultLeasePath
	}
	if c.Leases.Remote != nil && c.Leases.Remote.Port == 0 {
		c.Leases.Remote.Port = 22
	}
	if c.Ansible.Binary == "" {
		c.Ansible.Binary = DefaultAnsible
	}
}

// JournalPath returns the journal database path.
func (c *Config) JournalPath() string {
	if c.Journal.Path != "" {
		return c.Journal.Path
	}
	return filepath.Join(c.OutputDir, naming.JournalFile)
}

// ApplyEnv overrides secrets from the environment.
//
// Environment Variables:
//   - DROPSHIP_USERNAME, DROPSHIP_PASSWORD: Proxmox login
//   - HCLOUD_TOKEN: Hetzner Cloud API token
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DROPSHIP_USERNAME"); v != "" {
		c.Provider.Proxmox.Username = v
	}
	if v := os.Getenv("DROPSHIP_PASSWORD"); v != "" {
		c.Provider.Proxmox.Password = v
	}
	if v := os.Getenv("HCLOUD_TOKEN"); v != "" {
		c.Provider.HCloud.Token = v
	}
}
