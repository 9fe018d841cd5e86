package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	c := &Config{
		Provider: ProviderConfig{
			Type:    ProviderProxmox,
			Proxmox: ProxmoxConfig{URL: "https://pve:8006", Node: "pve"},
		},
		Bootstrap: BootstrapConfig{Switch: "vmbr99"},
	}
	c.ApplyDefaults()
	return c
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown provider", mutate: func(c *Config) { c.Provider.Type = "vmware" }, wantErr: "unknown provider"},
		{name: "proxmox url", mutate: func(c *Config) { c.Provider.Proxmox.URL = "pve" }, wantErr: "not an absolute URL"},
		{name: "proxmox node", mutate: func(c *Config) { c.Provider.Proxmox.Node = "" }, wantErr: "node is required"},
		{name: "hcloud location", mutate: func(c *Config) { c.Provider.Type = ProviderHCloud }, wantErr: "location is required"},
		{name: "bootstrap switch", mutate: func(c *Config) { c.Bootstrap.Switch = "" }, wantErr: "bootstrap.switch"},
		{
			name: "dhcp range order",
			mutate: func(c *Config) {
				c.Bootstrap = BootstrapConfig{
					Switch: "s", Interface: "ens19", ManageDHCP: true,
					Gateway: "10.0.0.1", RangeStart: "10.0.0.200", RangeEnd: "10.0.0.100",
				}
			},
			wantErr: "precedes",
		},
		{
			name:    "dhcp gateway",
			mutate:  func(c *Config) { c.Bootstrap = BootstrapConfig{Switch: "s", Interface: "i", ManageDHCP: true} },
			wantErr: "not an IP address",
		},
		{name: "commander", mutate: func(c *Config) { c.Commander = &CommanderConfig{} }, wantErr: "commander.vmid"},
		{name: "archive bucket", mutate: func(c *Config) { c.Archive = &ArchiveConfig{} }, wantErr: "archive.bucket"},
		{name: "lease remote", mutate: func(c *Config) { c.Leases.Remote = &SSHRemote{Host: "h"} }, wantErr: "leases.remote"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
