package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
)

// ErrInvalid is matched by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Validate checks the configuration for errors. Credentials that may be
// prompted for later are not required here.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return invalid("output_dir is required")
	}

	if err := c.validateProvider(); err != nil {
		return fmt.Errorf("provider validation failed: %w", err)
	}

	if err := c.validateBootstrap(); err != nil {
		return fmt.Errorf("bootstrap validation failed: %w", err)
	}

	if c.Commander != nil && c.Commander.VMID <= 0 {
		return invalid("commander.vmid must be positive")
	}

	if c.Archive != nil && c.Archive.Bucket == "" {
		return invalid("archive.bucket is required when archive is configured")
	}

	if r := c.Leases.Remote; r != nil && (r.Host == "" || r.User == "") {
		return invalid("leases.remote requires host and user")
	}
	return nil
}

func (c *Config) validateProvider() error {
	switch c.Provider.Type {
	case ProviderProxmox:
		p := c.Provider.Proxmox
		if p.URL == "" {
			return invalid("provider.proxmox.url is required")
		}
		u, err := url.Parse(p.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid("provider.proxmox.url %q is not an absolute URL", p.URL)
		}
		if p.Node == "" {
			return invalid("provider.proxmox.node is required")
		}
	case ProviderHCloud:
		if c.Provider.HCloud.Location == "" {
			return invalid("provider.hcloud.location is required")
		}
		if c.Provider.HCloud.ServerType == "" {
			return invalid("provider.hcloud.server_type is required")
		}
	default:
		return invalid("unknown provider type %q", c.Provider.Type)
	}
	return nil
}

func (c *Config) validateBootstrap() error {
	b := c.Bootstrap
	if b.Switch == "" {
		return invalid("bootstrap.switch is required")
	}
	if !b.ManageDHCP {
		return nil
	}
	if b.Interface == "" {
		return invalid("bootstrap.interface is required when manage_dhcp is set")
	}
	for name, v := range map[string]string{
		"gateway":     b.Gateway,
		"range_start": b.RangeStart,
		"range_end":   b.RangeEnd,
	} {
		if _, err := netip.ParseAddr(v); err != nil {
			return invalid("bootstrap.%s %q is not an IP address", name, v)
		}
	}
	start, _ := netip.ParseAddr(b.RangeStart)
	end, _ := netip.ParseAddr(b.RangeEnd)
	if end.Less(start) {
		return invalid("bootstrap.range_end precedes range_start")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
