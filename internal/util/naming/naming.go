package naming

import (
	"fmt"
	"strings"
)

// Directory and file names under the output root.
const (
	RouterDir    = "sys_routers"
	RouterLedger = "router_bootstrap.state"
	BootstrapDir = "bootstrap"
	DeployDir    = "deploy"
	PostDir      = "post"
	PostLedger   = "post.state"
	LockFile     = ".dropship.lock"
	SessionFile  = ".session.json"
	JournalFile  = "journal.db"
)

// VMDisplayName returns the hypervisor display name for a host.
// Runs of characters outside [a-z0-9] become a single '-', since
// hypervisors generally require DNS-safe VM names.
func VMDisplayName(prefix, hostname string) string {
	raw := strings.ToLower(prefix + hostname)
	var b strings.Builder
	sep := false
	for _, r := range raw {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
			sep = false
			continue
		}
		if !sep {
			b.WriteByte('-')
			sep = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// GroupLedger returns the ledger file name of a host group.
func GroupLedger(group string) string {
	return fmt.Sprintf("%s.state", group)
}

// ModuleDir returns the staging directory name for a module's task files.
func ModuleDir(module string) string {
	return "mod_" + strings.ReplaceAll(module, ".", "_")
}

// InventoryGroup returns the inventory group name for a module.
// Inventory group names may not contain dots or dashes.
func InventoryGroup(prefix, module string) string {
	name := prefix + module
	name = strings.ReplaceAll(name, ".", "_")
	return strings.ReplaceAll(name, "-", "_")
}

// InventoryHost returns the inventory host alias for a host.
func InventoryHost(prefix, hostname string) string {
	return prefix + hostname
}
