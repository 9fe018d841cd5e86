package config

// Provider types.
const (
	ProviderProxmox = "proxmox"
	ProviderHCloud  = "hcloud"
)

// DefaultCredentialKey is the credentials entry used when no entry matches
// a module's OS type.
const DefaultCredentialKey = "default"

// Config is the run configuration.
type Config struct {
	// OutputDir is the root of all persisted run state.
	OutputDir string `yaml:"output_dir"`

	// ModulesDir holds the task files of the built-in modules.
	ModulesDir string `yaml:"modules_dir"`

	// CatalogDir is an optional directory of module.yaml descriptors.
	CatalogDir string `yaml:"catalog_dir"`

	Provider  ProviderConfig   `yaml:"provider"`
	Bootstrap BootstrapConfig  `yaml:"bootstrap"`
	Commander *CommanderConfig `yaml:"commander"`

	// ExternalSwitch is the switch EXTERNAL router interfaces end up on.
	ExternalSwitch string `yaml:"external_switch"`

	// SnapshotLabel enables a snapshot of every host after bootstrap.
	SnapshotLabel string `yaml:"snapshot_label"`

	// Parallel runs per-instance phases concurrently.
	Parallel bool `yaml:"parallel"`

	// Images maps module image names to provider template references.
	Images map[string]string `yaml:"images"`

	// Credentials are keyed by module OS type.
	Credentials map[string]Credential `yaml:"credentials"`

	Leases  LeaseConfig    `yaml:"leases"`
	Ansible AnsibleConfig  `yaml:"ansible"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Journal JournalConfig  `yaml:"journal"`
	Archive *ArchiveConfig `yaml:"archive"`
}

// ProviderConfig selects and configures the hypervisor.
type ProviderConfig struct {
	Type    string        `yaml:"type"`
	Proxmox ProxmoxConfig `yaml:"proxmox"`
	HCloud  HCloudConfig  `yaml:"hcloud"`
}

// ProxmoxConfig configures the Proxmox VE provider. Username and password
// are normally supplied through the environment or a prompt.
type ProxmoxConfig struct {
	URL                string `yaml:"url"`
	Node               string `yaml:"node"`
	Realm              string `yaml:"realm"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	FullClone          bool   `yaml:"full_clone"`
	Pool               string `yaml:"pool"`
}

// HCloudConfig configures the Hetzner Cloud provider.
type HCloudConfig struct {
	Token       string            `yaml:"token"`
	Location    string            `yaml:"location"`
	ServerType  string            `yaml:"server_type"`
	NetworkZone string            `yaml:"network_zone"`
	SSHKeys     []string          `yaml:"ssh_keys"`
	Labels      map[string]string `yaml:"labels"`
}

// BootstrapConfig describes the temporary switch every VM boots on and the
// DHCP service that addresses it.
type BootstrapConfig struct {
	Switch string `yaml:"switch"`

	// Interface is the commander's host interface on the bootstrap switch.
	Interface  string `yaml:"interface"`
	Gateway    string `yaml:"gateway"`
	RangeStart string `yaml:"range_start"`
	RangeEnd   string `yaml:"range_end"`

	// ManageDHCP starts and stops a local dnsmasq around bootstrap.
	ManageDHCP bool `yaml:"manage_dhcp"`
}

// CommanderConfig identifies the VM running dropship so its NIC can be
// attached to the bootstrap switch.
type CommanderConfig struct {
	VMID      int `yaml:"vmid"`
	Interface int `yaml:"interface"`
}

// Credential is a guest login.
type Credential struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LeaseConfig locates the DHCP lease file of the bootstrap DHCP service.
type LeaseConfig struct {
	Path   string     `yaml:"path"`
	Remote *SSHRemote `yaml:"remote"`
}

// SSHRemote is a host reached over SSH.
type SSHRemote struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	KeyFile  string `yaml:"key_file"`
	Password string `yaml:"password"`
}

// AnsibleConfig configures the ansible-playbook invocation.
type AnsibleConfig struct {
	Binary    string   `yaml:"binary"`
	ExtraArgs []string `yaml:"extra_args"`
}

// MetricsConfig configures the status and metrics server.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// JournalConfig configures the SQLite run journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ArchiveConfig configures upload of the output directory to S3.
type ArchiveConfig struct {
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// ImageRef maps a module image name to the provider template reference.
// Unmapped names are passed through.
func (c *Config) ImageRef(image string) string {
	if ref, ok := c.Images[image]; ok && ref != "" {
		return ref
	}
	return image
}

// CredentialFor returns the credentials for an OS type, falling back to
// the default entry.
func (c *Config) CredentialFor(osType string) (Credential, bool) {
	if cred, ok := c.Credentials[osType]; ok {
		return cred, true
	}
	cred, ok := c.Credentials[DefaultCredentialKey]
	return cred, ok
}
