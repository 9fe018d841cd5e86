package modules

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/imamik/dropship/internal/topology"
)

// TaskSet names a group of configuration tasks applied in one push.
type TaskSet string

// Task sets.
const (
	TaskBootstrap   TaskSet = "bootstrap"
	TaskReboot      TaskSet = "reboot"
	TaskDeploy      TaskSet = "deploy"
	TaskPost        TaskSet = "post"
	TaskDHCPCollect TaskSet = "dhcp-collect"
)

// Connection methods understood by the configuration tool.
const (
	ConnectionSSH        = "ssh"
	ConnectionWinRM      = "winrm"
	ConnectionNetworkCLI = "network_cli"
)

// FetchSpec is a file downloaded into a module's files directory before post.
type FetchSpec struct {
	URL  string `yaml:"url"`
	Dest string `yaml:"dest"`
}

// PreHook runs before a module's post task set is pushed. dir is the
// module's staged directory in the output root.
type PreHook interface {
	BeforePost(ctx context.Context, d *Descriptor, dir string) error
}

// Descriptor describes one module.
type Descriptor struct {
	Name             string        `yaml:"name"`
	Description      string        `yaml:"description"`
	Image            string        `yaml:"image"`
	Role             topology.Role `yaml:"role"`
	ConnectionMethod string        `yaml:"connection_method"`
	OSType           string        `yaml:"os_type"`
	RequiredVars     []string      `yaml:"required_vars"`
	BecomeMethod     string        `yaml:"become_method"`
	BecomeUser       string        `yaml:"become_user"`

	// InterfaceNames maps interface index to the guest's device name.
	InterfaceNames []string `yaml:"interface_names"`

	// TaskFiles overrides the default "<set>.yml" file of a task set.
	TaskFiles map[TaskSet]string `yaml:"task_files"`

	BootstrapFiles []string    `yaml:"bootstrap_files"`
	DeployFiles    []string    `yaml:"deploy_files"`
	PostFiles      []string    `yaml:"post_files"`
	Fetch          []FetchSpec `yaml:"fetch"`

	// Dir is the module's source directory.
	Dir string `yaml:"-"`

	// Hook is an optional pre-post hook. Modules with Fetch entries get a
	// FetchHook when none is set.
	Hook PreHook `yaml:"-"`
}

// InterfaceName returns the guest device name of interface index i.
func (d *Descriptor) InterfaceName(i int) string {
	if i >= 0 && i < len(d.InterfaceNames) && d.InterfaceNames[i] != "" {
		return d.InterfaceNames[i]
	}
	return fmt.Sprintf("eth%d", i)
}

// TaskFile returns the source path of a task set's file.
func (d *Descriptor) TaskFile(set TaskSet) string {
	name := string(set) + ".yml"
	if f, ok := d.TaskFiles[set]; ok && f != "" {
		name = f
	}
	return filepath.Join(d.Dir, name)
}

// ExtraFiles returns the auxiliary files staged with a task set.
func (d *Descriptor) ExtraFiles(set TaskSet) []string {
	switch set {
	case TaskBootstrap:
		return d.BootstrapFiles
	case TaskDeploy:
		return d.DeployFiles
	case TaskPost:
		return d.PostFiles
	}
	return nil
}

// NormalizedName returns the name with dots replaced by underscores.
func (d *Descriptor) NormalizedName() string {
	return strings.ReplaceAll(d.Name, ".", "_")
}

// validate checks the fields every module must carry.
func (d *Descriptor) validate() error {
	if d.Name == "" {
		return fmt.Errorf("module without name")
	}
	if _, err := topology.ParseRole(string(d.Role)); err != nil {
		return fmt.Errorf("module %s: %w", d.Name, err)
	}
	if d.Role != topology.RolePost && d.Image == "" {
		return fmt.Errorf("module %s: image is required", d.Name)
	}
	switch d.ConnectionMethod {
	case ConnectionSSH, ConnectionWinRM, ConnectionNetworkCLI:
	default:
		return fmt.Errorf("module %s: unknown connection method %q", d.Name, d.ConnectionMethod)
	}
	return nil
}
