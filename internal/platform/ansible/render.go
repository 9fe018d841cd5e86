package ansible

import (
	"fmt"
	"maps"

	"gopkg.in/yaml.v3"

	"github.com/imamik/dropship/internal/modules"
	"github.com/imamik/dropship/internal/provisioning"
)

type inventoryFile struct {
	All inventoryAll `yaml:"all"`
}

type inventoryAll struct {
	Children map[string]inventoryGroup `yaml:"children"`
}

type inventoryGroup struct {
	Hosts map[string]map[string]any `yaml:"hosts"`
	Vars  map[string]any            `yaml:"vars,omitempty"`
}

type play struct {
	Name        string           `yaml:"name"`
	Hosts       string           `yaml:"hosts"`
	GatherFacts bool             `yaml:"gather_facts"`
	Tasks       []map[string]any `yaml:"tasks"`
}

// groupVars returns the connection settings and global variables of a group.
func groupVars(g *provisioning.InventoryGroup) map[string]any {
	vars := maps.Clone(g.GlobalVars)
	if vars == nil {
		vars = map[string]any{}
	}
	if g.ConnectionMethod != "" {
		vars["ansible_connection"] = g.ConnectionMethod
	}
	if g.Credentials.Username != "" {
		vars["ansible_user"] = g.Credentials.Username
	}
	if g.Credentials.Password != "" {
		vars["ansible_password"] = g.Credentials.Password
	}
	if g.Credentials.BecomeMethod != "" {
		vars["ansible_become"] = true
		vars["ansible_become_method"] = g.Credentials.BecomeMethod
		if g.Credentials.Password != "" {
			vars["ansible_become_password"] = g.Credentials.Password
		}
	}
	if g.Credentials.BecomeUser != "" {
		vars["ansible_become_user"] = g.Credentials.BecomeUser
	}

	switch g.ConnectionMethod {
	case modules.ConnectionWinRM:
		vars["ansible_winrm_transport"] = "ntlm"
		vars["ansible_winrm_server_cert_validation"] = "ignore"
	case modules.ConnectionNetworkCLI:
		vars["ansible_network_os"] = g.OSType
	case modules.ConnectionSSH:
		vars["ansible_ssh_common_args"] = "-o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null"
	}
	return vars
}

// RenderInventory renders inv as a YAML inventory.
func RenderInventory(inv *provisioning.Inventory) ([]byte, error) {
	file := inventoryFile{All: inventoryAll{Children: map[string]inventoryGroup{}}}
	for _, g := range inv.Groups {
		hosts := make(map[string]map[string]any, len(g.Hosts))
		for _, h := range g.Hosts {
			vars := maps.Clone(h.Vars)
			if vars == nil {
				vars = map[string]any{}
			}
			vars["ansible_host"] = h.ConnectAddress
			hosts[h.Name] = vars
		}
		file.All.Children[g.Name] = inventoryGroup{Hosts: hosts, Vars: groupVars(g)}
	}

	out, err := yaml.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("render inventory: %w", err)
	}
	return out, nil
}

// RenderPlaybook renders one play per group importing the task files of set.
// Groups without task files for set are left out.
func RenderPlaybook(inv *provisioning.Inventory, set modules.TaskSet) ([]byte, error) {
	plays := []play{}
	for _, g := range inv.Groups {
		files := g.TaskFiles[set]
		if len(files) == 0 || len(g.Hosts) == 0 {
			continue
		}
		p := play{
			Name:  fmt.Sprintf("%s %s", g.Module, set),
			Hosts: g.Name,
		}
		for _, f := range files {
			p.Tasks = append(p.Tasks, map[string]any{"ansible.builtin.import_tasks": f})
		}
		plays = append(plays, p)
	}
	if len(plays) == 0 {
		return nil, fmt.Errorf("render playbook: no group has %s tasks", set)
	}

	out, err := yaml.Marshal(plays)
	if err != nil {
		return nil, fmt.Errorf("render playbook: %w", err)
	}
	return out, nil
}
