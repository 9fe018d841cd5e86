// Package prerequisites checks that the external tools a build shells out
// to are installed on the commander.
package prerequisites

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/imamik/dropship/internal/config"
)

// Tool represents a client tool that may be required.
type Tool struct {
	// Name is the binary name to look for in PATH.
	Name string

	// Required indicates if this tool is mandatory.
	Required bool

	// Description explains what the tool is used for.
	Description string

	// InstallURL provides a URL for installation instructions.
	InstallURL string
}

// ForConfig returns the tools a build with cfg needs. ansible-playbook is
// always required; dnsmasq only when dropship manages the bootstrap DHCP.
func ForConfig(cfg *config.Config) []Tool {
	tools := []Tool{{
		Name:        cfg.Ansible.Binary,
		Required:    true,
		Description: "Required for pushing bootstrap, deploy and post task sets",
		InstallURL:  "https://docs.ansible.com/ansible/latest/installation_guide/",
	}}
	if cfg.Bootstrap.ManageDHCP {
		tools = append(tools, Tool{
			Name:        "dnsmasq",
			Required:    true,
			Description: "Required for serving DHCP on the bootstrap switch",
			InstallURL:  "https://thekelleys.org.uk/dnsmasq/doc.html",
		})
	}
	return tools
}

// CheckResult contains the result of checking a single tool.
type CheckResult struct {
	Tool    Tool
	Found   bool
	Path    string
	Version string
}

// CheckResults contains the results of checking multiple tools.
type CheckResults struct {
	Results []CheckResult
	Missing []Tool
}

// HasErrors returns true if any required tools are missing.
func (r *CheckResults) HasErrors() bool {
	for _, tool := range r.Missing {
		if tool.Required {
			return true
		}
	}
	return false
}

// Error returns an error if any required tools are missing.
func (r *CheckResults) Error() error {
	var missing []string
	for _, tool := range r.Missing {
		if tool.Required {
			missing = append(missing, fmt.Sprintf("%s (%s)", tool.Name, tool.InstallURL))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
}

// Check verifies that the specified tools are available.
func Check(tools []Tool) *CheckResults {
	results := &CheckResults{}

	for _, tool := range tools {
		result := CheckResult{Tool: tool}

		path, err := exec.LookPath(tool.Name)
		if err == nil {
			result.Found = true
			result.Path = path
			result.Version = getToolVersion(path)
		} else {
			results.Missing = append(results.Missing, tool)
		}

		results.Results = append(results.Results, result)
	}

	return results
}

// CheckConfig checks the tools returned by ForConfig.
func CheckConfig(cfg *config.Config) *CheckResults {
	return Check(ForConfig(cfg))
}

// getToolVersion returns the first line of "<tool> --version", or "" when
// the tool does not answer.
func getToolVersion(path string) string {
	// #nosec G204 - path was resolved by exec.LookPath
	output, err := exec.Command(path, "--version").Output()
	if err != nil {
		return ""
	}
	first, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(first)
}
