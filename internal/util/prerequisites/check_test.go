package prerequisites

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/dropship/internal/config"
)

func TestForConfig(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Ansible: config.AnsibleConfig{Binary: "/opt/ansible/bin/ansible-playbook"}}

	tools := ForConfig(cfg)
	require.Len(t, tools, 1)
	assert.Equal(t, "/opt/ansible/bin/ansible-playbook", tools[0].Name)
	assert.True(t, tools[0].Required)

	cfg.Bootstrap.ManageDHCP = true
	tools = ForConfig(cfg)
	require.Len(t, tools, 2)
	assert.Equal(t, "dnsmasq", tools[1].Name)
}

func TestCheck(t *testing.T) {
	t.Parallel()

	var found string
	for _, name := range []string{"sh", "ls", "cat"} {
		if r := Check([]Tool{{Name: name}}); r.Results[0].Found {
			found = name
			break
		}
	}
	if found == "" {
		t.Skip("no common tools found in PATH")
	}

	results := Check([]Tool{{Name: found, Required: true}})
	require.Len(t, results.Results, 1)
	assert.True(t, results.Results[0].Found)
	assert.NotEmpty(t, results.Results[0].Path)
	assert.False(t, results.HasErrors())
	assert.NoError(t, results.Error())
}

func TestCheck_Missing(t *testing.T) {
	t.Parallel()
	results := Check([]Tool{
		{Name: "nonexistent-tool-xyz123", Required: true, InstallURL: "https://example.com"},
		{Name: "optional-tool-xyz123"},
	})

	assert.Len(t, results.Missing, 2)
	assert.True(t, results.HasErrors())
	err := results.Error()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonexistent-tool-xyz123 (https://example.com)")
	assert.NotContains(t, err.Error(), "optional-tool-xyz123")
}

func TestCheckResults_OptionalOnly(t *testing.T) {
	t.Parallel()
	results := &CheckResults{Missing: []Tool{{Name: "optional"}}}
	assert.False(t, results.HasErrors())
	assert.NoError(t, results.Error())
}
