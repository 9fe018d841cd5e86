package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/dropship/internal/addressing"
	"github.com/imamik/dropship/internal/archive"
	"github.com/imamik/dropship/internal/config"
	"github.com/imamik/dropship/internal/definition"
	"github.com/imamik/dropship/internal/journal"
	"github.com/imamik/dropship/internal/modules"
	"github.com/imamik/dropship/internal/orchestration"
	"github.com/imamik/dropship/internal/provisioning"
	dstesting "github.com/imamik/dropship/internal/testing"
	"github.com/imamik/dropship/internal/ui/prompt"
	"github.com/imamik/dropship/internal/util/prerequisites"
)

const testDefinition = `
NETWORK corp
RANGE 10.x.5.0/24
DOMAIN corp.lab administrator Secret1
HOST dhcp1 services.ubuntu_dhcp 10.x.5.3
HOST dc1 domain.ubuntu_dc_20_04 10
HOST ws2 clients.windows10_1909 20
`

const testInstances = `
NETINSTANCE corp1
INSTOF corp
SWITCH vmbr10
OCTET x 7
PREFIX lab1-
`

type env struct {
	root     string
	opts     TopologyOptions
	provider *dstesting.FakeProvider
	pusher   *dstesting.FakePusher
	out      *bytes.Buffer
}

// saveAndRestoreFactories restores every factory variable after the test.
func saveAndRestoreFactories(t *testing.T) {
	t.Helper()
	origLoadConfigFile := loadConfigFile
	origLoadTopology := loadTopology
	origNewProvider := newProvider
	origNewLeaseSource := newLeaseSource
	origNewPusher := newPusher
	origNewDHCPServer := newDHCPServer
	origNewArchiveStore := newArchiveStore
	origCheckTools := checkTools
	origPromptCredentials := promptCredentials
	origRunTUI := runTUI
	origNewRunID := newRunID
	origStdout := stdout

	t.Cleanup(func() {
		loadConfigFile = origLoadConfigFile
		loadTopology = origLoadTopology
		newProvider = origNewProvider
		newLeaseSource = origNewLeaseSource
		newPusher = origNewPusher
		newDHCPServer = origNewDHCPServer
		newArchiveStore = origNewArchiveStore
		checkTools = origCheckTools
		promptCredentials = origPromptCredentials
		runTUI = origRunTUI
		newRunID = origNewRunID
		stdout = origStdout
	})
}

// setupEnv writes a module tree, a configuration and the network files
// and points every factory at fakes.
func setupEnv(t *testing.T, extraConfig string) *env {
	t.Helper()
	saveAndRestoreFactories(t)
	t.Setenv("DROPSHIP_RETRY_INITIAL_DELAY", "1ms")
	t.Setenv("DROPSHIP_RESOLVE_INTERVAL", "1ms")
	t.Setenv("DROPSHIP_TASK_POLL_INTERVAL", "1ms")

	root := t.TempDir()
	modRoot := filepath.Join(root, "modules")
	for _, d := range modules.Builtin(modRoot).List() {
		dstesting.WriteModuleTree(t, d)
	}

	cfg := fmt.Sprintf(`output_dir: out
modules_dir: %s
provider:
  type: proxmox
  proxmox:
    url: https://pve.lab:8006
    node: pve
bootstrap:
  switch: vmbr0
credentials:
  default:
    username: admin
    password: admin
%s`, modRoot, extraConfig)

	e := &env{
		root: root,
		opts: TopologyOptions{
			ConfigPath:     filepath.Join(root, "dropship.yaml"),
			DefinitionPath: filepath.Join(root, "nets.def"),
			InstancePath:   filepath.Join(root, "lab.inst"),
		},
		provider: dstesting.NewFakeProvider(),
		pusher:   dstesting.NewFakePusher(),
		out:      &bytes.Buffer{},
	}
	dstesting.WriteFile(t, e.opts.ConfigPath, cfg)
	dstesting.WriteFile(t, e.opts.DefinitionPath, testDefinition)
	dstesting.WriteFile(t, e.opts.InstancePath, testInstances)

	newProvider = func(*config.Config, *config.Timeouts) (provisioning.Provider, error) { return e.provider, nil }
	newLeaseSource = func(config.LeaseConfig) (addressing.AddressSource, error) {
		return dstesting.NewSequentialLeases("192.168.122"), nil
	}
	newPusher = func(config.AnsibleConfig, io.Writer) provisioning.ConfigPusher { return e.pusher }
	checkTools = func(*config.Config) *prerequisites.CheckResults { return &prerequisites.CheckResults{} }
	promptCredentials = func(context.Context, *config.Config) error { return nil }
	newRunID = func() string { return "run-1" }
	stdout = e.out
	return e
}

func (e *env) buildOpts() BuildOptions {
	return BuildOptions{TopologyOptions: e.opts, LogFormat: LogFormatText}
}

func (e *env) outDir() string { return filepath.Join(e.root, "out") }

func TestBuild_Success(t *testing.T) {
	e := setupEnv(t, "journal:\n  enabled: true\n")

	require.NoError(t, Build(context.Background(), e.buildOpts()))

	assert.Contains(t, e.out.String(), "Build run-1 complete")
	assert.Equal(t, []string{"switch vmbr0", "switch vmbr10"}, e.provider.CallsWithPrefix("switch"))
	assert.FileExists(t, filepath.Join(e.outDir(), "corp1", "post", "post.state.done"))
	assert.NoFileExists(t, filepath.Join(e.outDir(), ".dropship.lock"))

	j, err := journal.Open(context.Background(), filepath.Join(e.outDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()
	runs, err := j.Runs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, journal.StatusSucceeded, runs[0].Status)
	assert.Equal(t, "corp1", runs[0].Summary)
	assert.Positive(t, runs[0].Events)
}

func TestBuild_ParallelFlagAndJSONLogs(t *testing.T) {
	e := setupEnv(t, "")
	var seen *config.Config
	newProvider = func(cfg *config.Config, _ *config.Timeouts) (provisioning.Provider, error) {
		seen = cfg
		return e.provider, nil
	}

	opts := e.buildOpts()
	opts.Parallel = true
	opts.LogFormat = LogFormatJSON
	require.NoError(t, Build(context.Background(), opts))

	require.NotNil(t, seen)
	assert.True(t, seen.Parallel)
	assert.Contains(t, e.out.String(), `"event":"phase.started"`)
	assert.Contains(t, e.out.String(), `"logger":"dropship"`)
}

func TestBuild_PhaseErrorIsJournaled(t *testing.T) {
	e := setupEnv(t, "journal:\n  enabled: true\n")
	e.pusher.ExitCodes["corp1_clients_bootstrap/bootstrap"] = 2

	err := Build(context.Background(), e.buildOpts())
	var pe *provisioning.PhaseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, provisioning.PhaseBootstrap, pe.Phase)
	assert.Equal(t, "corp1", pe.Instance)
	assert.NotContains(t, e.out.String(), "complete")

	j, err := journal.Open(context.Background(), filepath.Join(e.outDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()
	runs, err := j.Runs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, journal.StatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "bootstrap")
}

type memStore struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string][]byte
}

func (m *memStore) CreateBucket(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[bucket] = true
	return nil
}

func (m *memStore) PutObject(_ context.Context, bucket, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = data
	return nil
}

func (m *memStore) ListObjects(_ context.Context, bucket, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.objects {
		if strings.HasPrefix(k, bucket+"/"+prefix) {
			out = append(out, strings.TrimPrefix(k, bucket+"/"))
		}
	}
	return out, nil
}

func TestBuild_ArchivesOutput(t *testing.T) {
	e := setupEnv(t, "archive:\n  bucket: labs\n  prefix: dropship\n")
	store := &memStore{buckets: map[string]bool{}, objects: map[string][]byte{}}
	newArchiveStore = func(_ context.Context, cfg *config.ArchiveConfig) (archive.ObjectStore, error) {
		assert.Equal(t, "labs", cfg.Bucket)
		return store, nil
	}

	require.NoError(t, Build(context.Background(), e.buildOpts()))

	assert.True(t, store.buckets["labs"])
	assert.Contains(t, store.objects, "labs/dropship/run-1/corp1/post/post.state.done")
	assert.Contains(t, e.out.String(), "to s3://labs")
}

func TestBuild_ArchiveStoreFailure(t *testing.T) {
	e := setupEnv(t, "archive:\n  bucket: labs\n")
	newArchiveStore = func(context.Context, *config.ArchiveConfig) (archive.ObjectStore, error) {
		return nil, errors.New("no credentials")
	}

	err := Build(context.Background(), e.buildOpts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credentials")
}

func TestBuild_SetupErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(e *env, opts *BuildOptions)
		wantErr string
	}{
		{
			name:    "unknown log format",
			mutate:  func(_ *env, opts *BuildOptions) { opts.LogFormat = "xml" },
			wantErr: "unknown log format",
		},
		{
			name: "ansible missing",
			mutate: func(*env, *BuildOptions) {
				checkTools = func(*config.Config) *prerequisites.CheckResults {
					return &prerequisites.CheckResults{Missing: []prerequisites.Tool{{Name: "ansible-playbook", Required: true}}}
				}
			},
			wantErr: "missing required tools: ansible-playbook",
		},
		{
			name: "credential prompt fails",
			mutate: func(*env, *BuildOptions) {
				promptCredentials = func(context.Context, *config.Config) error { return errors.New("no tty") }
			},
			wantErr: "provider credentials: no tty",
		},
		{
			name: "provider fails",
			mutate: func(*env, *BuildOptions) {
				newProvider = func(*config.Config, *config.Timeouts) (provisioning.Provider, error) {
					return nil, errors.New("login refused")
				}
			},
			wantErr: "failed to create provider: login refused",
		},
		{
			name: "lease source fails",
			mutate: func(*env, *BuildOptions) {
				newLeaseSource = func(config.LeaseConfig) (addressing.AddressSource, error) {
					return nil, errors.New("bad key")
				}
			},
			wantErr: "failed to create lease source: bad key",
		},
		{
			name:    "missing config",
			mutate:  func(_ *env, opts *BuildOptions) { opts.ConfigPath = "/nonexistent/dropship.yaml" },
			wantErr: "failed to read config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setupEnv(t, "")
			opts := e.buildOpts()
			tt.mutate(e, &opts)

			err := Build(context.Background(), opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, e.provider.Calls)
		})
	}
}

func TestBuild_ManagedDHCP(t *testing.T) {
	e := setupEnv(t, "")
	cfg := strings.Replace(dstesting.ReadFile(t, e.opts.ConfigPath), "  switch: vmbr0\n", `  switch: vmbr0
  interface: eth1
  gateway: 10.99.0.1
  range_start: 10.99.0.100
  range_end: 10.99.0.200
  manage_dhcp: true
`, 1)
	dstesting.WriteFile(t, e.opts.ConfigPath, cfg)

	dhcp := &fakeDHCP{}
	newDHCPServer = func(cfg *config.Config) orchestration.DHCPServer {
		assert.Equal(t, "eth1", cfg.Bootstrap.Interface)
		return dhcp
	}

	require.NoError(t, Build(context.Background(), e.buildOpts()))
	assert.Equal(t, 1, dhcp.starts)
	assert.Equal(t, 1, dhcp.stops)
}

type fakeDHCP struct {
	starts, stops int
}

func (f *fakeDHCP) Start(context.Context) error { f.starts++; return nil }
func (f *fakeDHCP) Stop() error                 { f.stops++; return nil }

func TestBuild_TUI(t *testing.T) {
	e := setupEnv(t, "")
	rec := &dstesting.RecordingObserver{}
	var gotTitle string
	var gotPhases []string
	runTUI = func(ctx context.Context, title string, phases []string, build func(context.Context, provisioning.Observer) error) error {
		gotTitle, gotPhases = title, phases
		return build(ctx, rec)
	}

	opts := e.buildOpts()
	opts.TUI = true
	require.NoError(t, Build(context.Background(), opts))

	assert.Equal(t, "corp1", gotTitle)
	assert.Equal(t, []string{"routers", "bootstrap", "dhcp-stop", "deploy", "post"}, gotPhases)
	assert.Contains(t, rec.Types(), provisioning.EventPhaseCompleted)
}

func TestValidate(t *testing.T) {
	e := setupEnv(t, "")

	require.NoError(t, Validate(context.Background(), e.opts))
	assert.Equal(t, "OK: 1 definitions, 1 instances, 3 hosts, 0 routers\n", e.out.String())
	assert.Empty(t, e.provider.Calls)
	assert.NoDirExists(t, e.outDir())
}

func TestValidate_WarnsAboutMissingTools(t *testing.T) {
	e := setupEnv(t, "")
	checkTools = func(*config.Config) *prerequisites.CheckResults {
		return &prerequisites.CheckResults{Missing: []prerequisites.Tool{{Name: "ansible-playbook", Description: "pushes task sets"}}}
	}

	require.NoError(t, Validate(context.Background(), e.opts))
	assert.True(t, strings.HasPrefix(e.out.String(), "warning: ansible-playbook not found: pushes task sets\n"))
	assert.Contains(t, e.out.String(), "OK: 1 definitions")
}

func TestValidate_Errors(t *testing.T) {
	t.Run("definition error", func(t *testing.T) {
		e := setupEnv(t, "")
		dstesting.WriteFile(t, e.opts.DefinitionPath, "HOST dc1 domain.ubuntu_dc_20_04 10\n")

		err := Validate(context.Background(), e.opts)
		assert.ErrorIs(t, err, definition.ErrConfiguration)
	})

	t.Run("router without external switch", func(t *testing.T) {
		e := setupEnv(t, "")
		dstesting.WriteFile(t, e.opts.InstancePath, testInstances+"ROUTER gw1 networking.vyos EXTERNAL=dhcp corp1=0\n")

		err := Validate(context.Background(), e.opts)
		assert.ErrorIs(t, err, provisioning.ErrConfiguration)
	})

	t.Run("invalid config", func(t *testing.T) {
		e := setupEnv(t, "")
		dstesting.WriteFile(t, e.opts.ConfigPath, "provider:\n  type: vmware\nbootstrap:\n  switch: vmbr0\n")

		err := Validate(context.Background(), e.opts)
		assert.ErrorIs(t, err, config.ErrInvalid)
	})
}

func TestStatus(t *testing.T) {
	e := setupEnv(t, "")

	require.NoError(t, Status(context.Background(), e.opts))
	assert.Contains(t, e.out.String(), "pending")
	assert.NotContains(t, e.out.String(), "done")

	require.NoError(t, Build(context.Background(), e.buildOpts()))
	e.out.Reset()

	require.NoError(t, Status(context.Background(), e.opts))
	lines := strings.Split(strings.TrimSpace(e.out.String()), "\n")
	require.Len(t, lines, 6, "header plus five ledgers")
	for _, l := range lines[1:] {
		assert.Contains(t, l, "done")
	}
}

func TestHistory(t *testing.T) {
	e := setupEnv(t, "journal:\n  enabled: true\n")

	err := History(context.Background(), HistoryOptions{ConfigPath: e.opts.ConfigPath})
	assert.ErrorIs(t, err, ErrNoJournal)

	require.NoError(t, Build(context.Background(), e.buildOpts()))
	e.out.Reset()

	require.NoError(t, History(context.Background(), HistoryOptions{ConfigPath: e.opts.ConfigPath, Limit: 5}))
	assert.Contains(t, e.out.String(), "run-1")
	assert.Contains(t, e.out.String(), journal.StatusSucceeded)

	e.out.Reset()
	require.NoError(t, History(context.Background(), HistoryOptions{ConfigPath: e.opts.ConfigPath, RunID: "run-1"}))
	assert.Contains(t, e.out.String(), "phase.started")
	assert.Contains(t, e.out.String(), "push.completed")

	err = History(context.Background(), HistoryOptions{ConfigPath: e.opts.ConfigPath, RunID: "nope"})
	assert.ErrorIs(t, err, journal.ErrRunNotFound)
}

func TestModules(t *testing.T) {
	e := setupEnv(t, "")

	require.NoError(t, Modules(context.Background(), e.opts.ConfigPath))
	assert.Contains(t, e.out.String(), "clients.rocky8")
	assert.Contains(t, e.out.String(), "networking.vyos")
}

func TestModules_Catalog(t *testing.T) {
	catalog := t.TempDir()
	dstesting.WriteFile(t, filepath.Join(catalog, "clients", "alpine", modules.CatalogFile),
		"description: Alpine test client\nimage: linux.alpine\nrole: client\nos_type: linux\nconnection_method: ssh\n")
	e := setupEnv(t, "catalog_dir: "+catalog+"\n")

	require.NoError(t, Modules(context.Background(), e.opts.ConfigPath))
	assert.Contains(t, e.out.String(), "clients.alpine")
	assert.Contains(t, e.out.String(), "Alpine test client")
}

func TestModules_WithoutConfigFile(t *testing.T) {
	e := setupEnv(t, "")
	t.Chdir(t.TempDir())

	require.NoError(t, Modules(context.Background(), DefaultConfigFile))
	assert.Contains(t, e.out.String(), "services.ubuntu_dhcp")
}

func TestModules_MissingConfigFile(t *testing.T) {
	e := setupEnv(t, "")

	err := Modules(context.Background(), filepath.Join(e.root, "other.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefaultPromptCredentials_CachedProxmoxTicket(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{OutputDir: t.TempDir()}
	cfg.Provider.Type = config.ProviderProxmox
	cfg.Provider.Proxmox = config.ProxmoxConfig{URL: "https://pve.lab:8006", Node: "pve"}

	if !prompt.IsInteractive() {
		err := defaultPromptCredentials(context.Background(), cfg)
		assert.ErrorIs(t, err, prompt.ErrNotInteractive, "no ticket cached yet")
	}

	dstesting.WriteFile(t, sessionPath(cfg), fmt.Sprintf(
		`{"username":"root@pam","ticket":"PVE:ticket1","csrf_token":"csrf","created":%q}`,
		time.Now().UTC().Format(time.RFC3339Nano)))

	require.NoError(t, defaultPromptCredentials(context.Background(), cfg))
	assert.Empty(t, cfg.Provider.Proxmox.Password)

	provider, err := defaultProvider(cfg, &config.Timeouts{TaskPollInterval: time.Millisecond})
	require.NoError(t, err)
	assert.NotNil(t, provider)
}

func TestSessionPath(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{OutputDir: "/srv/out"}
	assert.Equal(t, filepath.Join("/srv/out", ".session.json"), sessionPath(cfg))
}

func TestNewLogObserver(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer

	text, err := newLogObserver(LogFormatText, &buf)
	require.NoError(t, err)
	assert.IsType(t, &provisioning.ConsoleObserver{}, text)

	js, err := newLogObserver(LogFormatJSON, &buf)
	require.NoError(t, err)
	provisioning.LogPhaseStart(js, "bootstrap")
	assert.Contains(t, buf.String(), `"msg":"starting"`)

	_, err = newLogObserver("yaml", &buf)
	assert.Error(t, err)
}
