package testing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/imamik/dropship/internal/addressing"
	"github.com/imamik/dropship/internal/config"
	"github.com/imamik/dropship/internal/modules"
	"github.com/imamik/dropship/internal/provisioning"
	"github.com/imamik/dropship/internal/topology"
)

// Lab is a self-contained provisioning environment rooted in t.TempDir():
// a module source tree for the built-in modules, a config, fakes and a
// sample network definition.
type Lab struct {
	Root     string
	Config   *config.Config
	Registry *modules.Registry
	Provider *FakeProvider
	Pusher   *FakePusher
	Leases   *SequentialLeases
	Observer *RecordingObserver
	Corp     *topology.NetworkDefinition
}

// NewLab builds a lab. The module tree holds every task file of every
// built-in module.
func NewLab(t *testing.T) *Lab {
	t.Helper()
	root := t.TempDir()
	modRoot := filepath.Join(root, "modules")

	reg := modules.Builtin(modRoot)
	for _, d := range reg.List() {
		d.Hook = nil
		WriteModuleTree(t, d)
	}

	return &Lab{
		Root: root,
		Config: NewConfigBuilder().
			WithOutputDir(filepath.Join(root, "out")).
			WithModulesDir(modRoot).
			WithImage("server.linux.ubuntu_1804", "tmpl-ubuntu").
			Build(),
		Registry: reg,
		Provider: NewFakeProvider(),
		Pusher:   NewFakePusher(),
		Leases:   NewSequentialLeases("192.168.122"),
		Observer: &RecordingObserver{},
		Corp:     CorpDefinition(),
	}
}

// CorpDefinition returns a network with a DHCP server, a domain controller,
// a DHCP client, an offset client and one post module invocation.
func CorpDefinition() *topology.NetworkDefinition {
	return &topology.NetworkDefinition{
		Name:   "corp",
		Range:  "10.x.5.0/24",
		Domain: &topology.Domain{FQDN: "corp.lab", Admin: "administrator", Password: "Secret1!"},
		Vars:   map[string]string{"timezone": "UTC"},
		Hosts: []topology.HostSpec{
			{Hostname: "dhcp1", Module: "services.ubuntu_dhcp", Role: topology.RoleDHCP, Address: "10.x.5.3"},
			{Hostname: "dc1", Module: "domain.ubuntu_dc_20_04", Role: topology.RoleDomain, Address: "10.x.5.10"},
			{Hostname: "ws1", Module: "clients.rocky8", Role: topology.RoleClient, Address: "dhcp"},
			{Hostname: "ws2", Module: "clients.windows10_1909", Role: topology.RoleClient, Address: "20"},
		},
		Users: []topology.User{{Username: "jdoe", Password: "pw", First: "Jane", Last: "Doe"}},
		PostTargets: []topology.PostTarget{
			{Hostname: "ws2", Module: "post.windows.config.localadmin", Vars: map[string]string{"username": "labadmin"}},
		},
	}
}

// Instance realizes the lab's corp definition.
func (l *Lab) Instance(t *testing.T, name, switchID, octet string) *topology.NetworkInstance {
	t.Helper()
	inst, err := topology.NewInstance(l.Corp, topology.InstanceSpec{
		Name: name, SwitchID: switchID, Prefix: name + "-", Octets: map[string]string{"x": octet},
	})
	if err != nil {
		t.Fatalf("instance %s: %v", name, err)
	}
	return inst
}

// Context returns a provisioning context wired to the lab's fakes with
// timeouts small enough for tests.
func (l *Lab) Context(t *testing.T) *provisioning.Context {
	t.Helper()
	resolver := &addressing.Resolver{Source: l.Leases, Interval: time.Millisecond, MaxAttempts: 3}
	ctx := provisioning.NewContext(TestContext(t), l.Config, l.Provider, l.Pusher, resolver, l.Registry)
	ctx.Timeouts = FastTimeouts()
	ctx.Observer = l.Observer
	return ctx
}

// FastTimeouts returns timeouts suited to unit tests.
func FastTimeouts() *config.Timeouts {
	return &config.Timeouts{
		ResolveInterval:     time.Millisecond,
		ResolveMaxAttempts:  3,
		HarvestMaxAttempts:  3,
		HarvestInitialDelay: time.Millisecond,
		HarvestMaxDelay:     5 * time.Millisecond,
		TaskPollInterval:    time.Millisecond,
		RetryMaxAttempts:    2,
		RetryInitialDelay:   time.Millisecond,
	}
}

// WriteModuleTree creates every task file and auxiliary file of d under d.Dir.
func WriteModuleTree(t *testing.T, d *modules.Descriptor) {
	t.Helper()
	sets := []modules.TaskSet{
		modules.TaskBootstrap, modules.TaskReboot, modules.TaskDeploy,
		modules.TaskPost, modules.TaskDHCPCollect,
	}
	for _, set := range sets {
		WriteFile(t, d.TaskFile(set), fmt.Sprintf("# %s %s\n", d.Name, set))
	}
	for _, f := range d.BootstrapFiles {
		WriteFile(t, filepath.Join(d.Dir, f), f+"\n")
	}
	for _, set := range []modules.TaskSet{modules.TaskDeploy, modules.TaskPost} {
		for _, f := range d.ExtraFiles(set) {
			WriteFile(t, filepath.Join(d.Dir, modules.FilesDir, f), f+"\n")
		}
	}
}

// SequentialLeases answers every MAC lookup with the next free host address
// of a /24, remembering earlier answers. Listed MACs in Withheld are never
// answered.
type SequentialLeases struct {
	mu       sync.Mutex
	prefix   string
	next     int
	leases   map[string]string
	Withheld map[string]bool
	Lookups  int
}

// NewSequentialLeases hands out prefix.10, prefix.11, ...
func NewSequentialLeases(prefix string) *SequentialLeases {
	return &SequentialLeases{prefix: prefix, next: 10, leases: map[string]string{}, Withheld: map[string]bool{}}
}

// Lookup implements addressing.AddressSource.
func (s *SequentialLeases) Lookup(_ context.Context, mac string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Lookups++
	mac = addressing.NormalizeMAC(mac)
	if s.Withheld[mac] {
		return "", false, nil
	}
	if ip, ok := s.leases[mac]; ok {
		return ip, true, nil
	}
	ip := fmt.Sprintf("%s.%d", s.prefix, s.next)
	s.next++
	s.leases[mac] = ip
	return ip, true, nil
}

// RecordingObserver is a provisioning.Observer that keeps every event.
type RecordingObserver struct {
	mu     sync.Mutex
	Events []provisioning.Event
	Lines  []string
}

// Printf implements provisioning.Logger.
func (o *RecordingObserver) Printf(format string, v ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Lines = append(o.Lines, fmt.Sprintf(format, v...))
}

// Event implements provisioning.Observer.
func (o *RecordingObserver) Event(e provisioning.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Events = append(o.Events, e)
}

// Progress implements provisioning.Observer.
func (o *RecordingObserver) Progress(string, int, int) {}

// WithFields implements provisioning.Observer. Fields are dropped.
func (o *RecordingObserver) WithFields(map[string]string) provisioning.Observer { return o }

// Types returns the type of every recorded event in order.
func (o *RecordingObserver) Types() []provisioning.EventType {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]provisioning.EventType, 0, len(o.Events))
	for _, e := range o.Events {
		out = append(out, e.Type)
	}
	return out
}

// GroupStates returns the messages of group state events in order.
func (o *RecordingObserver) GroupStates() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, e := range o.Events {
		if e.Type == provisioning.EventGroupState {
			out = append(out, e.Message)
		}
	}
	return out
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}
