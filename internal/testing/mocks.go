package testing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/imamik/dropship/internal/modules"
	"github.com/imamik/dropship/internal/provisioning"
)

// FakeVM is a VM held by FakeProvider.
type FakeVM struct {
	ID        int
	Image     string
	Name      string
	NICs      map[int]provisioning.NIC
	Running   bool
	Snapshots []string
}

// FakeProvider is an in-memory provisioning.Provider. Every call is appended
// to Calls as a short string such as "clone tmpl web1" or "set 100 0 vmbr0".
// The *Func fields, when set, run before the default behavior and may fail
// the call.
type FakeProvider struct {
	mu       sync.Mutex
	nextID   int
	VMs      map[int]*FakeVM
	Switches map[string]bool
	Calls    []string

	CloneFunc        func(imageRef, displayName string) error
	SetInterfaceFunc func(vmid, index int, switchID string) error
	StartFunc        func(vmid int) error
	WaitFunc         func(ctx context.Context) error
}

// NewFakeProvider returns a provider whose first clone gets vmid 100.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		nextID:   100,
		VMs:      make(map[int]*FakeVM),
		Switches: make(map[string]bool),
	}
}

// AddVM registers an existing VM, as after an interrupted earlier run.
func (p *FakeProvider) AddVM(vmid int, name string) *FakeVM {
	p.mu.Lock()
	defer p.mu.Unlock()
	vm := &FakeVM{ID: vmid, Name: name, NICs: map[int]provisioning.NIC{}}
	for i := 0; i < 4; i++ {
		vm.NICs[i] = provisioning.NIC{MAC: MACFor(vmid, i)}
	}
	p.VMs[vmid] = vm
	if vmid >= p.nextID {
		p.nextID = vmid + 1
	}
	return vm
}

// MACFor returns the MAC the provider assigns to a NIC.
func MACFor(vmid, index int) string {
	return fmt.Sprintf("52:54:00:%02x:%02x:%02x", (vmid>>8)&0xff, vmid&0xff, index)
}

func (p *FakeProvider) record(format string, args ...any) {
	p.Calls = append(p.Calls, fmt.Sprintf(format, args...))
}

// CloneVM implements provisioning.Provider.
func (p *FakeProvider) CloneVM(_ context.Context, imageRef, displayName string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("clone %s %s", imageRef, displayName)
	if p.CloneFunc != nil {
		if err := p.CloneFunc(imageRef, displayName); err != nil {
			return 0, err
		}
	}
	id := p.nextID
	p.nextID++
	p.VMs[id] = &FakeVM{ID: id, Image: imageRef, Name: displayName, NICs: map[int]provisioning.NIC{}}
	return id, nil
}

// StartVM implements provisioning.Provider.
func (p *FakeProvider) StartVM(_ context.Context, vmid int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("start %d", vmid)
	if p.StartFunc != nil {
		if err := p.StartFunc(vmid); err != nil {
			return err
		}
	}
	vm, ok := p.VMs[vmid]
	if !ok {
		return fmt.Errorf("vm %d not found", vmid)
	}
	vm.Running = true
	return nil
}

// SetInterface implements provisioning.Provider.
func (p *FakeProvider) SetInterface(_ context.Context, vmid, index int, switchID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("set %d %d %s", vmid, index, switchID)
	if p.SetInterfaceFunc != nil {
		if err := p.SetInterfaceFunc(vmid, index, switchID); err != nil {
			return err
		}
	}
	vm, ok := p.VMs[vmid]
	if !ok {
		return fmt.Errorf("vm %d not found", vmid)
	}
	vm.NICs[index] = provisioning.NIC{MAC: MACFor(vmid, index), SwitchID: switchID}
	return nil
}

// GetInterface implements provisioning.Provider.
func (p *FakeProvider) GetInterface(_ context.Context, vmid, index int) (provisioning.NIC, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	vm, ok := p.VMs[vmid]
	if !ok {
		return provisioning.NIC{}, fmt.Errorf("vm %d not found", vmid)
	}
	nic, ok := vm.NICs[index]
	if !ok {
		return provisioning.NIC{}, fmt.Errorf("vm %d has no net%d", vmid, index)
	}
	return nic, nil
}

// SnapshotVM implements provisioning.Provider.
func (p *FakeProvider) SnapshotVM(_ context.Context, vmid int, label string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("snapshot %d %s", vmid, label)
	vm, ok := p.VMs[vmid]
	if !ok {
		return fmt.Errorf("vm %d not found", vmid)
	}
	vm.Snapshots = append(vm.Snapshots, label)
	return nil
}

// WaitForOutstandingTasks implements provisioning.Provider.
func (p *FakeProvider) WaitForOutstandingTasks(ctx context.Context) error {
	p.mu.Lock()
	p.record("wait")
	fn := p.WaitFunc
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return nil
}

// CreateSwitch implements provisioning.Provider.
func (p *FakeProvider) CreateSwitch(_ context.Context, switchID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("switch %s", switchID)
	p.Switches[switchID] = true
	return nil
}

// CallsWithPrefix returns the recorded calls starting with prefix.
func (p *FakeProvider) CallsWithPrefix(prefix string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, c := range p.Calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// VM returns a VM by id.
func (p *FakeProvider) VM(vmid int) (*FakeVM, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	vm, ok := p.VMs[vmid]
	return vm, ok
}

// Push is a recorded configuration push.
type Push struct {
	Name    string
	TaskSet modules.TaskSet
	WorkDir string
	// Hosts maps inventory host names to their connect address.
	Hosts map[string]string
	// Vars maps inventory host names to their variables.
	Vars      map[string]map[string]any
	Inventory *provisioning.Inventory
}

// Key returns "name/taskset".
func (p Push) Key() string { return p.Name + "/" + string(p.TaskSet) }

// FakePusher is a provisioning.ConfigPusher that records every request.
type FakePusher struct {
	mu     sync.Mutex
	Pushes []Push

	// ExitCodes fails pushes by key ("name/taskset").
	ExitCodes map[string]int

	// Leases, when set, are written as the dhcp table of dhcp-collect pushes.
	// LeaseFunc takes precedence and is called with the 1-based attempt.
	Leases    map[string]string
	LeaseFunc func(attempt int) map[string]string
	collects  int
}

// NewFakePusher returns a pusher that succeeds every push.
func NewFakePusher() *FakePusher {
	return &FakePusher{ExitCodes: map[string]int{}}
}

// Apply implements provisioning.ConfigPusher.
func (f *FakePusher) Apply(_ context.Context, req provisioning.PushRequest) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := Push{
		Name:      req.Name,
		TaskSet:   req.TaskSet,
		WorkDir:   req.WorkDir,
		Hosts:     map[string]string{},
		Vars:      map[string]map[string]any{},
		Inventory: req.Inventory,
	}
	for _, g := range req.Inventory.Groups {
		for _, h := range g.Hosts {
			p.Hosts[h.Name] = h.ConnectAddress
			p.Vars[h.Name] = h.Vars
		}
	}
	f.Pushes = append(f.Pushes, p)

	if code := f.ExitCodes[p.Key()]; code != 0 {
		return code, nil
	}

	if req.TaskSet == modules.TaskDHCPCollect {
		f.collects++
		leases := f.Leases
		if f.LeaseFunc != nil {
			leases = f.LeaseFunc(f.collects)
		}
		if err := writeLeases(filepath.Join(req.WorkDir, provisioning.DHCPTableFile), leases); err != nil {
			return 1, err
		}
	}
	return 0, nil
}

// Keys returns the "name/taskset" keys of every push in order.
func (f *FakePusher) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Pushes))
	for _, p := range f.Pushes {
		out = append(out, p.Key())
	}
	return out
}

// Find returns the last push with the given key.
func (f *FakePusher) Find(key string) (Push, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.Pushes) - 1; i >= 0; i-- {
		if f.Pushes[i].Key() == key {
			return f.Pushes[i], true
		}
	}
	return Push{}, false
}

func writeLeases(path string, leases map[string]string) error {
	macs := make([]string, 0, len(leases))
	for mac := range leases {
		macs = append(macs, mac)
	}
	sort.Strings(macs)
	var b strings.Builder
	for _, mac := range macs {
		fmt.Fprintf(&b, "%s|%s\n", mac, leases[mac])
	}
	return os.WriteFile(path, []byte(b.String()), 0o600)
}

// MockAddressSource is a mock implementation of addressing.AddressSource.
type MockAddressSource struct {
	mock.Mock
}

// Lookup implements addressing.AddressSource.
func (m *MockAddressSource) Lookup(ctx context.Context, mac string) (string, bool, error) {
	args := m.Called(ctx, mac)
	return args.String(0), args.Bool(1), args.Error(2)
}
