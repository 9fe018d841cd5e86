package modules

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/imamik/dropship/internal/topology"
)

// CatalogFile is the descriptor file name inside a catalog module directory.
const CatalogFile = "module.yaml"

// ErrUnknownModule is returned for names missing from the registry.
var ErrUnknownModule = errors.New("unknown module")

// Registry maps module names to descriptors.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]*Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]*Descriptor)}
}

// Builtin returns a registry holding the shipped modules. Each module's Dir
// is derived from root and its dotted name.
func Builtin(root string) *Registry {
	r := NewRegistry()
	for _, d := range builtinTable() {
		d.Dir = filepath.Join(root, filepath.FromSlash(strings.ReplaceAll(d.Name, ".", "/")))
		if len(d.Fetch) > 0 && d.Hook == nil {
			d.Hook = &FetchHook{Files: d.Fetch}
		}
		r.modules[d.Name] = d
	}
	return r
}

// Register adds or replaces a descriptor.
func (r *Registry) Register(d *Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}
	if len(d.Fetch) > 0 && d.Hook == nil {
		d.Hook = &FetchHook{Files: d.Fetch}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[d.Name] = d
	return nil
}

// Get returns the descriptor for name.
func (r *Registry) Get(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.modules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	return d, nil
}

// Role returns the role of module name.
func (r *Registry) Role(name string) (topology.Role, error) {
	d, err := r.Get(name)
	if err != nil {
		return "", err
	}
	return d.Role, nil
}

// List returns all descriptors sorted by name.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.modules))
	for _, d := range r.modules {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b *Descriptor) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// LoadCatalog walks dir for module.yaml files and registers each one.
// The module name defaults to the directory path relative to dir with
// separators replaced by dots; entries override built-in modules.
func (r *Registry) LoadCatalog(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || entry.Name() != CatalogFile {
			return nil
		}

		d, err := readDescriptor(path)
		if err != nil {
			return err
		}
		moduleDir := filepath.Dir(path)
		if d.Name == "" {
			rel, err := filepath.Rel(dir, moduleDir)
			if err != nil {
				return err
			}
			d.Name = strings.ReplaceAll(filepath.ToSlash(rel), "/", ".")
		}
		d.Dir = moduleDir

		if err := r.Register(d); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("load module catalog: %w", err)
	}
	return count, nil
}

func readDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read module file: %w", err)
	}
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &d, nil
}
