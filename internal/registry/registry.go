// Package registry implements C2: a process-wide mapping from
// (node-kind, name) to a class/instance/factory, append-mostly, with
// overwrite gated by an explicit force flag; the registry does not track
// whether a run is active (spec.md §5: "Registry (C2) is append-mostly; overwrite
// requires force=true and is not performed during execution.").
package registry

import (
	"fmt"
	"sync"

	"github.com/smilemakc/flowcore/internal/apperrors"
	"github.com/smilemakc/flowcore/internal/node"
)

// Entry is anything registrable: a tool implementation, an agent factory,
// a sub-workflow loader. Callers type-assert on retrieval; typed wrapper
// methods are provided by internal/executor for the common cases.
type Entry interface{}

// Factory lazily constructs an Entry - used for agents, whose construction
// may be expensive (spec.md §2: "lazy import of agents").
type Factory func() (Entry, error)

type key struct {
	kind node.Kind
	name string
}

// Registry is the C2 registry.
type Registry struct {
	mu       sync.RWMutex
	entries  map[key]Entry
	factories map[key]Factory
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		entries:   make(map[key]Entry),
		factories: make(map[key]Factory),
	}
}

// Register adds an entry under (kind, name). Fails if already present unless
// force is true.
func (r *Registry) Register(kind node.Kind, name string, entry Entry, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{kind, name}
	if _, exists := r.entries[k]; exists && !force {
		if _, hasFactory := r.factories[k]; !hasFactory {
			return apperrors.New(apperrors.KindConflict, "registry.register",
				fmt.Errorf("%s/%s already registered", kind, name))
		}
	}
	r.entries[k] = entry
	return nil
}

// RegisterFactory adds a lazy factory under (kind, name), resolved on first Get.
func (r *Registry) RegisterFactory(kind node.Kind, name string, factory Factory, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{kind, name}
	if _, exists := r.factories[k]; exists && !force {
		if _, hasEntry := r.entries[k]; !hasEntry {
			return apperrors.New(apperrors.KindConflict, "registry.register_factory",
				fmt.Errorf("%s/%s already registered", kind, name))
		}
	}
	r.factories[k] = factory
	return nil
}

// Get resolves (kind, name): a direct entry if present, otherwise runs and
// caches a registered factory. Returns apperrors.KindNotFound if absent.
func (r *Registry) Get(kind node.Kind, name string) (Entry, error) {
	k := key{kind, name}

	r.mu.RLock()
	entry, ok := r.entries[k]
	factory, hasFactory := r.factories[k]
	r.mu.RUnlock()
	if ok {
		return entry, nil
	}
	if !hasFactory {
		return nil, apperrors.New(apperrors.KindNotFound, "registry.get",
			fmt.Errorf("%s/%s not registered", kind, name))
	}

	resolved, err := factory()
	if err != nil {
		return nil, apperrors.New(apperrors.KindInternal, "registry.factory", err)
	}
	r.mu.Lock()
	r.entries[k] = resolved
	r.mu.Unlock()
	return resolved, nil
}

// Has reports whether (kind, name) is registered, directly or via factory.
func (r *Registry) Has(kind node.Kind, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k := key{kind, name}
	_, ok := r.entries[k]
	if ok {
		return true
	}
	_, ok = r.factories[k]
	return ok
}

// List returns all registered names for a kind.
func (r *Registry) List(kind node.Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var names []string
	for k := range r.entries {
		if k.kind == kind && !seen[k.name] {
			names = append(names, k.name)
			seen[k.name] = true
		}
	}
	for k := range r.factories {
		if k.kind == kind && !seen[k.name] {
			names = append(names, k.name)
			seen[k.name] = true
		}
	}
	return names
}

// Unregister removes an entry. Build-time only, per spec.md §5.
func (r *Registry) Unregister(kind node.Kind, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{kind, name}
	delete(r.entries, k)
	delete(r.factories, k)
}
