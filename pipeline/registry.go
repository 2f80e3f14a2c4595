package pipeline

import (
	"sort"
	"sync"

	"github.com/kbukum/opkit/op"
)

// Registry provides named operation lookup for pipeline references and
// hosts.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]op.Operation
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]op.Operation)}
}

// Register adds an operation under name, replacing any previous entry.
func (r *Registry) Register(name string, o op.Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[name] = o
}

// Get retrieves an operation by name.
func (r *Registry) Get(name string) (op.Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.ops[name]
	return o, ok
}

// List returns sorted names of all registered operations.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
