package worker

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrUnknownWorker marks a lookup of a name nobody registered.
	ErrUnknownWorker = errors.New("unknown worker")
	// ErrInvocation marks a malformed worker invocation.
	ErrInvocation = errors.New("invalid worker invocation")
)

// Factory builds a fresh worker instance for one process.
type Factory func() Worker

// Entry describes a registered worker.
type Entry struct {
	Name        string
	Description string
	Factory     Factory
}

// Registry maps worker names to factories. Both the orchestrator (to reject
// unknown names before spawning) and the worker host (to construct the
// worker) consult the same registry.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds a worker. Names are case-sensitive and may be registered once.
func (r *Registry) Register(name, description string, factory Factory) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("register worker: name is empty")
	}
	if factory == nil {
		return fmt.Errorf("register worker %s: factory is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("register worker %s: already registered", name)
	}
	r.entries[name] = Entry{Name: name, Description: description, Factory: factory}
	return nil
}

// MustRegister is Register for init-time wiring; it panics on error.
func (r *Registry) MustRegister(name, description string, factory Factory) {
	if err := r.Register(name, description, factory); err != nil {
		panic(err)
	}
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (Factory, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, name)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, name)
	}
	return entry.Factory, nil
}

// Entries lists registered workers sorted by name.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
