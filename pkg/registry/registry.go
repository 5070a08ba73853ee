package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/marmos91/dittofs-namespace/internal/logger"
	"github.com/marmos91/dittofs-namespace/pkg/namespace"
)

// Registry holds the namespace of every export, keyed by export name.
// It is safe for concurrent use.
//
// Example usage:
//
//	reg := NewRegistry()
//	reg.Register(ns)
//
//	ns, _ := reg.Get("/export")
//	defer reg.CloseAll(ctx)
type Registry struct {
	mu         sync.RWMutex
	namespaces map[string]*namespace.Namespace
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		namespaces: make(map[string]*namespace.Namespace),
	}
}

// Register adds ns under its name.
// Returns an error if a namespace with the same name is already registered.
func (r *Registry) Register(ns *namespace.Namespace) error {
	if ns == nil {
		return fmt.Errorf("cannot register nil namespace")
	}
	name := ns.Name()
	if name == "" {
		return fmt.Errorf("cannot register namespace with empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.namespaces[name]; exists {
		return fmt.Errorf("namespace %q already registered", name)
	}

	r.namespaces[name] = ns
	logger.Debug("registry: registered namespace %s (%s)", name, ns.ID())
	return nil
}

// Get retrieves a namespace by export name.
func (r *Registry) Get(name string) (*namespace.Namespace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ns, exists := r.namespaces[name]
	if !exists {
		return nil, fmt.Errorf("namespace %q not found", name)
	}
	return ns, nil
}

// Remove unregisters a namespace and closes it.
func (r *Registry) Remove(ctx context.Context, name string) error {
	r.mu.Lock()
	ns, exists := r.namespaces[name]
	delete(r.namespaces, name)
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("namespace %q not found", name)
	}
	return ns.Close(ctx)
}

// List returns the registered export names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.namespaces))
	for name := range r.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered namespaces.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.namespaces)
}

// Exists reports whether a namespace is registered under name.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.namespaces[name]
	return exists
}

// CloseAll closes and unregisters every namespace. Close errors are
// joined; every namespace is closed regardless.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	namespaces := r.namespaces
	r.namespaces = make(map[string]*namespace.Namespace)
	r.mu.Unlock()

	var errs []error
	for name, ns := range namespaces {
		if err := ns.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close namespace %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
