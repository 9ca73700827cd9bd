package provider

import (
	"fmt"
	"sync"
)

// ErrNotFound is returned by Registry.Get when no provider is registered
// under the given name.
type ErrNotFound struct {
	Name string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("provider: %q not found", e.Name)
}

// Registry is a lookup table built once at process start and shared by
// reference across every goroutine: Provider values are immutable bundles
// of pure functions, so concurrent reads need no synchronization beyond the
// map access itself, which Register guards for the (rare, start-up-time)
// write path.
type Registry struct {
	mu   sync.RWMutex
	byName map[string]*Provider
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Provider)}
}

// Register adds a provider under its Name. Registering two providers with
// the same name is a programming error and panics, matching the
// once-at-startup, never-at-runtime nature of provider registration.
func (r *Registry) Register(p *Provider) {
	if p == nil || p.Name == "" {
		panic("provider: cannot register a nil provider or one with an empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[p.Name]; exists {
		panic(fmt.Sprintf("provider: %q already registered", p.Name))
	}
	r.byName[p.Name] = p
}

// Get looks up a provider by name.
func (r *Registry) Get(name string) (*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	if !ok {
		return nil, &ErrNotFound{Name: name}
	}
	return p, nil
}

// CheckConfig looks up name and validates config against it, surfacing
// ErrNotFound for an unknown provider the way a hook header binding to a
// typo'd provider name should fail at load time.
func (r *Registry) CheckConfig(name, config string) error {
	p, err := r.Get(name)
	if err != nil {
		return err
	}
	if p.CheckConfig == nil {
		return nil
	}
	return p.CheckConfig(config)
}

// Names returns every registered provider name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	return names
}

// Reset clears the registry. Used only by tests.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName = make(map[string]*Provider)
}
