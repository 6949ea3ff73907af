// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package gpucore

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// DeviceFactory opens a device on a backend.
type DeviceFactory func(opts DeviceOptions) (Device, error)

// RegistryEntry is a registered backend.
type RegistryEntry struct {
	// Name is the unique backend identifier, e.g. "native" or "sim".
	Name string

	// Priority determines selection order (higher = preferred).
	// Hardware backends use 100.
	Priority int

	// Factory opens devices.
	Factory DeviceFactory

	// Available reports if the backend can run on this system.
	Available func() bool

	// Explicit backends open only by name. OpenBest never selects them.
	Explicit bool
}

// globalRegistry is the registry backends add themselves to from init.
var globalRegistry = &Registry{}

// Registry holds named device backends.
//
// Backends register from init so that importing a backend package is
// enough to make it selectable:
//
//	import _ "github.com/gogpu/swapframe/backend/native"
//
//	dev, err := gpucore.OpenBest(gpucore.DeviceOptions{})
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*RegistryEntry
}

// NewRegistry creates an empty registry.
// Most code should use the global registry via Register and Open.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*RegistryEntry)}
}

// Register adds a backend to the global registry. A nil available
// function means always available. Registering an existing name replaces
// the previous entry.
func Register(name string, priority int, factory DeviceFactory, available func() bool) {
	globalRegistry.Register(name, priority, factory, available)
}

// RegisterExplicit adds a backend to the global registry that opens only
// when asked for by name.
func RegisterExplicit(name string, factory DeviceFactory) {
	globalRegistry.RegisterExplicit(name, factory)
}

// Unregister removes a backend from the global registry.
func Unregister(name string) {
	globalRegistry.Unregister(name)
}

// Backends returns the registered backend names, highest priority first.
func Backends() []string {
	return globalRegistry.List()
}

// Open opens a device on the named backend of the global registry.
func Open(name string, opts DeviceOptions) (Device, error) {
	return globalRegistry.Open(name, opts)
}

// OpenBest opens a device on the best available backend of the global
// registry. Explicit backends are skipped.
func OpenBest(opts DeviceOptions) (Device, error) {
	return globalRegistry.OpenBest(opts)
}

// Register adds a backend to this registry.
func (r *Registry) Register(name string, priority int, factory DeviceFactory, available func() bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries == nil {
		r.entries = make(map[string]*RegistryEntry)
	}
	if available == nil {
		available = func() bool { return true }
	}
	r.entries[name] = &RegistryEntry{
		Name:      name,
		Priority:  priority,
		Factory:   factory,
		Available: available,
	}
}

// RegisterExplicit adds a backend that OpenBest never selects.
func (r *Registry) RegisterExplicit(name string, factory DeviceFactory) {
	r.Register(name, 0, factory, nil)

	r.mu.Lock()
	r.entries[name].Explicit = true
	r.mu.Unlock()
}

// Unregister removes a backend from this registry.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, name)
}

// List returns all registered backend names sorted by priority.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sortedNames(false)
}

// Available returns the names of available backends sorted by priority.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sortedNames(true)
}

// Get returns a copy of the named entry.
func (r *Registry) Get(name string) (*RegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	entryCopy := *entry
	return &entryCopy, true
}

// Open opens a device on the named backend.
func (r *Registry) Open(name string, opts DeviceOptions) (Device, error) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &BackendNotFoundError{Name: name}
	}
	if !entry.Available() {
		return nil, &BackendUnavailableError{Name: name}
	}

	dev, err := entry.Factory(opts)
	if err != nil {
		return nil, fmt.Errorf("gpucore: open %s: %w", name, err)
	}
	return dev, nil
}

// OpenBest tries each available backend in priority order and returns the
// first device that opens. Explicit backends are skipped, so with no
// hardware backend left it fails with ErrNoDevice.
func (r *Registry) OpenBest(opts DeviceOptions) (Device, error) {
	r.mu.RLock()
	var available []string
	for _, name := range r.sortedNames(true) {
		if !r.entries[name].Explicit {
			available = append(available, name)
		}
	}
	r.mu.RUnlock()

	if len(available) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoDevice, ErrNoBackendAvailable)
	}

	var errs []error
	for _, name := range available {
		dev, err := r.Open(name, opts)
		if err == nil {
			return dev, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%w: %w", ErrNoDevice, errors.Join(errs...))
}

// sortedNames returns backend names sorted by priority (highest first),
// then by name. Must be called with the lock held.
func (r *Registry) sortedNames(onlyAvailable bool) []string {
	if len(r.entries) == 0 {
		return nil
	}

	entries := make([]*RegistryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if onlyAvailable && !e.Available() {
			continue
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority > entries[j].Priority
		}
		return entries[i].Name < entries[j].Name
	})

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

// ErrNoBackendAvailable is returned when no backend is registered or
// available on the current system.
var ErrNoBackendAvailable = errors.New("gpucore: no backend available")

// BackendNotFoundError indicates a named backend is not registered.
type BackendNotFoundError struct {
	Name string
}

func (e *BackendNotFoundError) Error() string {
	return "gpucore: backend not found: " + e.Name
}

// BackendUnavailableError indicates a backend exists but cannot run here.
type BackendUnavailableError struct {
	Name string
}

func (e *BackendUnavailableError) Error() string {
	return "gpucore: backend unavailable: " + e.Name
}
