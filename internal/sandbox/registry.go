// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package sandbox

import (
	"sync"

	"github.com/dop251/goja"
)

// Registry is the process-wide map of plugin release to the extension point
// implementations a bundle registered through @tessera/sdk. It is created
// once at host startup and only grows until Reset.
type Registry struct {
	mu      sync.RWMutex
	entries map[Scope]*registration
}

type registration struct {
	module *Module
	points map[string]goja.Value
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Scope]*registration)}
}

// Register records implementations for one plugin release. A later
// registration from a different module replaces the earlier one; repeated
// calls from the same module merge.
func (r *Registry) Register(scope Scope, m *Module, points map[string]goja.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.entries[scope]
	if !ok || reg.module != m {
		reg = &registration{module: m, points: make(map[string]goja.Value, len(points))}
		r.entries[scope] = reg
	}
	for k, v := range points {
		reg.points[k] = v
	}
}

// Lookup returns the implementation registered for point by the given
// plugin release and the module that owns it.
func (r *Registry) Lookup(scope Scope, point string) (goja.Value, *Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[scope]
	if !ok {
		return nil, nil, false
	}
	v, ok := reg.points[point]
	if !ok {
		return nil, nil, false
	}
	return v, reg.module, true
}

// Len reports how many plugin releases have registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Reset drops every registration.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[Scope]*registration)
}
