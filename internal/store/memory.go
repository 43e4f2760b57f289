// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tessera-dev/tessera/internal/catalog"
	"github.com/tessera-dev/tessera/internal/install"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

// MemoryStore keeps plugins and installations in process memory. It backs
// tests and the store.driver=memory development mode. Values are cloned on
// the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu            sync.RWMutex
	plugins       map[ulid.ULID]*catalog.Definition
	installations map[ulid.ULID]*install.Installation
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plugins:       make(map[ulid.ULID]*catalog.Definition),
		installations: make(map[ulid.ULID]*install.Installation),
	}
}

// Plugins returns a catalog.Repository view of the store.
func (s *MemoryStore) Plugins() *MemoryPlugins { return &MemoryPlugins{s: s} }

// Installations returns an install.Repository view of the store.
func (s *MemoryStore) Installations() *MemoryInstallations { return &MemoryInstallations{s: s} }

// MemoryPlugins implements catalog.Repository.
type MemoryPlugins struct{ s *MemoryStore }

// Create stores a copy of def.
func (r *MemoryPlugins) Create(_ context.Context, def *catalog.Definition) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.plugins {
		if existing.Name == def.Name && existing.Version == def.Version {
			return oops.Code(errutil.CodeRegistrationInvalid).
				With("name", def.Name).With("version", def.Version).
				Errorf("plugin %s@%s is already registered", def.Name, def.Version)
		}
	}
	r.s.plugins[def.ID] = def.Clone()
	return nil
}

// Get returns a copy of the definition with id.
func (r *MemoryPlugins) Get(_ context.Context, id ulid.ULID) (*catalog.Definition, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	def, ok := r.s.plugins[id]
	if !ok {
		return nil, oops.Code(errutil.CodePluginNotFound).With("id", id.String()).Wrap(catalog.ErrNotFound)
	}
	return def.Clone(), nil
}

// GetByNameVersion finds a definition by name and version.
func (r *MemoryPlugins) GetByNameVersion(_ context.Context, name, version string) (*catalog.Definition, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, def := range r.s.plugins {
		if def.Name == name && def.Version == version {
			return def.Clone(), nil
		}
	}
	return nil, oops.Code(errutil.CodePluginNotFound).
		With("name", name).With("version", version).Wrap(catalog.ErrNotFound)
}

// Update replaces a stored definition.
func (r *MemoryPlugins) Update(_ context.Context, def *catalog.Definition) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.plugins[def.ID]; !ok {
		return oops.Code(errutil.CodePluginNotFound).With("id", def.ID.String()).Wrap(catalog.ErrNotFound)
	}
	r.s.plugins[def.ID] = def.Clone()
	return nil
}

// List returns definitions matching filter, ordered by name then version.
func (r *MemoryPlugins) List(_ context.Context, filter catalog.Filter) ([]*catalog.Definition, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var defs []*catalog.Definition
	for _, def := range r.s.plugins {
		if pluginMatches(def, filter) {
			defs = append(defs, def.Clone())
		}
	}
	slices.SortFunc(defs, func(a, b *catalog.Definition) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.Version, b.Version))
	})
	return defs, nil
}

func pluginMatches(def *catalog.Definition, filter catalog.Filter) bool {
	if filter.Status != "" && def.Status != filter.Status {
		return false
	}
	if filter.Category != "" && def.Category != filter.Category {
		return false
	}
	if filter.ExtensionPoint != "" && !def.Declares(filter.ExtensionPoint) {
		return false
	}
	return true
}

// MemoryInstallations implements install.Repository.
type MemoryInstallations struct{ s *MemoryStore }

// Create stores a copy of inst, enforcing one installation per
// (plugin, organization).
func (r *MemoryInstallations) Create(_ context.Context, inst *install.Installation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.installations {
		if existing.PluginID == inst.PluginID && existing.OrganizationID == inst.OrganizationID {
			return oops.Code(errutil.CodeInstallationConflict).
				With("plugin_id", inst.PluginID.String()).
				With("organization_id", inst.OrganizationID).
				Wrap(install.ErrConflict)
		}
	}
	r.s.installations[inst.ID] = inst.Clone()
	return nil
}

// Get returns a copy of the installation with id.
func (r *MemoryInstallations) Get(_ context.Context, id ulid.ULID) (*install.Installation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	inst, ok := r.s.installations[id]
	if !ok {
		return nil, oops.Code(errutil.CodeInstallationNotFound).With("id", id.String()).Wrap(install.ErrNotFound)
	}
	return inst.Clone(), nil
}

// GetByPlugin finds the installation of pluginID for organizationID.
func (r *MemoryInstallations) GetByPlugin(_ context.Context, pluginID ulid.ULID, organizationID string) (*install.Installation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, inst := range r.s.installations {
		if inst.PluginID == pluginID && inst.OrganizationID == organizationID {
			return inst.Clone(), nil
		}
	}
	return nil, oops.Code(errutil.CodeInstallationNotFound).
		With("plugin_id", pluginID.String()).
		With("organization_id", organizationID).
		Wrap(install.ErrNotFound)
}

// Update replaces a stored installation.
func (r *MemoryInstallations) Update(_ context.Context, inst *install.Installation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.installations[inst.ID]; !ok {
		return oops.Code(errutil.CodeInstallationNotFound).With("id", inst.ID.String()).Wrap(install.ErrNotFound)
	}
	r.s.installations[inst.ID] = inst.Clone()
	return nil
}

// Delete removes an installation.
func (r *MemoryInstallations) Delete(_ context.Context, id ulid.ULID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.installations[id]; !ok {
		return oops.Code(errutil.CodeInstallationNotFound).With("id", id.String()).Wrap(install.ErrNotFound)
	}
	delete(r.s.installations, id)
	return nil
}

// List returns installations matching filter in creation order.
func (r *MemoryInstallations) List(_ context.Context, filter install.Filter) ([]*install.Installation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var insts []*install.Installation
	for _, inst := range r.s.installations {
		if r.matches(inst, filter) {
			insts = append(insts, inst.Clone())
		}
	}
	slices.SortFunc(insts, func(a, b *install.Installation) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), a.ID.Compare(b.ID))
	})
	return insts, nil
}

// matches requires the read lock.
func (r *MemoryInstallations) matches(inst *install.Installation, filter install.Filter) bool {
	if filter.OrganizationID != "" && inst.OrganizationID != filter.OrganizationID {
		return false
	}
	if filter.PluginID != nil && inst.PluginID != *filter.PluginID {
		return false
	}
	if filter.EnabledOnly && !inst.Enabled {
		return false
	}
	if filter.Category == "" && filter.ExtensionPoint == "" {
		return true
	}
	def, ok := r.s.plugins[inst.PluginID]
	if !ok {
		return false
	}
	if filter.Category != "" && def.Category != filter.Category {
		return false
	}
	if filter.ExtensionPoint != "" && !def.Declares(filter.ExtensionPoint) {
		return false
	}
	return true
}

var (
	_ catalog.Repository = (*MemoryPlugins)(nil)
	_ install.Repository = (*MemoryInstallations)(nil)
	_ catalog.Repository = (*PluginRepository)(nil)
	_ install.Repository = (*InstallationRepository)(nil)
)
