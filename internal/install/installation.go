// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

// Package install manages per-organization installations of catalog plugins:
// whether a plugin is installed for a tenant, whether it is enabled, its
// configuration and the version it was installed at.
package install

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tessera-dev/tessera/internal/catalog"
)

// Repository sentinel errors.
var (
	ErrNotFound = errors.New("installation not found")
	ErrConflict = errors.New("installation already exists")
)

// Installation joins a plugin definition to an organization.
type Installation struct {
	ID               ulid.ULID      `json:"id"`
	PluginID         ulid.ULID      `json:"pluginId"`
	OrganizationID   string         `json:"organizationId"`
	Enabled          bool           `json:"enabled"`
	Configuration    map[string]any `json:"configuration"`
	InstalledVersion string         `json:"installedVersion"`
	InstalledBy      string         `json:"installedBy"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// Clone returns a copy with its own configuration map.
func (i *Installation) Clone() *Installation {
	c := *i
	c.Configuration = maps.Clone(i.Configuration)
	if c.Configuration == nil {
		c.Configuration = map[string]any{}
	}
	return &c
}

// Entry pairs an installation with its plugin definition.
type Entry struct {
	Installation *Installation       `json:"installation"`
	Plugin       *catalog.Definition `json:"plugin"`
}

// Filter narrows List results. Zero-valued fields do not filter.
type Filter struct {
	OrganizationID string
	PluginID       *ulid.ULID
	EnabledOnly    bool
	Category       catalog.Category
	ExtensionPoint string
}

// Repository persists installations. Create must return ErrConflict when an
// installation already exists for the (plugin, organization) pair.
type Repository interface {
	Create(ctx context.Context, inst *Installation) error
	Get(ctx context.Context, id ulid.ULID) (*Installation, error)
	GetByPlugin(ctx context.Context, pluginID ulid.ULID, organizationID string) (*Installation, error)
	Update(ctx context.Context, inst *Installation) error
	Delete(ctx context.Context, id ulid.ULID) error
	List(ctx context.Context, filter Filter) ([]*Installation, error)
}

// PluginLookup resolves plugin definitions for the manager.
type PluginLookup interface {
	Get(ctx context.Context, id ulid.ULID) (*catalog.Definition, error)
}

// PublicInstallation is the redacted projection of an installation. It never
// carries configuration.
type PublicInstallation struct {
	ID               string                   `json:"id"`
	Enabled          bool                     `json:"enabled"`
	InstalledVersion string                   `json:"installedVersion"`
	Plugin           catalog.PublicDefinition `json:"plugin"`
}

// PublicEntries redacts entries for public listings.
func PublicEntries(entries []Entry) []PublicInstallation {
	out := make([]PublicInstallation, 0, len(entries))
	for _, e := range entries {
		out = append(out, PublicInstallation{
			ID:               e.Installation.ID.String(),
			Enabled:          e.Installation.Enabled,
			InstalledVersion: e.Installation.InstalledVersion,
			Plugin:           catalog.PublicView(e.Plugin),
		})
	}
	return out
}
