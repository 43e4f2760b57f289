// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package install

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tessera-dev/tessera/internal/catalog"
	"github.com/tessera-dev/tessera/internal/ids"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

// Manager implements installation lifecycle and tenant-scoped queries.
type Manager struct {
	repo    Repository
	plugins PluginLookup
	now     func() time.Time
}

// NewManager creates an installation manager.
func NewManager(repo Repository, plugins PluginLookup) *Manager {
	return &Manager{repo: repo, plugins: plugins, now: time.Now}
}

// Install creates an enabled installation with empty configuration.
func (m *Manager) Install(ctx context.Context, pluginID ulid.ULID, organizationID, userID string) (*Installation, error) {
	if strings.TrimSpace(organizationID) == "" {
		return nil, oops.Code(errutil.CodeInvalidRequest).Errorf("organizationId is required")
	}

	def, err := m.plugins.Get(ctx, pluginID)
	if err != nil {
		return nil, pluginNotFound(err, pluginID)
	}
	if !def.Installable() {
		return nil, oops.Code(errutil.CodeInvalidState).
			With("plugin_id", pluginID.String()).
			With("status", def.Status).
			Errorf("plugin %s is %s and cannot be installed", def.Name, def.Status)
	}

	existing, err := m.repo.GetByPlugin(ctx, pluginID, organizationID)
	switch {
	case err == nil && existing != nil:
		return nil, conflict(pluginID, organizationID)
	case err != nil && !errors.Is(err, ErrNotFound):
		return nil, oops.With("operation", "install plugin").With("plugin_id", pluginID.String()).Wrap(err)
	}

	now := m.now().UTC()
	inst := &Installation{
		ID:               ids.New(),
		PluginID:         pluginID,
		OrganizationID:   organizationID,
		Enabled:          true,
		Configuration:    map[string]any{},
		InstalledVersion: def.Version,
		InstalledBy:      userID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := m.repo.Create(ctx, inst); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, conflict(pluginID, organizationID)
		}
		return nil, oops.With("operation", "install plugin").With("plugin_id", pluginID.String()).Wrap(err)
	}

	slog.InfoContext(ctx, "plugin installed",
		"installation_id", inst.ID.String(),
		"plugin_id", pluginID.String(),
		"organization_id", organizationID,
		"version", inst.InstalledVersion)
	return inst, nil
}

// Uninstall hard-deletes an installation.
func (m *Manager) Uninstall(ctx context.Context, id ulid.ULID) error {
	if err := m.repo.Delete(ctx, id); err != nil {
		return installationNotFound(err, id)
	}
	slog.InfoContext(ctx, "plugin uninstalled", "installation_id", id.String())
	return nil
}

// Get returns an installation by id.
func (m *Manager) Get(ctx context.Context, id ulid.ULID) (*Installation, error) {
	inst, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, installationNotFound(err, id)
	}
	return inst, nil
}

// SetEnabled toggles the enabled flag. Setting the current value is a no-op.
func (m *Manager) SetEnabled(ctx context.Context, id ulid.ULID, enabled bool) (*Installation, error) {
	inst, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.Enabled == enabled {
		return inst, nil
	}
	inst.Enabled = enabled
	return m.save(ctx, inst)
}

// UpdateConfiguration shallow-merges patch into the configuration; keys in
// patch override existing keys.
func (m *Manager) UpdateConfiguration(ctx context.Context, id ulid.ULID, patch map[string]any) (*Installation, error) {
	inst, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.Configuration == nil {
		inst.Configuration = make(map[string]any, len(patch))
	}
	maps.Copy(inst.Configuration, patch)
	return m.save(ctx, inst)
}

// Upgrade moves InstalledVersion to the plugin's current version when the
// catalog carries a newer one. Older or equal catalog versions are a no-op.
func (m *Manager) Upgrade(ctx context.Context, id ulid.ULID) (*Installation, error) {
	inst, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	def, err := m.plugins.Get(ctx, inst.PluginID)
	if err != nil {
		return nil, pluginNotFound(err, inst.PluginID)
	}
	if !def.Installable() {
		return nil, oops.Code(errutil.CodeInvalidState).
			With("plugin_id", def.ID.String()).
			With("status", def.Status).
			Errorf("plugin %s is %s and cannot be upgraded", def.Name, def.Status)
	}
	newer, err := isNewer(def.Version, inst.InstalledVersion)
	if err != nil {
		return nil, err
	}
	if !newer {
		return inst, nil
	}
	previous := inst.InstalledVersion
	inst.InstalledVersion = def.Version
	saved, err := m.save(ctx, inst)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "installation upgraded",
		"installation_id", id.String(),
		"from", previous,
		"to", def.Version)
	return saved, nil
}

// ListByOrganization returns every installation of an organization.
func (m *Manager) ListByOrganization(ctx context.Context, organizationID string) ([]Entry, error) {
	return m.entries(ctx, Filter{OrganizationID: organizationID})
}

// ListEnabled returns the enabled installations of an organization.
func (m *Manager) ListEnabled(ctx context.Context, organizationID string) ([]Entry, error) {
	return m.entries(ctx, Filter{OrganizationID: organizationID, EnabledOnly: true})
}

// ListByCategory returns an organization's installations of one category.
// enabledOnly restricts the result to enabled installations.
func (m *Manager) ListByCategory(ctx context.Context, organizationID string, c catalog.Category, enabledOnly bool) ([]Entry, error) {
	if !c.Valid() {
		return nil, oops.Code(errutil.CodeInvalidRequest).With("category", c).Errorf("unknown category %q", c)
	}
	return m.entries(ctx, Filter{OrganizationID: organizationID, Category: c, EnabledOnly: enabledOnly})
}

// ListEnabledForExtensionPoint returns the enabled installations whose plugin
// declares point, in catalog display order.
func (m *Manager) ListEnabledForExtensionPoint(ctx context.Context, organizationID, point string) ([]Entry, error) {
	entries, err := m.entries(ctx, Filter{OrganizationID: organizationID, EnabledOnly: true, ExtensionPoint: point})
	if err != nil {
		return nil, err
	}
	// Repositories filter on the definition; re-check in case it changed
	// between the two reads.
	entries = slices.DeleteFunc(entries, func(e Entry) bool {
		return !e.Plugin.Declares(point)
	})
	return entries, nil
}

// IsEnabledFor reports whether an organization has an enabled installation
// of the plugin.
func (m *Manager) IsEnabledFor(ctx context.Context, pluginID ulid.ULID, organizationID string) (bool, error) {
	inst, err := m.repo.GetByPlugin(ctx, pluginID, organizationID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, oops.With("operation", "check installation").With("plugin_id", pluginID.String()).Wrap(err)
	}
	return inst.Enabled, nil
}

func (m *Manager) entries(ctx context.Context, filter Filter) ([]Entry, error) {
	if strings.TrimSpace(filter.OrganizationID) == "" {
		return nil, oops.Code(errutil.CodeInvalidRequest).Errorf("organizationId is required")
	}
	insts, err := m.repo.List(ctx, filter)
	if err != nil {
		return nil, oops.With("operation", "list installations").With("organization_id", filter.OrganizationID).Wrap(err)
	}

	entries := make([]Entry, 0, len(insts))
	for _, inst := range insts {
		def, err := m.plugins.Get(ctx, inst.PluginID)
		if err != nil {
			if errutil.HasCode(err, errutil.CodePluginNotFound) || errors.Is(err, catalog.ErrNotFound) {
				slog.WarnContext(ctx, "installation references missing plugin",
					"installation_id", inst.ID.String(),
					"plugin_id", inst.PluginID.String())
				continue
			}
			return nil, oops.With("operation", "resolve installed plugin").With("plugin_id", inst.PluginID.String()).Wrap(err)
		}
		entries = append(entries, Entry{Installation: inst, Plugin: def})
	}
	sortEntries(entries)
	return entries, nil
}

func (m *Manager) save(ctx context.Context, inst *Installation) (*Installation, error) {
	inst.UpdatedAt = m.now().UTC()
	if err := m.repo.Update(ctx, inst); err != nil {
		return nil, installationNotFound(err, inst.ID)
	}
	return inst, nil
}

// sortEntries orders entries by their plugin's display order.
func sortEntries(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return catalog.CompareForDisplay(a.Plugin, b.Plugin)
	})
}

func isNewer(candidate, current string) (bool, error) {
	c, err := semver.NewVersion(candidate)
	if err != nil {
		return false, oops.Code(errutil.CodeInvalidState).With("version", candidate).Wrap(err)
	}
	cur, err := semver.NewVersion(current)
	if err != nil {
		// Installed versions predating semver validation are always upgradable.
		return true, nil //nolint:nilerr // unparsable installed version
	}
	return c.GreaterThan(cur), nil
}

func conflict(pluginID ulid.ULID, organizationID string) error {
	return oops.Code(errutil.CodeInstallationConflict).
		With("plugin_id", pluginID.String()).
		With("organization_id", organizationID).
		Wrap(ErrConflict)
}

func pluginNotFound(err error, id ulid.ULID) error {
	if errors.Is(err, catalog.ErrNotFound) || errutil.HasCode(err, errutil.CodePluginNotFound) {
		return oops.Code(errutil.CodePluginNotFound).With("plugin_id", id.String()).Wrap(err)
	}
	return oops.With("plugin_id", id.String()).Wrap(err)
}

func installationNotFound(err error, id ulid.ULID) error {
	if errors.Is(err, ErrNotFound) {
		return oops.Code(errutil.CodeInstallationNotFound).With("installation_id", id.String()).Wrap(err)
	}
	return oops.With("installation_id", id.String()).Wrap(err)
}
