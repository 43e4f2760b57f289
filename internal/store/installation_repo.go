// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tessera-dev/tessera/internal/install"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

const installationColumns = `i.id, i.plugin_id, i.organization_id, i.enabled, i.configuration,
	i.installed_version, i.installed_by, i.created_at, i.updated_at`

// InstallationRepository implements install.Repository using PostgreSQL.
type InstallationRepository struct {
	db DB
}

// NewInstallationRepository creates a new InstallationRepository.
func NewInstallationRepository(db DB) *InstallationRepository {
	return &InstallationRepository{db: db}
}

// Create persists a new installation. A second installation of the same
// plugin for the same organization yields install.ErrConflict.
func (r *InstallationRepository) Create(ctx context.Context, inst *install.Installation) error {
	config, err := marshalConfiguration(inst.Configuration)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO plugin_installations (id, plugin_id, organization_id, enabled, configuration,
			installed_version, installed_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, inst.ID.String(), inst.PluginID.String(), inst.OrganizationID, inst.Enabled, config,
		inst.InstalledVersion, inst.InstalledBy, inst.CreatedAt, inst.UpdatedAt)
	if isUniqueViolation(err) {
		return oops.Code(errutil.CodeInstallationConflict).
			With("plugin_id", inst.PluginID.String()).
			With("organization_id", inst.OrganizationID).
			Wrap(install.ErrConflict)
	}
	if err != nil {
		return oops.With("operation", "create installation").With("id", inst.ID.String()).Wrap(err)
	}
	return nil
}

// Get retrieves an installation by ID.
func (r *InstallationRepository) Get(ctx context.Context, id ulid.ULID) (*install.Installation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+installationColumns+` FROM plugin_installations i WHERE i.id = $1`, id.String())
	inst, err := scanInstallation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(errutil.CodeInstallationNotFound).With("id", id.String()).Wrap(install.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get installation").With("id", id.String()).Wrap(err)
	}
	return inst, nil
}

// GetByPlugin retrieves the installation of a plugin for an organization.
func (r *InstallationRepository) GetByPlugin(ctx context.Context, pluginID ulid.ULID, organizationID string) (*install.Installation, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+installationColumns+` FROM plugin_installations i
		WHERE i.plugin_id = $1 AND i.organization_id = $2
	`, pluginID.String(), organizationID)
	inst, err := scanInstallation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(errutil.CodeInstallationNotFound).
			With("plugin_id", pluginID.String()).
			With("organization_id", organizationID).
			Wrap(install.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get installation by plugin").With("plugin_id", pluginID.String()).Wrap(err)
	}
	return inst, nil
}

// Update rewrites the mutable columns of an installation.
func (r *InstallationRepository) Update(ctx context.Context, inst *install.Installation) error {
	config, err := marshalConfiguration(inst.Configuration)
	if err != nil {
		return err
	}
	result, err := r.db.Exec(ctx, `
		UPDATE plugin_installations SET enabled = $2, configuration = $3,
		installed_version = $4, updated_at = $5
		WHERE id = $1
	`, inst.ID.String(), inst.Enabled, config, inst.InstalledVersion, inst.UpdatedAt)
	if err != nil {
		return oops.With("operation", "update installation").With("id", inst.ID.String()).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(errutil.CodeInstallationNotFound).With("id", inst.ID.String()).Wrap(install.ErrNotFound)
	}
	return nil
}

// Delete removes an installation by ID.
func (r *InstallationRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM plugin_installations WHERE id = $1`, id.String())
	if err != nil {
		return oops.With("operation", "delete installation").With("id", id.String()).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(errutil.CodeInstallationNotFound).With("id", id.String()).Wrap(install.ErrNotFound)
	}
	return nil
}

// List returns installations matching filter. Category and extension point
// filters join against the plugin catalog.
func (r *InstallationRepository) List(ctx context.Context, filter install.Filter) ([]*install.Installation, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.OrganizationID != "" {
		add("i.organization_id = $%d", filter.OrganizationID)
	}
	if filter.PluginID != nil {
		add("i.plugin_id = $%d", filter.PluginID.String())
	}
	if filter.EnabledOnly {
		conds = append(conds, "i.enabled")
	}
	if filter.Category != "" {
		add("p.category = $%d", string(filter.Category))
	}
	if filter.ExtensionPoint != "" {
		add("$%d = ANY(p.extension_points)", filter.ExtensionPoint)
	}

	query := `SELECT ` + installationColumns + ` FROM plugin_installations i
		JOIN plugins p ON p.id = i.plugin_id`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY i.created_at, i.id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, oops.With("operation", "list installations").Wrap(err)
	}
	defer rows.Close()

	var insts []*install.Installation
	for rows.Next() {
		inst, err := scanInstallation(rows)
		if err != nil {
			return nil, err
		}
		insts = append(insts, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate installations").Wrap(err)
	}
	return insts, nil
}

func scanInstallation(row pgx.Row) (*install.Installation, error) {
	var (
		inst              install.Installation
		idStr, pluginStr  string
		configurationJSON []byte
	)
	err := row.Scan(&idStr, &pluginStr, &inst.OrganizationID, &inst.Enabled, &configurationJSON,
		&inst.InstalledVersion, &inst.InstalledBy, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, oops.With("operation", "scan installation").Wrap(err)
	}
	if inst.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.With("operation", "parse installation id").With("id", idStr).Wrap(err)
	}
	if inst.PluginID, err = ulid.Parse(pluginStr); err != nil {
		return nil, oops.With("operation", "parse plugin id").With("plugin_id", pluginStr).Wrap(err)
	}
	inst.Configuration = map[string]any{}
	if len(configurationJSON) > 0 {
		if err := json.Unmarshal(configurationJSON, &inst.Configuration); err != nil {
			return nil, oops.With("operation", "decode configuration").With("id", idStr).Wrap(err)
		}
	}
	return &inst, nil
}

func marshalConfiguration(config map[string]any) ([]byte, error) {
	if config == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(config)
	if err != nil {
		return nil, oops.Code(errutil.CodeInvalidRequest).With("operation", "encode configuration").Wrap(err)
	}
	return data, nil
}
