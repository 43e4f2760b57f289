// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tessera-dev/tessera/internal/catalog"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

const pluginColumns = `id, name, version, description, category, bundle_key, bundle_url,
	extension_points, permissions, metadata, status, created_at, updated_at`

// PluginRepository implements catalog.Repository using PostgreSQL.
type PluginRepository struct {
	db DB
}

// NewPluginRepository creates a new PluginRepository.
func NewPluginRepository(db DB) *PluginRepository {
	return &PluginRepository{db: db}
}

// Create persists a new plugin definition.
func (r *PluginRepository) Create(ctx context.Context, def *catalog.Definition) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO plugins (`+pluginColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, def.ID.String(), def.Name, def.Version, def.Description, string(def.Category),
		def.BundleKey, def.BundleURL, def.ExtensionPoints, nonNilStrings(def.Permissions),
		metadataOrEmpty(def.Metadata), string(def.Status), def.CreatedAt, def.UpdatedAt)
	if isUniqueViolation(err) {
		return oops.Code(errutil.CodeRegistrationInvalid).
			With("name", def.Name).With("version", def.Version).
			Errorf("plugin %s@%s is already registered", def.Name, def.Version)
	}
	if err != nil {
		return oops.With("operation", "create plugin").With("id", def.ID.String()).Wrap(err)
	}
	return nil
}

// Get retrieves a plugin definition by ID.
func (r *PluginRepository) Get(ctx context.Context, id ulid.ULID) (*catalog.Definition, error) {
	row := r.db.QueryRow(ctx, `SELECT `+pluginColumns+` FROM plugins WHERE id = $1`, id.String())
	def, err := scanPlugin(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(errutil.CodePluginNotFound).With("id", id.String()).Wrap(catalog.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get plugin").With("id", id.String()).Wrap(err)
	}
	return def, nil
}

// GetByNameVersion retrieves a plugin definition by its unique name and version.
func (r *PluginRepository) GetByNameVersion(ctx context.Context, name, version string) (*catalog.Definition, error) {
	row := r.db.QueryRow(ctx, `SELECT `+pluginColumns+` FROM plugins WHERE name = $1 AND version = $2`, name, version)
	def, err := scanPlugin(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(errutil.CodePluginNotFound).
			With("name", name).With("version", version).Wrap(catalog.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get plugin by name").With("name", name).Wrap(err)
	}
	return def, nil
}

// Update rewrites the mutable columns of a plugin definition.
func (r *PluginRepository) Update(ctx context.Context, def *catalog.Definition) error {
	result, err := r.db.Exec(ctx, `
		UPDATE plugins SET description = $2, bundle_key = $3, bundle_url = $4,
		extension_points = $5, permissions = $6, metadata = $7, status = $8, updated_at = $9
		WHERE id = $1
	`, def.ID.String(), def.Description, def.BundleKey, def.BundleURL, def.ExtensionPoints,
		nonNilStrings(def.Permissions), metadataOrEmpty(def.Metadata), string(def.Status), def.UpdatedAt)
	if err != nil {
		return oops.With("operation", "update plugin").With("id", def.ID.String()).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(errutil.CodePluginNotFound).With("id", def.ID.String()).Wrap(catalog.ErrNotFound)
	}
	return nil
}

// List returns plugin definitions matching filter, ordered by name then version.
func (r *PluginRepository) List(ctx context.Context, filter catalog.Filter) ([]*catalog.Definition, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, string(filter.Category))
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.ExtensionPoint != "" {
		args = append(args, filter.ExtensionPoint)
		conds = append(conds, fmt.Sprintf("$%d = ANY(extension_points)", len(args)))
	}

	query := `SELECT ` + pluginColumns + ` FROM plugins`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY name, version`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, oops.With("operation", "list plugins").Wrap(err)
	}
	defer rows.Close()

	var defs []*catalog.Definition
	for rows.Next() {
		def, err := scanPlugin(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate plugins").Wrap(err)
	}
	return defs, nil
}

func scanPlugin(row pgx.Row) (*catalog.Definition, error) {
	var (
		def      catalog.Definition
		idStr    string
		category string
		status   string
		metadata []byte
	)
	err := row.Scan(&idStr, &def.Name, &def.Version, &def.Description, &category,
		&def.BundleKey, &def.BundleURL, &def.ExtensionPoints, &def.Permissions,
		&metadata, &status, &def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, oops.With("operation", "scan plugin").Wrap(err)
	}
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.With("operation", "parse plugin id").With("id", idStr).Wrap(err)
	}
	def.ID = id
	def.Category = catalog.Category(category)
	def.Status = catalog.Status(status)
	def.Metadata = metadata
	return &def, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func metadataOrEmpty(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}
