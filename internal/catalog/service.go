// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tessera-dev/tessera/internal/ids"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

// RegisterRequest carries the administrator-supplied fields of a new plugin.
type RegisterRequest struct {
	Name            string          `json:"name"`
	Version         string          `json:"version"`
	Description     string          `json:"description,omitempty"`
	Category        Category        `json:"category"`
	BundleKey       string          `json:"bundleKey,omitempty"`
	BundleURL       string          `json:"bundleUrl,omitempty"`
	ExtensionPoints []string        `json:"extensionPoints"`
	Permissions     []string        `json:"permissions,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
}

// Validate checks the required fields: name, version, category and
// extension points.
func (r *RegisterRequest) Validate() error {
	if err := ValidateName(r.Name); err != nil {
		return err
	}
	if err := ValidateVersion(r.Version); err != nil {
		return err
	}
	if err := ValidateCategory(r.Category); err != nil {
		return err
	}
	if err := ValidateExtensionPoints(r.ExtensionPoints); err != nil {
		return err
	}
	if err := ValidatePermissions(r.Permissions); err != nil {
		return err
	}
	if err := ValidateBundleLocation(r.BundleKey, r.BundleURL); err != nil {
		return err
	}
	return ValidateMetadata(r.Metadata)
}

// UpdateRequest is a partial update. Nil fields are left unchanged; Metadata
// is shallow-merged into the existing metadata.
type UpdateRequest struct {
	Version         *string         `json:"version,omitempty"`
	Description     *string         `json:"description,omitempty"`
	BundleKey       *string         `json:"bundleKey,omitempty"`
	BundleURL       *string         `json:"bundleUrl,omitempty"`
	ExtensionPoints []string        `json:"extensionPoints,omitempty"`
	Permissions     []string        `json:"permissions,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	Status          *Status         `json:"status,omitempty"`
}

// Service implements the catalog operations on top of a Repository.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a catalog service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Register validates and persists a new active plugin definition.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Definition, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByNameVersion(ctx, req.Name, req.Version)
	switch {
	case err == nil && existing != nil:
		return nil, registrationError("version", "plugin %s@%s is already registered", req.Name, req.Version)
	case err != nil && !errors.Is(err, ErrNotFound):
		return nil, oops.With("operation", "register plugin").With("name", req.Name).Wrap(err)
	}

	now := s.now().UTC()
	def := &Definition{
		ID:              ids.New(),
		Name:            req.Name,
		Version:         req.Version,
		Description:     req.Description,
		Category:        req.Category,
		BundleKey:       req.BundleKey,
		BundleURL:       req.BundleURL,
		ExtensionPoints: slices.Clone(req.ExtensionPoints),
		Permissions:     slices.Clone(req.Permissions),
		Metadata:        normalizeMetadata(req.Metadata),
		Status:          StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, def); err != nil {
		return nil, oops.With("operation", "register plugin").With("name", req.Name).Wrap(err)
	}

	slog.InfoContext(ctx, "plugin registered",
		"plugin_id", def.ID.String(),
		"plugin", def.Name,
		"version", def.Version,
		"category", string(def.Category))
	return def, nil
}

// Get returns a definition by id.
func (s *Service) Get(ctx context.Context, id ulid.ULID) (*Definition, error) {
	def, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, notFound(err, id)
	}
	return def, nil
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id ulid.ULID, req UpdateRequest) (*Definition, error) {
	def, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Version != nil {
		if err := ValidateVersion(*req.Version); err != nil {
			return nil, err
		}
		def.Version = *req.Version
	}
	if req.Description != nil {
		def.Description = *req.Description
	}
	if req.BundleKey != nil || req.BundleURL != nil {
		key, u := def.BundleKey, def.BundleURL
		if req.BundleKey != nil {
			key = *req.BundleKey
		}
		if req.BundleURL != nil {
			u = *req.BundleURL
		}
		if err := ValidateBundleLocation(key, u); err != nil {
			return nil, err
		}
		def.BundleKey, def.BundleURL = key, u
	}
	if req.ExtensionPoints != nil {
		if err := ValidateExtensionPoints(req.ExtensionPoints); err != nil {
			return nil, err
		}
		def.ExtensionPoints = slices.Clone(req.ExtensionPoints)
	}
	if req.Permissions != nil {
		if err := ValidatePermissions(req.Permissions); err != nil {
			return nil, err
		}
		def.Permissions = slices.Clone(req.Permissions)
	}
	if len(req.Metadata) > 0 {
		if err := ValidateMetadata(req.Metadata); err != nil {
			return nil, err
		}
		merged, err := MergeMetadata(def.Metadata, req.Metadata)
		if err != nil {
			return nil, err
		}
		def.Metadata = merged
	}
	if req.Status != nil {
		if err := checkTransition(def, *req.Status); err != nil {
			return nil, err
		}
		def.Status = *req.Status
	}

	def.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, def); err != nil {
		return nil, notFound(err, id)
	}
	return def, nil
}

// Deprecate marks a plugin deprecated. Idempotent.
func (s *Service) Deprecate(ctx context.Context, id ulid.ULID) (*Definition, error) {
	return s.transition(ctx, id, StatusDeprecated)
}

// Remove marks a plugin removed. The row is kept; removed plugins only stop
// accepting new installations. Idempotent.
func (s *Service) Remove(ctx context.Context, id ulid.ULID) (*Definition, error) {
	return s.transition(ctx, id, StatusRemoved)
}

func (s *Service) transition(ctx context.Context, id ulid.ULID, next Status) (*Definition, error) {
	def, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if def.Status == next {
		return def, nil
	}
	if err := checkTransition(def, next); err != nil {
		return nil, err
	}
	previous := def.Status
	def.Status = next
	def.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, def); err != nil {
		return nil, notFound(err, id)
	}
	slog.InfoContext(ctx, "plugin status changed",
		"plugin_id", id.String(),
		"from", string(previous),
		"to", string(next))
	return def, nil
}

// List returns definitions, optionally restricted to one status.
func (s *Service) List(ctx context.Context, status Status) ([]*Definition, error) {
	if status != "" && !status.Valid() {
		return nil, oops.Code(errutil.CodeInvalidRequest).With("status", status).Errorf("unknown status %q", status)
	}
	defs, err := s.repo.List(ctx, Filter{Status: status})
	if err != nil {
		return nil, oops.With("operation", "list plugins").Wrap(err)
	}
	return defs, nil
}

// ListByCategory returns every definition in a category.
func (s *Service) ListByCategory(ctx context.Context, c Category) ([]*Definition, error) {
	if !c.Valid() {
		return nil, oops.Code(errutil.CodeInvalidRequest).With("category", c).Errorf("unknown category %q", c)
	}
	defs, err := s.repo.List(ctx, Filter{Category: c})
	if err != nil {
		return nil, oops.With("operation", "list plugins by category").Wrap(err)
	}
	return defs, nil
}

// ListByExtensionPoint returns every definition declaring the extension point.
func (s *Service) ListByExtensionPoint(ctx context.Context, point string) ([]*Definition, error) {
	defs, err := s.repo.List(ctx, Filter{ExtensionPoint: point})
	if err != nil {
		return nil, oops.With("operation", "list plugins by extension point").Wrap(err)
	}
	return defs, nil
}

func checkTransition(def *Definition, next Status) error {
	if !next.Valid() {
		return oops.Code(errutil.CodeInvalidRequest).With("status", next).Errorf("unknown status %q", next)
	}
	if !def.Status.CanTransitionTo(next) {
		return oops.Code(errutil.CodeInvalidState).
			With("plugin_id", def.ID.String()).
			With("from", def.Status).
			With("to", next).
			Errorf("plugin cannot move from %s to %s", def.Status, next)
	}
	return nil
}

func notFound(err error, id ulid.ULID) error {
	if errors.Is(err, ErrNotFound) {
		return oops.Code(errutil.CodePluginNotFound).With("plugin_id", id.String()).Wrap(err)
	}
	return oops.With("plugin_id", id.String()).Wrap(err)
}
