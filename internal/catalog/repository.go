// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package catalog

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// Filter narrows List results. Zero-valued fields do not filter.
type Filter struct {
	Status         Status
	Category       Category
	ExtensionPoint string
}

// Repository persists plugin definitions.
type Repository interface {
	Create(ctx context.Context, def *Definition) error
	Get(ctx context.Context, id ulid.ULID) (*Definition, error)
	GetByNameVersion(ctx context.Context, name, version string) (*Definition, error)
	Update(ctx context.Context, def *Definition) error
	List(ctx context.Context, filter Filter) ([]*Definition, error)
}
