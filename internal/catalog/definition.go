// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

// Package catalog is the durable registry of plugin definitions: what a
// plugin is called, which extension points it implements, where its bundle
// lives and where it is in its lifecycle.
package catalog

import (
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/tidwall/gjson"
)

// ErrNotFound is returned by repositories when a plugin definition is not found.
var ErrNotFound = errors.New("plugin not found")

// Status is the lifecycle status of a plugin definition.
type Status string

// Lifecycle statuses. Transitions only move toward removal, except that an
// administrator may re-activate an inactive plugin.
const (
	StatusActive     Status = "active"
	StatusInactive   Status = "inactive"
	StatusDeprecated Status = "deprecated"
	StatusRemoved    Status = "removed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusDeprecated, StatusRemoved:
		return true
	}
	return false
}

// CanTransitionTo reports whether a definition in status s may move to next.
// Moving to the current status is always allowed and is a no-op.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusActive:
		return next == StatusInactive || next == StatusDeprecated || next == StatusRemoved
	case StatusInactive:
		return next == StatusActive || next == StatusDeprecated || next == StatusRemoved
	case StatusDeprecated:
		return next == StatusRemoved
	default:
		return false
	}
}

// Category groups plugins by what they do for the host.
type Category string

// Known categories.
const (
	CategoryPayment      Category = "payment"
	CategoryNotification Category = "notification"
	CategoryAnalytics    Category = "analytics"
	CategoryIntegration  Category = "integration"
	CategoryUI           Category = "ui"
	CategoryWorkflow     Category = "workflow"
)

// Categories lists every known category in display order.
func Categories() []Category {
	return []Category{
		CategoryPayment, CategoryNotification, CategoryAnalytics,
		CategoryIntegration, CategoryUI, CategoryWorkflow,
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return slices.Contains(Categories(), c)
}

// Definition is a registered plugin.
type Definition struct {
	ID              ulid.ULID       `json:"id"`
	Name            string          `json:"name"`
	Version         string          `json:"version"`
	Description     string          `json:"description,omitempty"`
	Category        Category        `json:"category"`
	BundleKey       string          `json:"bundleKey,omitempty"`
	BundleURL       string          `json:"bundleUrl,omitempty"`
	ExtensionPoints []string        `json:"extensionPoints"`
	Permissions     []string        `json:"permissions,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	Status          Status          `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Declares reports whether the definition lists the extension point.
func (d *Definition) Declares(point string) bool {
	return slices.Contains(d.ExtensionPoints, point)
}

// Installable reports whether new installations may be created.
func (d *Definition) Installable() bool {
	return d.Status == StatusActive
}

// Priority is the metadata priority used to order widgets within an area.
// Higher values render first. Missing priority is 0.
func (d *Definition) Priority() int {
	return int(gjson.GetBytes(d.Metadata, "priority").Int())
}

// DisplayName returns metadata.displayName, falling back to Name.
func (d *Definition) DisplayName() string {
	if name := gjson.GetBytes(d.Metadata, "displayName").String(); name != "" {
		return name
	}
	return d.Name
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (d *Definition) Clone() *Definition {
	c := *d
	c.ExtensionPoints = slices.Clone(d.ExtensionPoints)
	c.Permissions = slices.Clone(d.Permissions)
	c.Metadata = slices.Clone(d.Metadata)
	return &c
}

// CompareForDisplay orders definitions the way widget areas render them:
// priority descending, then name, then id.
func CompareForDisplay(a, b *Definition) int {
	if pa, pb := a.Priority(), b.Priority(); pa != pb {
		if pa > pb {
			return -1
		}
		return 1
	}
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return a.ID.Compare(b.ID)
}

// SortForDisplay sorts definitions with CompareForDisplay.
func SortForDisplay(defs []*Definition) {
	slices.SortStableFunc(defs, CompareForDisplay)
}
