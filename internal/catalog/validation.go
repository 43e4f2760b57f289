// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package catalog

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/tessera-dev/tessera/pkg/errutil"
)

const maxNameLength = 64

// namePattern validates plugin names: lowercase letter first, then lowercase
// letters, digits or hyphens, never ending in a hyphen.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// extensionPointPattern validates dotted extension point names such as
// "checkout.payment_method".
var extensionPointPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)*$`)

func registrationError(field, format string, args ...any) error {
	return oops.Code(errutil.CodeRegistrationInvalid).
		With("field", field).
		Errorf(format, args...)
}

// ValidateName checks a plugin name.
func ValidateName(name string) error {
	if name == "" {
		return registrationError("name", "name is required")
	}
	if len(name) > maxNameLength {
		return registrationError("name", "name must be %d characters or less, got %d", maxNameLength, len(name))
	}
	if !namePattern.MatchString(name) {
		return registrationError("name", "name %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", name)
	}
	return nil
}

// ValidateVersion checks that version is a semantic version.
func ValidateVersion(version string) error {
	if version == "" {
		return registrationError("version", "version is required")
	}
	if _, err := semver.StrictNewVersion(strings.TrimPrefix(version, "v")); err != nil {
		return registrationError("version", "version %q is not a semantic version: %v", version, err)
	}
	return nil
}

// ValidateCategory checks that category is known.
func ValidateCategory(c Category) error {
	if c == "" {
		return registrationError("category", "category is required")
	}
	if !c.Valid() {
		return registrationError("category", "unknown category %q", c)
	}
	return nil
}

// ValidateExtensionPoints checks the ordered extension point list.
func ValidateExtensionPoints(points []string) error {
	if len(points) == 0 {
		return registrationError("extensionPoints", "at least one extension point is required")
	}
	seen := make(map[string]struct{}, len(points))
	for i, p := range points {
		if !extensionPointPattern.MatchString(p) {
			return registrationError("extensionPoints", "extension point %d (%q) is not a dotted lowercase name", i, p)
		}
		if _, dup := seen[p]; dup {
			return registrationError("extensionPoints", "extension point %q listed twice", p)
		}
		seen[p] = struct{}{}
	}
	return nil
}

// ValidatePermissions checks that every permission compiles as a capability
// glob with '.' as the segment separator.
func ValidatePermissions(perms []string) error {
	for i, p := range perms {
		if p == "" {
			return registrationError("permissions", "permission %d is empty", i)
		}
		if _, err := glob.Compile(p, '.'); err != nil {
			return registrationError("permissions", "permission %d (%q) is not a valid pattern: %v", i, p, err)
		}
	}
	return nil
}

// ValidateBundleLocation checks the optional bundle URL.
func ValidateBundleLocation(key, rawURL string) error {
	if strings.Contains(key, "..") {
		return registrationError("bundleKey", "bundle key %q must not contain '..'", key)
	}
	if rawURL == "" {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return registrationError("bundleUrl", "bundle url %q must be an absolute http(s) URL", rawURL)
	}
	return nil
}

// ValidateMetadata checks that metadata, when present, is a JSON object.
func ValidateMetadata(meta json.RawMessage) error {
	if len(meta) == 0 {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(meta, &obj); err != nil {
		return registrationError("metadata", "metadata must be a JSON object: %v", err)
	}
	return nil
}
