// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package catalog

import (
	"encoding/json"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/tessera-dev/tessera/pkg/errutil"
)

// Manifest represents a plugin.yaml file shipped next to a bundle.
type Manifest struct {
	Name            string         `yaml:"name" json:"name" jsonschema:"minLength=1,maxLength=64,pattern=^[a-z]([a-z0-9-]*[a-z0-9])?$"`
	Version         string         `yaml:"version" json:"version" jsonschema:"minLength=1"`
	Description     string         `yaml:"description,omitempty" json:"description,omitempty"`
	Category        Category       `yaml:"category" json:"category" jsonschema:"enum=payment,enum=notification,enum=analytics,enum=integration,enum=ui,enum=workflow"`
	Bundle          *BundleConfig  `yaml:"bundle,omitempty" json:"bundle,omitempty"`
	ExtensionPoints []string       `yaml:"extension-points" json:"extension-points" jsonschema:"minItems=1"`
	Permissions     []string       `yaml:"permissions,omitempty" json:"permissions,omitempty"`
	Metadata        map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// BundleConfig locates the plugin bundle.
type BundleConfig struct {
	Key string `yaml:"key,omitempty" json:"key,omitempty"`
	URL string `yaml:"url,omitempty" json:"url,omitempty" jsonschema:"format=uri"`
}

// ParseManifest parses a plugin.yaml file, checks it against the manifest
// schema and validates the resulting registration request.
func ParseManifest(data []byte) (*Manifest, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, oops.Code(errutil.CodeRegistrationInvalid).Wrap(err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, oops.Code(errutil.CodeRegistrationInvalid).Wrapf(err, "invalid YAML")
	}

	req, err := m.RegisterRequest()
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// RegisterRequest converts the manifest to a catalog registration.
func (m *Manifest) RegisterRequest() (RegisterRequest, error) {
	req := RegisterRequest{
		Name:            m.Name,
		Version:         m.Version,
		Description:     m.Description,
		Category:        m.Category,
		ExtensionPoints: m.ExtensionPoints,
		Permissions:     m.Permissions,
	}
	if m.Bundle != nil {
		req.BundleKey = m.Bundle.Key
		req.BundleURL = m.Bundle.URL
	}
	if len(m.Metadata) > 0 {
		meta, err := json.Marshal(convertToJSONTypes(m.Metadata))
		if err != nil {
			return RegisterRequest{}, oops.Code(errutil.CodeRegistrationInvalid).With("field", "metadata").Wrap(err)
		}
		req.Metadata = meta
	}
	return req, nil
}
