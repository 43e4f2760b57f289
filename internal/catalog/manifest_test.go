// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-dev/tessera/pkg/errutil"
)

const validManifest = `
name: event-sidebar
version: 1.0.0
description: Shows attendee notes next to an event
category: ui
bundle:
  url: https://cdn.example.com/event-sidebar.js
extension-points:
  - event.details.sidebar
permissions:
  - events.read
metadata:
  displayName: Event Notes
  priority: 2
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(validManifest))
	require.NoError(t, err)
	assert.Equal(t, "event-sidebar", m.Name)
	assert.Equal(t, []string{"event.details.sidebar"}, m.ExtensionPoints)

	req, err := m.RegisterRequest()
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/event-sidebar.js", req.BundleURL)
	assert.JSONEq(t, `{"displayName":"Event Notes","priority":2}`, string(req.Metadata))
}

func TestParseManifest_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"missing extension points", "name: a\nversion: 1.0.0\ncategory: ui\n"},
		{"bad category", "name: a\nversion: 1.0.0\ncategory: games\nextension-points: [x.y]\n"},
		{"bad version", "name: a\nversion: one\ncategory: ui\nextension-points: [x.y]\n"},
		{"not yaml", "name: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.manifest))
			errutil.AssertErrorCode(t, err, errutil.CodeRegistrationInvalid)
		})
	}
}

func TestGenerateSchema(t *testing.T) {
	data, err := GenerateSchema()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"extension-points"`)
	assert.Contains(t, string(data), SchemaID)
}
