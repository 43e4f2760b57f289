// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package catalog

import (
	"encoding/json"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCuratedMetadata_DropsPrivateKeys(t *testing.T) {
	meta := json.RawMessage(`{
		"displayName": "Stripe",
		"secretKey": "sk_live_123",
		"payment": {"methods": ["card"], "webhookSecret": "whsec"},
		"priority": 4
	}`)

	out := CuratedMetadata(meta)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "Stripe", got["displayName"])
	assert.NotContains(t, got, "secretKey")
	payment, ok := got["payment"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"card"}, payment["methods"])
	assert.NotContains(t, payment, "webhookSecret")
}

func TestCuratedMetadata_Empty(t *testing.T) {
	assert.JSONEq(t, `{}`, string(CuratedMetadata(nil)))
}

func TestMergeMetadata(t *testing.T) {
	merged, err := MergeMetadata(
		json.RawMessage(`{"a":1,"nested":{"x":1}}`),
		json.RawMessage(`{"nested":{"y":2},"b":"two","dotted.key":true}`),
	)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"nested":{"y":2},"b":"two","dotted.key":true}`, string(merged))
}

func TestPublicView(t *testing.T) {
	def := &Definition{
		ID:              ulid.Make(),
		Name:            "stripe",
		Version:         "1.0.0",
		Category:        CategoryPayment,
		BundleURL:       "https://cdn.example.com/stripe.js",
		ExtensionPoints: []string{"checkout.payment_method"},
		Metadata:        json.RawMessage(`{"apiKey":"secret","author":"Acme"}`),
	}
	view := PublicView(def)
	assert.Equal(t, def.ID.String(), view.ID)
	assert.JSONEq(t, `{"author":"Acme"}`, string(view.Metadata))

	raw, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "cdn.example.com")
	assert.NotContains(t, string(raw), "secret")
}

func TestSortForDisplay(t *testing.T) {
	low := &Definition{ID: ulid.Make(), Name: "alpha", Metadata: json.RawMessage(`{"priority":1}`)}
	high := &Definition{ID: ulid.Make(), Name: "zulu", Metadata: json.RawMessage(`{"priority":9}`)}
	none := &Definition{ID: ulid.Make(), Name: "beta"}

	defs := []*Definition{none, low, high}
	SortForDisplay(defs)
	assert.Equal(t, []string{"zulu", "alpha", "beta"}, []string{defs[0].Name, defs[1].Name, defs[2].Name})
}
