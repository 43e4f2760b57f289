// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package catalog

import (
	"encoding/json"
	"strings"

	"github.com/samber/oops"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/tessera-dev/tessera/pkg/errutil"
)

// publicMetadataPaths is the curated subset of metadata that unauthenticated
// callers may see. Everything else stays administrative.
var publicMetadataPaths = []string{
	"displayName",
	"author",
	"icon",
	"priority",
	"homepage",
	"payment.methods",
	"payment.currencies",
}

// PublicDefinition is the redacted projection served to non-administrative
// callers.
type PublicDefinition struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Version         string          `json:"version"`
	Description     string          `json:"description,omitempty"`
	Category        Category        `json:"category"`
	ExtensionPoints []string        `json:"extensionPoints"`
	Metadata        json.RawMessage `json:"metadata"`
}

// PublicView redacts a definition for public listings.
func PublicView(def *Definition) PublicDefinition {
	return PublicDefinition{
		ID:              def.ID.String(),
		Name:            def.Name,
		Version:         def.Version,
		Description:     def.Description,
		Category:        def.Category,
		ExtensionPoints: append([]string(nil), def.ExtensionPoints...),
		Metadata:        CuratedMetadata(def.Metadata),
	}
}

// PublicViews redacts a list of definitions.
func PublicViews(defs []*Definition) []PublicDefinition {
	out := make([]PublicDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, PublicView(d))
	}
	return out
}

// CuratedMetadata copies only the public metadata paths into a new object.
func CuratedMetadata(meta json.RawMessage) json.RawMessage {
	out := []byte(`{}`)
	if len(meta) == 0 {
		return out
	}
	for _, path := range publicMetadataPaths {
		r := gjson.GetBytes(meta, path)
		if !r.Exists() {
			continue
		}
		next, err := sjson.SetRawBytes(out, path, []byte(r.Raw))
		if err != nil {
			continue
		}
		out = next
	}
	return out
}

// MergeMetadata shallow-merges patch into base: top-level keys of patch
// replace those of base.
func MergeMetadata(base, patch json.RawMessage) (json.RawMessage, error) {
	out := []byte(normalizeMetadata(base))
	var mergeErr error
	gjson.ParseBytes(patch).ForEach(func(key, value gjson.Result) bool {
		next, err := sjson.SetRawBytes(out, escapePathKey(key.String()), []byte(value.Raw))
		if err != nil {
			mergeErr = err
			return false
		}
		out = next
		return true
	})
	if mergeErr != nil {
		return nil, oops.Code(errutil.CodeInvalidRequest).With("operation", "merge metadata").Wrap(mergeErr)
	}
	return out, nil
}

func normalizeMetadata(meta json.RawMessage) json.RawMessage {
	if len(meta) == 0 || !gjson.ValidBytes(meta) {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), meta...)
}

var pathEscaper = strings.NewReplacer(
	`\`, `\\`,
	`.`, `\.`,
	`*`, `\*`,
	`?`, `\?`,
	`|`, `\|`,
	`#`, `\#`,
	`@`, `\@`,
	`:`, `\:`,
)

// escapePathKey makes a literal object key safe to use as an sjson path.
func escapePathKey(key string) string {
	return pathEscaper.Replace(key)
}
