// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

// Package capability decides which host capabilities a plugin may use.
//
// Grants are the glob patterns listed in a plugin definition's permissions,
// compiled with gobwas/glob using '.' as the segment separator:
//   - '*' matches one segment: "proxy.payments.*" matches "proxy.payments.refund"
//   - '**' matches any number of segments: "proxy.**" matches "proxy.payments.intent.create"
package capability

import (
	"slices"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/tessera-dev/tessera/internal/catalog"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

// ProxyPrefix namespaces the capability required for api.invoke: calling
// method m needs a grant matching "proxy.<m>".
const ProxyPrefix = "proxy."

type compiledGrant struct {
	pattern string
	glob    glob.Glob
}

// Enforcer checks plugin capabilities. Safe for concurrent use; the zero
// value is ready to use.
type Enforcer struct {
	mu     sync.RWMutex
	grants map[string][]compiledGrant
}

// NewEnforcer creates an Enforcer.
func NewEnforcer() *Enforcer {
	return &Enforcer{grants: make(map[string][]compiledGrant)}
}

// SetGrants replaces the grants of pluginID. Either every pattern compiles
// and the grants are replaced, or nothing changes.
func (e *Enforcer) SetGrants(pluginID string, patterns []string) error {
	if pluginID == "" {
		return oops.Code(errutil.CodeInvalidRequest).Errorf("plugin id cannot be empty")
	}
	compiled := make([]compiledGrant, 0, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" {
			return oops.Code(errutil.CodeInvalidRequest).With("plugin_id", pluginID).Errorf("grant %d is empty", i)
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return oops.Code(errutil.CodeInvalidRequest).
				With("plugin_id", pluginID).With("pattern", pattern).
				Wrapf(err, "grant %d", i)
		}
		compiled = append(compiled, compiledGrant{pattern: pattern, glob: g})
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.grants == nil {
		e.grants = make(map[string][]compiledGrant)
	}
	e.grants[pluginID] = compiled
	return nil
}

// GrantDefinition loads the permissions of def.
func (e *Enforcer) GrantDefinition(def *catalog.Definition) error {
	return e.SetGrants(def.ID.String(), def.Permissions)
}

// RemoveGrants forgets pluginID.
func (e *Enforcer) RemoveGrants(pluginID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.grants, pluginID)
}

// Grants returns a copy of the patterns granted to pluginID, nil if unknown.
func (e *Enforcer) Grants(pluginID string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	grants, ok := e.grants[pluginID]
	if !ok {
		return nil
	}
	patterns := make([]string, len(grants))
	for i, g := range grants {
		patterns[i] = g.pattern
	}
	return patterns
}

// Check reports whether pluginID holds capability. Unknown plugins and empty
// capabilities are denied.
func (e *Enforcer) Check(pluginID, capability string) bool {
	if capability == "" {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.ContainsFunc(e.grants[pluginID], func(g compiledGrant) bool {
		return g.glob.Match(capability)
	})
}

// Require is Check returning a CAPABILITY_DENIED error.
func (e *Enforcer) Require(pluginID, capability string) error {
	if e.Check(pluginID, capability) {
		return nil
	}
	return oops.Code(errutil.CodeCapabilityDenied).
		With("plugin_id", pluginID).
		With("capability", capability).
		Errorf("plugin lacks capability %q", capability)
}

// RequireProxy checks the grant needed to invoke method through the proxy.
func (e *Enforcer) RequireProxy(pluginID, method string) error {
	return e.Require(pluginID, ProxyPrefix+method)
}
