// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package sandbox

import (
	"context"

	"github.com/dop251/goja"
	"github.com/samber/oops"

	"github.com/tessera-dev/tessera/internal/ui"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

// Strategy locates an extension point implementation in an executed
// module. Find returns nil when the strategy does not apply. The owning
// module is returned because registry entries may come from another run.
type Strategy struct {
	Name string
	Find func(s *Sandbox, m *Module, point string) (goja.Value, *Module)
}

// legacyNames maps extension points to the export names older bundles used.
var legacyNames = map[string][]string{
	"checkout.payment_method": {"PaymentMethod", "PaymentMethodComponent"},
	"checkout.summary":        {"CheckoutSummary"},
	"event.details.sidebar":   {"EventSidebar"},
	"dashboard.widget":        {"DashboardWidget", "Widget"},
}

// Extraction strategies in their default order.
var (
	ByExplicitMap = Strategy{Name: "explicit_map", Find: func(_ *Sandbox, m *Module, point string) (goja.Value, *Module) {
		return m.lookupPath(m.exports(), "extensionPoints", point), m
	}}
	ByDefaultExport = Strategy{Name: "default_export", Find: func(_ *Sandbox, m *Module, point string) (goja.Value, *Module) {
		return m.lookupPath(m.exports(), "default", "extensionPoints", point), m
	}}
	ByGlobalRegistry = Strategy{Name: "global_registry", Find: func(s *Sandbox, m *Module, point string) (goja.Value, *Module) {
		v, owner, ok := s.registry.Lookup(m.scope, point)
		if !ok {
			return nil, nil
		}
		return v, owner
	}}
	ByLegacyName = Strategy{Name: "legacy_name", Find: func(_ *Sandbox, m *Module, point string) (goja.Value, *Module) {
		for _, name := range legacyNames[point] {
			if v := m.lookupPath(m.exports(), name); v != nil {
				return v, m
			}
			if v := m.lookupPath(m.exports(), "default", name); v != nil {
				return v, m
			}
		}
		return nil, nil
	}}
)

// DefaultStrategies returns the extraction order: explicit map, default
// export map, global registry, legacy names.
func DefaultStrategies() []Strategy {
	return []Strategy{ByExplicitMap, ByDefaultExport, ByGlobalRegistry, ByLegacyName}
}

// lookupPath walks own properties from obj, returning nil for any missing,
// undefined or null step. Caller holds mu.
func (m *Module) lookupPath(obj *goja.Object, path ...string) goja.Value {
	var cur goja.Value = obj
	for _, key := range path {
		o, ok := cur.(*goja.Object)
		if !ok || o == nil {
			return nil
		}
		cur = o.Get(key)
		if cur == nil || goja.IsUndefined(cur) || goja.IsNull(cur) {
			return nil
		}
	}
	return cur
}

// Implementation is an extracted extension point implementation bound to
// the module whose runtime owns it.
type Implementation struct {
	module   *Module
	fn       goja.Callable
	point    string
	strategy string
}

// Module returns the owning module.
func (i *Implementation) Module() *Module { return i.module }

// PluginID is the plugin that provided the implementation.
func (i *Implementation) PluginID() string { return i.module.pluginID }

// Point is the extension point it implements.
func (i *Implementation) Point() string { return i.point }

// Strategy names the extraction strategy that found it.
func (i *Implementation) Strategy() string { return i.strategy }

// Extract finds the implementation of point in m using the configured
// strategies, first match wins.
func (s *Sandbox) Extract(m *Module, point string) (*Implementation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, st := range s.strategies {
		v, owner := st.Find(s, m, point)
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			continue
		}
		fn, ok := goja.AssertFunction(v)
		if !ok {
			return nil, oops.Code(errutil.CodeInvalidImplementation).
				With("plugin_id", m.pluginID).
				With("extension_point", point).
				With("strategy", st.Name).
				Errorf("implementation of %s is not a component", point)
		}
		return &Implementation{module: owner, fn: fn, point: point, strategy: st.Name}, nil
	}
	return nil, oops.Code(errutil.CodeExtensionPointNotImplemented).
		With("plugin_id", m.pluginID).
		With("extension_point", point).
		Errorf("plugin does not implement %s", point)
}

// Render invokes the implementation with props and converts the result to
// a ui tree. Go values in props, including functions, are exposed to the
// guest as-is. Failures carry RENDER_ERROR unless the guest surfaced a
// coded host error.
func (i *Implementation) Render(ctx context.Context, props map[string]any) (*ui.Node, error) {
	m := i.module
	m.mu.Lock()
	defer m.mu.Unlock()

	var node *ui.Node
	_, err := m.run(ctx, errutil.CodeRenderError, func() (goja.Value, error) {
		obj := m.rt.NewObject()
		for k, v := range props {
			if err := obj.Set(k, v); err != nil {
				return nil, err
			}
		}
		out, err := i.fn(goja.Undefined(), obj)
		if err != nil {
			return nil, err
		}
		node, err = m.toNode(out, 0)
		return out, err
	})
	if err != nil {
		return nil, oops.With("extension_point", i.point).Wrap(err)
	}
	return node, nil
}
