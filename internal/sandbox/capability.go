// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package sandbox

import (
	"github.com/dop251/goja"
)

// Module names answered by require.
const (
	RuntimeModule = "@tessera/runtime"
	RuntimeAlias  = "react"
	UIModule      = "@tessera/ui"
	SDKModule     = "@tessera/sdk"
)

// aliases maps alternate module names to the capability they resolve to.
var aliases = map[string]string{
	RuntimeAlias: RuntimeModule,
}

// Capability produces the value require returns for one module name. It
// runs at most once per executed bundle.
type Capability func(m *Module) goja.Value

// DefaultCapabilities is the allow-list every bundle sees.
func DefaultCapabilities() map[string]Capability {
	return map[string]Capability{
		RuntimeModule: runtimeLibrary,
		UIModule:      uiPrimitives,
		SDKModule:     pluginSDK,
	}
}

// runtimeLibrary is the server-side component runtime. Hooks are inert:
// state keeps its initial value and effects never run.
func runtimeLibrary(m *Module) goja.Value {
	rt := m.rt
	lib := rt.NewObject()
	set := func(name string, v any) { _ = lib.Set(name, v) } //nolint:errcheck // fresh object

	set("createElement", m.createElement)
	set("Fragment", m.fragment)
	set("useState", func(call goja.FunctionCall) goja.Value {
		initial := call.Argument(0)
		if fn, ok := goja.AssertFunction(initial); ok {
			v, err := fn(goja.Undefined())
			if err != nil {
				panic(err)
			}
			initial = v
		}
		return rt.NewArray(initial, func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	})
	set("useEffect", noop)
	set("useLayoutEffect", noop)
	set("useMemo", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(rt.NewTypeError("useMemo expects a function"))
		}
		v, err := fn(goja.Undefined())
		if err != nil {
			panic(err)
		}
		return v
	})
	set("useCallback", func(call goja.FunctionCall) goja.Value { return call.Argument(0) })
	set("useRef", func(call goja.FunctionCall) goja.Value {
		ref := rt.NewObject()
		_ = ref.Set("current", call.Argument(0)) //nolint:errcheck // fresh object
		return ref
	})
	return lib
}

func noop(goja.FunctionCall) goja.Value { return goja.Undefined() }

// primitive is a host UI component rendered as a fixed element.
type primitive struct {
	tag   string
	class string
	attrs map[string]string
}

var primitives = map[string]primitive{
	"Box":     {tag: "div", class: "tessera-box"},
	"Text":    {tag: "span", class: "tessera-text"},
	"Button":  {tag: "button", class: "tessera-button", attrs: map[string]string{"type": "button"}},
	"Card":    {tag: "section", class: "tessera-card"},
	"Alert":   {tag: "div", class: "tessera-alert", attrs: map[string]string{"role": "alert"}},
	"Spinner": {tag: "span", class: "tessera-spinner", attrs: map[string]string{"role": "status", "aria-label": "Loading"}},
	"Badge":   {tag: "span", class: "tessera-badge"},
}

func uiPrimitives(m *Module) goja.Value {
	obj := m.rt.NewObject()
	for name, p := range primitives {
		_ = obj.Set(name, m.primitiveComponent(name, p)) //nolint:errcheck // fresh object
	}
	return obj
}

// primitiveComponent renders props onto p's element. Card renders a title
// heading and Alert appends its variant to the class list.
func (m *Module) primitiveComponent(name string, p primitive) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		rt := m.rt
		out := rt.NewObject()
		var in *goja.Object
		if v := call.Argument(0); !goja.IsUndefined(v) && !goja.IsNull(v) {
			in = v.ToObject(rt)
			for _, k := range in.Keys() {
				_ = out.Set(k, in.Get(k)) //nolint:errcheck // fresh object
			}
		}
		for k, v := range p.attrs {
			_ = out.Set(k, v) //nolint:errcheck // fresh object
		}

		class := p.class
		if in != nil {
			if name == "Alert" {
				if variant := in.Get("variant"); variant != nil && !goja.IsUndefined(variant) {
					class += " tessera-alert-" + variant.String()
				}
			}
			if extra := in.Get("className"); extra != nil && !goja.IsUndefined(extra) && extra.String() != "" {
				class += " " + extra.String()
			}
		}
		_ = out.Set("className", class) //nolint:errcheck // fresh object

		var children []goja.Value
		if in != nil {
			if name == "Card" {
				if title := in.Get("title"); title != nil && !goja.IsUndefined(title) {
					children = append(children, m.newElement(rt.ToValue("h3"),
						m.classProps("tessera-card-title"), []goja.Value{title}))
				}
			}
			if c := in.Get("children"); c != nil && !goja.IsUndefined(c) {
				children = append(children, c)
			}
		}
		_ = out.Delete("children") //nolint:errcheck // own property
		_ = out.Delete("variant")  //nolint:errcheck // own property
		if name == "Card" {
			_ = out.Delete("title") //nolint:errcheck // own property
		}
		return m.newElement(rt.ToValue(p.tag), out, children)
	}
}

func (m *Module) classProps(class string) *goja.Object {
	obj := m.rt.NewObject()
	_ = obj.Set("className", class) //nolint:errcheck // fresh object
	return obj
}

// pluginSDK exposes registerPlugin, which records extension point
// implementations for the executing plugin in the process-wide registry.
func pluginSDK(m *Module) goja.Value {
	rt := m.rt
	obj := rt.NewObject()
	_ = obj.Set("pluginId", m.pluginID) //nolint:errcheck // fresh object
	_ = obj.Set("registerPlugin", func(call goja.FunctionCall) goja.Value { //nolint:errcheck // fresh object
		v := call.Argument(0)
		if goja.IsUndefined(v) || goja.IsNull(v) {
			panic(rt.NewTypeError("registerPlugin expects an object of extension point implementations"))
		}
		src := v.ToObject(rt)
		points := make(map[string]goja.Value)
		for _, k := range src.Keys() {
			points[k] = src.Get(k)
		}
		m.sandbox.registry.Register(m.scope, m, points)
		return goja.Undefined()
	})
	return obj
}
