// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package sandbox

import (
	"strconv"

	"github.com/dop251/goja"
	"github.com/samber/oops"

	"github.com/tessera-dev/tessera/internal/ui"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

// maxRenderDepth bounds component nesting during render.
const maxRenderDepth = 128

// element is the opaque value createElement returns to the guest.
type element struct {
	typ      goja.Value
	props    *goja.Object
	children []goja.Value
}

func (m *Module) newElement(typ goja.Value, props *goja.Object, children []goja.Value) goja.Value {
	return m.rt.ToValue(&element{typ: typ, props: props, children: children})
}

// createElement(type, props, ...children).
func (m *Module) createElement(call goja.FunctionCall) goja.Value {
	typ := call.Argument(0)
	if goja.IsUndefined(typ) || goja.IsNull(typ) {
		panic(m.rt.NewTypeError("createElement: type is required"))
	}
	var props *goja.Object
	if p := call.Argument(1); !goja.IsUndefined(p) && !goja.IsNull(p) {
		props = p.ToObject(m.rt)
	}
	var children []goja.Value
	if len(call.Arguments) > 2 {
		children = append(children, call.Arguments[2:]...)
	}
	return m.newElement(typ, props, children)
}

// toNode converts a guest render result to a ui tree, invoking function
// components along the way. Caller holds mu and runs inside run.
func (m *Module) toNode(v goja.Value, depth int) (*ui.Node, error) {
	if depth > maxRenderDepth {
		return nil, oops.Code(errutil.CodeRenderError).With("plugin_id", m.pluginID).Errorf("component tree exceeds depth %d", maxRenderDepth)
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	if obj, ok := v.(*goja.Object); ok {
		if obj.ClassName() == "Array" {
			return m.arrayNode(obj, depth)
		}
		if el, ok := obj.Export().(*element); ok {
			return m.elementNode(el, depth)
		}
		return nil, oops.Code(errutil.CodeRenderError).
			With("plugin_id", m.pluginID).
			Errorf("objects are not valid as a child (found %s)", obj.ClassName())
	}
	switch x := v.Export().(type) {
	case bool:
		return nil, nil
	case string:
		return ui.Text(x), nil
	case int64:
		return ui.Text(strconv.FormatInt(x, 10)), nil
	case float64:
		return ui.Text(v.String()), nil
	default:
		return ui.Text(v.String()), nil
	}
}

func (m *Module) arrayNode(arr *goja.Object, depth int) (*ui.Node, error) {
	n := int(arr.Get("length").ToInteger())
	children := make([]*ui.Node, 0, n)
	for i := range n {
		c, err := m.toNode(arr.Get(strconv.Itoa(i)), depth+1)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	return ui.Fragment(children...), nil
}

func (m *Module) childNodes(el *element, depth int) ([]*ui.Node, error) {
	children := el.children
	if len(children) == 0 && el.props != nil {
		if c := el.props.Get("children"); c != nil && !goja.IsUndefined(c) {
			children = []goja.Value{c}
		}
	}
	out := make([]*ui.Node, 0, len(children))
	for _, c := range children {
		n, err := m.toNode(c, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (m *Module) elementNode(el *element, depth int) (*ui.Node, error) {
	if el.typ.SameAs(m.fragment) {
		children, err := m.childNodes(el, depth)
		if err != nil {
			return nil, err
		}
		return ui.Fragment(children...), nil
	}

	if fn, ok := goja.AssertFunction(el.typ); ok {
		out, err := fn(goja.Undefined(), m.componentProps(el))
		if err != nil {
			return nil, err
		}
		return m.toNode(out, depth+1)
	}

	tag, ok := el.typ.Export().(string)
	if !ok || tag == "" {
		return nil, oops.Code(errutil.CodeRenderError).
			With("plugin_id", m.pluginID).
			Errorf("invalid element type %s", el.typ.String())
	}
	var attrs []ui.Attr
	if el.props != nil {
		if props, ok := el.props.Export().(map[string]any); ok {
			attrs = ui.AttrsFromProps(props)
		}
	}
	children, err := m.childNodes(el, depth)
	if err != nil {
		return nil, err
	}
	return ui.Element(tag, attrs, children...), nil
}

// componentProps copies element props into a fresh object and attaches
// positional children the way function components expect them.
func (m *Module) componentProps(el *element) *goja.Object {
	props := m.rt.NewObject()
	if el.props != nil {
		for _, k := range el.props.Keys() {
			_ = props.Set(k, el.props.Get(k)) //nolint:errcheck // fresh object
		}
	}
	switch len(el.children) {
	case 0:
	case 1:
		_ = props.Set("children", el.children[0]) //nolint:errcheck // fresh object
	default:
		_ = props.Set("children", m.rt.NewArray(valuesToAny(el.children)...)) //nolint:errcheck // fresh object
	}
	return props
}

func valuesToAny(vs []goja.Value) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}
