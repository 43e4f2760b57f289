// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

// Package ui is the host-side representation of rendered widget output: a
// small node tree produced by plugin components and written out as HTML
// through a tag and attribute allow-list.
package ui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind distinguishes node types.
type Kind uint8

// Node kinds.
const (
	TextNode Kind = iota
	ElementNode
	FragmentNode
)

// Attr is one HTML attribute.
type Attr struct {
	Key string
	Val string
}

// Node is one rendered node. Fragments only group children.
type Node struct {
	Kind     Kind
	Tag      string
	Text     string
	Attrs    []Attr
	Children []*Node
}

// Text returns a text node.
func Text(s string) *Node {
	return &Node{Kind: TextNode, Text: s}
}

// Element returns an element node. nil children are skipped.
func Element(tag string, attrs []Attr, children ...*Node) *Node {
	return &Node{Kind: ElementNode, Tag: strings.ToLower(tag), Attrs: attrs, Children: compact(children)}
}

// Fragment groups children without a wrapping element.
func Fragment(children ...*Node) *Node {
	return &Node{Kind: FragmentNode, Children: compact(children)}
}

// Attrs builds attributes from alternating key/value pairs.
func Attrs(kv ...string) []Attr {
	attrs := make([]Attr, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, Attr{Key: kv[i], Val: kv[i+1]})
	}
	return attrs
}

// Get returns the value of the named attribute.
func (n *Node) Get(key string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// TextContent concatenates every text node below n.
func (n *Node) TextContent() string {
	if n == nil {
		return ""
	}
	if n.Kind == TextNode {
		return n.Text
	}
	var b strings.Builder
	for _, c := range n.Children {
		b.WriteString(c.TextContent())
	}
	return b.String()
}

var propAliases = map[string]string{
	"className": "class",
	"htmlFor":   "for",
}

// AttrsFromProps converts component props to attributes. Event handlers,
// children, key, ref, style and non-scalar values are dropped. true renders
// as a bare attribute and false omits it. Keys are sorted for stable output.
func AttrsFromProps(props map[string]any) []Attr {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var attrs []Attr
	for _, k := range keys {
		switch k {
		case "children", "key", "ref", "style", "dangerouslySetInnerHTML":
			continue
		}
		if len(k) > 2 && strings.HasPrefix(k, "on") && k[2] >= 'A' && k[2] <= 'Z' {
			continue
		}
		name := k
		if alias, ok := propAliases[k]; ok {
			name = alias
		}
		val, ok := scalar(props[k])
		if !ok {
			continue
		}
		attrs = append(attrs, Attr{Key: strings.ToLower(name), Val: val})
	}
	return attrs
}

func scalar(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return "", x
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case fmt.Stringer:
		return x.String(), true
	default:
		return "", false
	}
}

func compact(nodes []*Node) []*Node {
	out := nodes[:0:0]
	for _, n := range nodes {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}
