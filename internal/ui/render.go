// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package ui

import (
	"bytes"
	"io"
	"net/url"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/tessera-dev/tessera/pkg/errutil"
)

// allowedTags may be emitted. Tags outside the list are unwrapped: their
// children render, the element itself does not.
var allowedTags = map[string]bool{
	"a": true, "abbr": true, "article": true, "aside": true, "b": true,
	"br": true, "button": true, "caption": true, "code": true, "dd": true,
	"div": true, "dl": true, "dt": true, "em": true, "figcaption": true,
	"figure": true, "footer": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "hr": true,
	"i": true, "img": true, "label": true, "li": true, "nav": true,
	"ol": true, "p": true, "pre": true, "section": true, "small": true,
	"span": true, "strong": true, "sub": true, "sup": true, "table": true,
	"tbody": true, "td": true, "tfoot": true, "th": true, "thead": true,
	"time": true, "tr": true, "u": true, "ul": true,
}

// blockedTags are dropped together with their subtree.
var blockedTags = map[string]bool{
	"script": true, "style": true, "iframe": true, "object": true,
	"embed": true, "frame": true, "frameset": true, "template": true,
	"link": true, "meta": true, "base": true, "form": true, "svg": true,
	"math": true, "noscript": true,
}

var globalAttrs = map[string]bool{
	"class": true, "id": true, "title": true, "role": true, "lang": true,
	"dir": true, "hidden": true, "tabindex": true,
}

var tagAttrs = map[string]map[string]bool{
	"a":      {"href": true, "target": true, "rel": true},
	"img":    {"src": true, "alt": true, "width": true, "height": true},
	"button": {"type": true, "disabled": true, "name": true, "value": true},
	"label":  {"for": true},
	"td":     {"colspan": true, "rowspan": true},
	"th":     {"colspan": true, "rowspan": true, "scope": true},
	"time":   {"datetime": true},
	"ol":     {"start": true},
}

var urlAttrs = map[string]bool{"href": true, "src": true}

var voidTags = map[string]bool{"br": true, "hr": true, "img": true}

// Render writes n as sanitized HTML.
func Render(w io.Writer, n *Node) error {
	for _, h := range toHTML(n) {
		if err := html.Render(w, h); err != nil {
			return oops.Code(errutil.CodeRenderError).Wrapf(err, "render html")
		}
	}
	return nil
}

// RenderString renders n to a string.
func RenderString(n *Node) (string, error) {
	var buf bytes.Buffer
	if err := Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func toHTML(n *Node) []*html.Node {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case TextNode:
		return []*html.Node{{Type: html.TextNode, Data: n.Text}}
	case FragmentNode:
		return childrenHTML(n.Children)
	}

	tag := strings.ToLower(n.Tag)
	if blockedTags[tag] {
		return nil
	}
	if !allowedTags[tag] {
		return childrenHTML(n.Children)
	}

	el := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	for _, a := range n.Attrs {
		if key, ok := allowAttr(tag, a); ok {
			el.Attr = append(el.Attr, html.Attribute{Key: key, Val: a.Val})
		}
	}
	if tag == "a" && hasAttr(el, "target") {
		el.Attr = append(removeAttr(el.Attr, "rel"), html.Attribute{Key: "rel", Val: "noopener noreferrer"})
	}
	if voidTags[tag] {
		return []*html.Node{el}
	}
	for _, c := range childrenHTML(n.Children) {
		el.AppendChild(c)
	}
	return []*html.Node{el}
}

func childrenHTML(children []*Node) []*html.Node {
	var out []*html.Node
	for _, c := range children {
		out = append(out, toHTML(c)...)
	}
	return out
}

func allowAttr(tag string, a Attr) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(a.Key))
	switch {
	case key == "":
		return "", false
	case strings.HasPrefix(key, "on"):
		return "", false
	case strings.HasPrefix(key, "data-"), strings.HasPrefix(key, "aria-"):
		return key, validAttrName(key)
	case globalAttrs[key], tagAttrs[tag][key]:
		if urlAttrs[key] && !safeURL(a.Val) {
			return "", false
		}
		return key, true
	}
	return "", false
}

func validAttrName(key string) bool {
	for _, r := range key {
		if !(r == '-' || r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

// safeURL accepts relative references and http, https and mailto URLs.
func safeURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "", "http", "https", "mailto":
		return true
	}
	return false
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func removeAttr(attrs []html.Attribute, key string) []html.Attribute {
	out := attrs[:0]
	for _, a := range attrs {
		if a.Key != key {
			out = append(out, a)
		}
	}
	return out
}
