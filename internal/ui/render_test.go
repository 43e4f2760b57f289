// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, n *Node) string {
	t.Helper()
	out, err := RenderString(n)
	require.NoError(t, err)
	return out
}

func TestRender_EscapesText(t *testing.T) {
	n := Element("p", nil, Text(`<script>alert("x")</script> & more`))
	assert.Equal(t, `<p>&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt; &amp; more</p>`, render(t, n))
}

func TestRender_Tags(t *testing.T) {
	tests := []struct {
		name string
		node *Node
		want string
	}{
		{"allowed nesting", Element("div", nil, Element("strong", nil, Text("hi"))), `<div><strong>hi</strong></div>`},
		{"blocked subtree dropped", Element("div", nil, Element("script", nil, Text("evil()")), Text("ok")), `<div>ok</div>`},
		{"unknown tag unwrapped", Element("marquee", nil, Text("still here")), `still here`},
		{"fragment flattens", Fragment(Text("a"), Element("br", nil), Text("b")), `a<br/>b`},
		{"void element drops children", Element("img", Attrs("src", "/x.png"), Text("ignored")), `<img src="/x.png"/>`},
		{"uppercase tag normalized", Element("DIV", nil), `<div></div>`},
		{"nil renders nothing", nil, ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, tt.node))
		})
	}
}

func TestRender_Attributes(t *testing.T) {
	tests := []struct {
		name string
		node *Node
		want string
	}{
		{"global and data attrs", Element("div", Attrs("class", "card", "data-plugin-id", "p1", "aria-label", "Card")),
			`<div class="card" data-plugin-id="p1" aria-label="Card"></div>`},
		{"event handler dropped", Element("button", Attrs("onclick", "steal()", "type", "button")), `<button type="button"></button>`},
		{"attr not allowed on tag", Element("div", Attrs("href", "/x")), `<div></div>`},
		{"javascript url dropped", Element("a", Attrs("href", "JavaScript:alert(1)")), `<a></a>`},
		{"https url kept", Element("a", Attrs("href", "https://example.com/?a=1&b=2")), `<a href="https://example.com/?a=1&amp;b=2"></a>`},
		{"target forces rel", Element("a", Attrs("href", "/docs", "target", "_blank", "rel", "opener")),
			`<a href="/docs" target="_blank" rel="noopener noreferrer"></a>`},
		{"attribute value escaped", Element("span", Attrs("title", `"><script>`)), `<span title="&#34;&gt;&lt;script&gt;"></span>`},
		{"bad data attr name", Element("div", Attrs("data-x y", "1")), `<div></div>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, tt.node))
		})
	}
}

func TestAttrsFromProps(t *testing.T) {
	attrs := AttrsFromProps(map[string]any{
		"className": "btn",
		"onClick":   "ignored",
		"disabled":  true,
		"hidden":    false,
		"children":  "x",
		"tabIndex":  float64(2),
		"style":     map[string]any{"color": "red"},
		"data-id":   int64(7),
		"nested":    map[string]any{"a": 1},
		"htmlFor":   "name",
	})
	assert.Equal(t, []Attr{
		{Key: "class", Val: "btn"},
		{Key: "data-id", Val: "7"},
		{Key: "disabled", Val: ""},
		{Key: "for", Val: "name"},
		{Key: "tabindex", Val: "2"},
	}, attrs)
}

func TestNode_TextContent(t *testing.T) {
	n := Element("div", nil, Text("a"), Fragment(Text("b"), Element("span", nil, Text("c"))), nil)
	assert.Equal(t, "abc", n.TextContent())
	assert.Len(t, n.Children, 2)
	v, ok := Element("div", Attrs("id", "x")).Get("id")
	assert.True(t, ok)
	assert.Equal(t, "x", v)
}
