// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package component

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-dev/tessera/internal/capability"
	"github.com/tessera-dev/tessera/internal/observability"
	"github.com/tessera-dev/tessera/internal/proxy"
	"github.com/tessera-dev/tessera/internal/sandbox"
	"github.com/tessera-dev/tessera/internal/ui"
)

const testPlugin = "plugin-1"

type invocation struct {
	pluginID, method, token string
	params                  any
	deadline                time.Time
}

type fakeInvoker struct {
	mu     sync.Mutex
	calls  []invocation
	result *proxy.Result
	err    error
}

func (f *fakeInvoker) Invoke(ctx context.Context, pluginID, method string, params any, token string) (*proxy.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deadline, _ := ctx.Deadline()
	f.calls = append(f.calls, invocation{pluginID, method, token, params, deadline})
	return f.result, f.err
}

// blockingInvoker waits for the caller's context to end.
type blockingInvoker struct{}

func (blockingInvoker) Invoke(ctx context.Context, _, _ string, _ any, _ string) (*proxy.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func implementation(t *testing.T, body string, opts ...sandbox.Option) *sandbox.Implementation {
	t.Helper()
	s := sandbox.New(opts...)
	p, err := sandbox.Compile("bundle.js", `
		var h = require("react").createElement;
		module.exports = { extensionPoints: { "checkout.summary": `+body+` } };
	`)
	require.NoError(t, err)
	m, err := s.Execute(context.Background(), p, sandbox.Scope{PluginID: testPlugin})
	require.NoError(t, err)
	impl, err := s.Extract(m, "checkout.summary")
	require.NoError(t, err)
	return impl
}

func newHost(t *testing.T, inv Invoker, grants ...string) (*Host, *observability.Metrics) {
	t.Helper()
	enf := capability.NewEnforcer()
	require.NoError(t, enf.SetGrants(testPlugin, grants))
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return &Host{Invoker: inv, Authorizer: enf, BasePath: "/app", Metrics: metrics}, metrics
}

func html(t *testing.T, n *ui.Node) string {
	t.Helper()
	out, err := ui.RenderString(n)
	require.NoError(t, err)
	return out
}

func TestRender_InjectsSDK(t *testing.T) {
	impl := implementation(t, `function(p){
		var s = p.sdk;
		return h("div", {"data-plugin": s.pluginId},
			h("span", null, p.title),
			h("span", null, s.auth.userId, "@", s.auth.organizationId, ":", String(s.auth.isAuthenticated)),
			h("a", {href: s.navigation.href("orders/42")}, s.navigation.currentPath),
			h("span", null, s.utils.formatDate("2026-03-01T10:00:00Z")),
			h(s.components.Badge, null, "new"));
	}`)
	host, _ := newHost(t, &fakeInvoker{})
	c := host.Wrap(impl, "Stripe")

	out := html(t, c.Render(context.Background(),
		RenderContext{OrganizationID: "org-1", UserID: "u-1", Path: "/checkout"},
		map[string]any{"title": "Summary"}))

	assert.Equal(t, `<div data-plugin="plugin-1">`+
		`<span>Summary</span>`+
		`<span>u-1@org-1:true</span>`+
		`<a href="/app/orders/42">/checkout</a>`+
		`<span>Mar 1, 2026</span>`+
		`<span class="tessera-badge">new</span></div>`, out)
	assert.Equal(t, testPlugin, c.PluginID())
	assert.Equal(t, "Stripe", c.Name())
}

func TestRender_APIInvoke(t *testing.T) {
	impl := implementation(t, `function(p){
		var res = p.sdk.api.invoke("createIntent", {amount: p.amount});
		return h("span", null, String(res.success), " ", res.data.intentId);
	}`)
	inv := &fakeInvoker{result: &proxy.Result{Success: true, Data: json.RawMessage(`{"intentId":"pi_9"}`)}}
	host, _ := newHost(t, inv, "proxy.createIntent")

	out := html(t, host.Wrap(impl, "Stripe").Render(context.Background(),
		RenderContext{Token: "tok"}, map[string]any{"amount": 100}))

	assert.Equal(t, `<span>true pi_9</span>`, out)
	require.Len(t, inv.calls, 1)
	assert.Equal(t, testPlugin, inv.calls[0].pluginID)
	assert.Equal(t, "createIntent", inv.calls[0].method)
	assert.Equal(t, "tok", inv.calls[0].token)
}

func TestRender_InvokeSharesRenderDeadline(t *testing.T) {
	impl := implementation(t, `function(p){
		p.sdk.api.invoke("quote", {});
		return h("span", null, "done");
	}`)
	inv := &fakeInvoker{result: &proxy.Result{Success: true}}
	host, _ := newHost(t, inv, "proxy.quote")

	start := time.Now()
	html(t, host.Wrap(impl, "Stripe").Render(context.Background(), RenderContext{}, nil))

	require.Len(t, inv.calls, 1)
	require.False(t, inv.calls[0].deadline.IsZero(), "invoke must carry a deadline")
	assert.LessOrEqual(t, inv.calls[0].deadline.Sub(start), sandbox.DefaultExecTimeout)
}

func TestRender_SlowInvokeStopsAtSandboxTimeout(t *testing.T) {
	impl := implementation(t, `function(p){
		p.sdk.api.invoke("quote", {});
		return h("span", null, "done");
	}`, sandbox.WithTimeout(50*time.Millisecond))
	host, _ := newHost(t, blockingInvoker{}, "proxy.quote")

	start := time.Now()
	out := html(t, host.Wrap(impl, "Stripe").Render(context.Background(), RenderContext{}, nil))

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Contains(t, out, "tessera-plugin-error")
	assert.NotContains(t, out, "done")
}

func TestRender_ContainsFailures(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		inv     *fakeInvoker
		grants  []string
		message string
	}{
		{"capability denied", `function(p){ return p.sdk.api.invoke("refund", {}); }`, &fakeInvoker{}, nil, "refund"},
		{"proxy failure", `function(p){ return String(p.sdk.api.invoke("refund", {})); }`,
			&fakeInvoker{err: errors.New("upstream down")}, []string{"proxy.*"}, "upstream down"},
		{"guest throws", `function(){ throw new Error("kaboom"); }`, &fakeInvoker{}, nil, "kaboom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, metrics := newHost(t, tt.inv, tt.grants...)
			node := host.Wrap(implementation(t, tt.body), "Stripe").Render(context.Background(), RenderContext{}, nil)

			out := html(t, node)
			assert.Contains(t, out, `class="tessera-plugin-error"`)
			assert.Contains(t, out, `data-plugin-id="plugin-1"`)
			assert.Contains(t, out, `Plugin &#34;Stripe&#34; failed to render`)
			assert.Contains(t, node.TextContent(), tt.message)
			assert.InDelta(t, 1, testutil.ToFloat64(metrics.RenderErrors.WithLabelValues(testPlugin)), 0)
		})
	}
	inv := &fakeInvoker{}
	host, _ := newHost(t, inv)
	host.Wrap(implementation(t, `function(p){ return p.sdk.api.invoke("refund", {}); }`), "x").
		Render(context.Background(), RenderContext{}, nil)
	assert.Empty(t, inv.calls, "denied calls never reach the proxy")
}

func TestRender_ErrorPanelIsBounded(t *testing.T) {
	impl := implementation(t, `function(){ throw new Error(new Array(500).join("é")); }`)
	host, _ := newHost(t, &fakeInvoker{})
	node := host.Wrap(impl, "Long").Render(context.Background(), RenderContext{}, nil)

	msg := node.Children[1].TextContent()
	assert.Equal(t, maxErrorRunes+1, len([]rune(msg)))
	assert.True(t, strings.HasSuffix(msg, "…"))
}

func TestRender_Unavailable(t *testing.T) {
	impl := implementation(t, `function(){ return "hi"; }`)
	tests := []struct {
		name string
		c    *Component
	}{
		{"no host", (*Host)(nil).Wrap(impl, "x")},
		{"no invoker", (&Host{Authorizer: capability.NewEnforcer()}).Wrap(impl, "x")},
		{"no authorizer", (&Host{Invoker: &fakeInvoker{}}).Wrap(impl, "x")},
		{"no implementation", (&Host{Invoker: &fakeInvoker{}, Authorizer: capability.NewEnforcer()}).Wrap(nil, "x")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := html(t, tt.c.Render(context.Background(), RenderContext{}, nil))
			assert.Equal(t, `<div class="tessera-plugin-unavailable" role="alert">`+UnavailableMessage+`</div>`, out)
		})
	}
}

func TestRender_NullResult(t *testing.T) {
	host, _ := newHost(t, &fakeInvoker{})
	out := html(t, host.Wrap(implementation(t, `function(){ return null; }`), "x").Render(context.Background(), RenderContext{}, nil))
	assert.Empty(t, out)
}

func TestFormatCurrency(t *testing.T) {
	out, err := FormatCurrency(1234.5, "usd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "$"), out)
	assert.Contains(t, out, "1,234.50")

	_, err = FormatCurrency(1, "XYZ1")
	require.Error(t, err)
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "Mar 1, 2026", FormatDate("2026-03-01"))
	assert.Equal(t, "Dec 31, 2025", FormatDate("2025-12-31T23:59:59.5Z"))
	assert.Equal(t, "soon", FormatDate("soon"))
}

func TestHref(t *testing.T) {
	assert.Equal(t, "/app/orders/42", Href("/app", "orders/42"))
	assert.Equal(t, "/app/orders/", Href("app", "/orders/"))
	assert.Equal(t, "/orders", Href("", "orders"))
	assert.Equal(t, "/app", Href("/app", "https://evil.example/x"))
	assert.Equal(t, "/app", Href("/app", "//evil.example"))
	assert.Equal(t, "/app", Href("/app", "../../.."))
}
