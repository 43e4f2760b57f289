// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

// Package component wraps extracted extension implementations so they
// receive the host SDK and cannot take the page down when they fail.
package component

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/samber/oops"

	"github.com/tessera-dev/tessera/internal/observability"
	"github.com/tessera-dev/tessera/internal/proxy"
	"github.com/tessera-dev/tessera/internal/sandbox"
	"github.com/tessera-dev/tessera/internal/ui"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

// maxErrorRunes bounds the message shown in an error panel.
const maxErrorRunes = 200

// UnavailableMessage is the fixed inline error rendered when the host
// runtime or SDK is missing.
const UnavailableMessage = "Plugin runtime unavailable"

// Invoker calls privileged plugin methods through the action proxy.
type Invoker interface {
	Invoke(ctx context.Context, pluginID, method string, params any, token string) (*proxy.Result, error)
}

// Authorizer gates api.invoke calls.
type Authorizer interface {
	RequireProxy(pluginID, method string) error
}

// RenderContext describes the viewer a widget renders for.
type RenderContext struct {
	OrganizationID string
	UserID         string
	Token          string
	// Path is the host page path, exposed as navigation.currentPath.
	Path string
}

// Host is the SDK provider shared by every wrapped component.
type Host struct {
	Invoker    Invoker
	Authorizer Authorizer
	// BasePath prefixes links built with navigation.href.
	BasePath string
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// Wrap binds impl to the host. name labels the plugin in error panels.
func (h *Host) Wrap(impl *sandbox.Implementation, name string) *Component {
	if name == "" && impl != nil {
		name = impl.PluginID()
	}
	return &Component{host: h, impl: impl, name: name}
}

// Component is an extension implementation ready to mount.
type Component struct {
	host *Host
	impl *sandbox.Implementation
	name string
}

// PluginID is the plugin that provided the component.
func (c *Component) PluginID() string {
	if c.impl == nil {
		return ""
	}
	return c.impl.PluginID()
}

// Name is the plugin's display name.
func (c *Component) Name() string { return c.name }

// Render invokes the implementation with data and the injected SDK. It
// always returns a node: failures render as an error panel naming the
// plugin instead of propagating.
func (c *Component) Render(ctx context.Context, rc RenderContext, data map[string]any) (node *ui.Node) {
	if !c.available() {
		return Unavailable()
	}

	defer func() {
		if r := recover(); r != nil {
			node = c.failed(ctx, oops.Code(errutil.CodeRenderError).
				With("plugin_id", c.PluginID()).
				Errorf("render panic: %v", r))
		}
	}()

	// Host calls made by the guest share the render deadline, so a slow
	// proxy cannot hold the module past the sandbox timeout.
	ctx, cancel := context.WithTimeout(ctx, c.impl.Module().Timeout())
	defer cancel()

	sdk, err := c.sdk(ctx, rc)
	if err != nil {
		return c.failed(ctx, err)
	}
	props := make(map[string]any, len(data)+1)
	for k, v := range data {
		props[k] = v
	}
	props["sdk"] = sdk

	out, err := c.impl.Render(ctx, props)
	if err != nil {
		return c.failed(ctx, err)
	}
	if out == nil {
		return ui.Fragment()
	}
	return out
}

func (c *Component) available() bool {
	if c == nil || c.host == nil || c.impl == nil || c.host.Invoker == nil || c.host.Authorizer == nil {
		return false
	}
	return c.impl.Module().HasRuntimeLibrary()
}

func (c *Component) failed(ctx context.Context, err error) *ui.Node {
	logger := c.host.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errutil.LogWarn(ctx, logger, "plugin render failed", err,
		"plugin_id", c.PluginID(), "extension_point", c.impl.Point())
	c.host.Metrics.RecordRenderError(c.PluginID())
	return ErrorPanel(c.PluginID(), c.name, err)
}

// Unavailable is the fixed inline error for a missing runtime or SDK.
func Unavailable() *ui.Node {
	return ui.Element("div", ui.Attrs("class", "tessera-plugin-unavailable", "role", "alert"),
		ui.Text(UnavailableMessage))
}

// ErrorPanel renders a bounded error message naming the plugin.
func ErrorPanel(pluginID, name string, err error) *ui.Node {
	return ui.Element("div",
		ui.Attrs("class", "tessera-plugin-error", "role", "alert", "data-plugin-id", pluginID),
		ui.Element("strong", nil, ui.Text(fmt.Sprintf("Plugin %q failed to render", name))),
		ui.Element("p", nil, ui.Text(truncate(err.Error(), maxErrorRunes))),
	)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}
