// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

// Package widget composes widget areas: every enabled plugin of an
// organization that declares an extension point is loaded concurrently and
// rendered into one HTML fragment.
package widget

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tessera-dev/tessera/internal/component"
	"github.com/tessera-dev/tessera/internal/install"
	"github.com/tessera-dev/tessera/internal/loader"
	"github.com/tessera-dev/tessera/internal/observability"
	"github.com/tessera-dev/tessera/internal/ui"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

// Installations lists the candidates for a widget area.
type Installations interface {
	ListEnabledForExtensionPoint(ctx context.Context, organizationID, point string) ([]install.Entry, error)
}

// ExtensionLoader loads one extension of an installed plugin.
type ExtensionLoader interface {
	Load(ctx context.Context, e install.Entry, point string) (*loader.Extension, error)
}

// Composer renders widget areas.
type Composer struct {
	installs Installations
	loader   ExtensionLoader
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// Option configures a Composer.
type Option func(*Composer)

// WithLogger sets the logger for listing and load failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Composer) { c.logger = l }
}

// WithMetrics counts area renders on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Composer) { c.metrics = m }
}

// NewComposer creates a Composer.
func NewComposer(installs Installations, l ExtensionLoader, opts ...Option) *Composer {
	c := &Composer{installs: installs, loader: l, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open starts loading every candidate for point and returns immediately.
// Listing failures are logged and yield an empty area.
func (c *Composer) Open(ctx context.Context, rc component.RenderContext, point string, data map[string]any) *Area {
	c.metrics.RecordWidgetRender(point)
	a := &Area{point: point, done: make(chan struct{}), live: true}

	entries, err := c.installs.ListEnabledForExtensionPoint(ctx, rc.OrganizationID, point)
	if err != nil {
		errutil.LogWarn(ctx, c.logger, "list widget candidates failed", err,
			"organization_id", rc.OrganizationID, "extension_point", point)
		close(a.done)
		return a
	}

	a.slots = make([]slot, len(entries))
	var g errgroup.Group
	for i, e := range entries {
		a.slots[i].pluginID = e.Plugin.ID.String()
		g.Go(func() error {
			ext, err := c.loader.Load(ctx, e, point)
			if err != nil {
				// Already logged by the loader; the widget is omitted.
				return nil
			}
			node := ext.Component.Render(ctx, rc, data)
			a.settle(i, node)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(a.done)
	}()
	return a
}

// Render opens an area, waits for it to settle and returns its HTML.
func (c *Composer) Render(ctx context.Context, rc component.RenderContext, point string, data map[string]any) (string, error) {
	a := c.Open(ctx, rc, point, data)
	defer a.Close()
	if err := a.Wait(ctx); err != nil {
		return "", err
	}
	return a.HTML()
}

type slot struct {
	pluginID string
	node     *ui.Node
}

// Area is one render of a widget area. Slots keep catalog order; loads fill
// them as they finish.
type Area struct {
	point string
	done  chan struct{}

	mu    sync.Mutex
	live  bool
	slots []slot
}

func (a *Area) settle(i int, node *ui.Node) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.live {
		return
	}
	a.slots[i].node = node
}

// Point is the extension point the area renders.
func (a *Area) Point() string { return a.point }

// Done is closed once every load has settled.
func (a *Area) Done() <-chan struct{} { return a.done }

// Settled reports whether every load has finished.
func (a *Area) Settled() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the area settles or ctx ends.
func (a *Area) Wait(ctx context.Context) error {
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the area as gone. Loads that finish afterwards are discarded.
func (a *Area) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.live = false
}

// Node returns the area's current tree: a placeholder while loads are
// outstanding, nil when nothing rendered or the area is closed.
func (a *Area) Node() *ui.Node {
	settled := a.Settled()

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.live {
		return nil
	}
	if !settled {
		return placeholder(a.point)
	}

	var widgets []*ui.Node
	for _, s := range a.slots {
		if s.node == nil {
			continue
		}
		widgets = append(widgets, ui.Element("div",
			ui.Attrs("class", "tessera-widget", "data-plugin-id", s.pluginID), s.node))
	}
	if len(widgets) == 0 {
		return nil
	}
	return ui.Element("div",
		ui.Attrs("class", "tessera-widget-area", "data-extension-point", a.point), widgets...)
}

// HTML renders Node. An empty area renders the empty string.
func (a *Area) HTML() (string, error) {
	n := a.Node()
	if n == nil {
		return "", nil
	}
	return ui.RenderString(n)
}

func placeholder(point string) *ui.Node {
	return ui.Element("div",
		ui.Attrs("class", "tessera-widget-area tessera-widget-area-loading",
			"data-extension-point", point, "aria-busy", "true"),
		ui.Element("span", ui.Attrs("class", "tessera-spinner", "role", "status", "aria-label", "Loading")),
	)
}
