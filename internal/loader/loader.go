// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

// Package loader turns a plugin bundle into a mountable component for one
// extension point: fetch, validate, execute in the sandbox, extract and
// wrap. Results are cached per (plugin, extension point, installed
// version) until the cache is cleared.
package loader

import (
	"context"
	"log/slog"
	"sync"

	"github.com/felixgeelhaar/statekit"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/tessera-dev/tessera/internal/catalog"
	"github.com/tessera-dev/tessera/internal/component"
	"github.com/tessera-dev/tessera/internal/install"
	"github.com/tessera-dev/tessera/internal/observability"
	"github.com/tessera-dev/tessera/internal/sandbox"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

const tracerName = "github.com/tessera-dev/tessera/internal/loader"

// Outcome labels for the loads metric.
const (
	outcomeReady  = "ready"
	outcomeError  = "error"
	outcomeCached = "cached"
)

// Key identifies one cache entry.
type Key struct {
	PluginID string
	Point    string
	Version  string
}

func (k Key) String() string {
	return k.PluginID + "|" + k.Point + "|" + k.Version
}

// Extension is the settled result of a load.
type Extension struct {
	Key       Key
	State     State
	Component *component.Component
	Err       error
}

// Wrapper binds an extracted implementation to the host SDK.
type Wrapper interface {
	Wrap(impl *sandbox.Implementation, name string) *component.Component
}

// Granter loads a definition's capability grants before its component is
// handed out.
type Granter interface {
	GrantDefinition(def *catalog.Definition) error
}

type entry struct {
	mu     sync.Mutex
	interp *statekit.Interpreter[entryContext]
	ext    *Extension
}

func (e *entry) state() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return stateOf(e.interp)
}

// Loader loads and caches extensions.
type Loader struct {
	fetcher Fetcher
	sandbox *sandbox.Sandbox
	wrapper Wrapper
	granter Granter
	tracer  trace.Tracer
	metrics *observability.Metrics
	logger  *slog.Logger

	mu      sync.RWMutex
	entries map[Key]*entry
	group   singleflight.Group
}

// Option configures a Loader.
type Option func(*Loader)

// WithTracer sets the tracer for load spans.
func WithTracer(t trace.Tracer) Option {
	return func(l *Loader) { l.tracer = t }
}

// WithMetrics records load outcomes and fetches on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Loader) { l.metrics = m }
}

// WithLogger sets the logger for load failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// WithGranter loads capability grants for each loaded plugin.
func WithGranter(g Granter) Option {
	return func(l *Loader) { l.granter = g }
}

// New creates a Loader.
func New(fetcher Fetcher, sb *sandbox.Sandbox, wrapper Wrapper, opts ...Option) *Loader {
	l := &Loader{
		fetcher: fetcher,
		sandbox: sb,
		wrapper: wrapper,
		tracer:  otel.Tracer(tracerName),
		logger:  slog.Default(),
		entries: make(map[Key]*entry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// KeyFor returns the cache key of (installation, point).
func KeyFor(e install.Entry, point string) Key {
	return Key{
		PluginID: e.Plugin.ID.String(),
		Point:    point,
		Version:  e.Installation.InstalledVersion,
	}
}

// Load returns the extension for point from the installed plugin. Settled
// entries are returned from cache without refetching; concurrent first
// requests for one key share a single load. The returned error is the
// extension's Err.
func (l *Loader) Load(ctx context.Context, e install.Entry, point string) (*Extension, error) {
	key := KeyFor(e, point)
	if ext := l.settled(key); ext != nil {
		l.metrics.RecordLoad(outcomeCached)
		return ext, ext.Err
	}

	if !e.Plugin.Declares(point) {
		return nil, oops.Code(errutil.CodeExtensionPointNotDeclared).
			With("plugin_id", key.PluginID).
			With("extension_point", point).
			Errorf("plugin does not declare %s", point)
	}

	v, err, _ := l.group.Do(key.String(), func() (any, error) {
		if ext := l.settled(key); ext != nil {
			return ext, nil
		}
		return l.load(context.WithoutCancel(ctx), key, e)
	})
	if err != nil {
		return nil, err
	}
	ext := v.(*Extension) //nolint:errcheck // singleflight returns what load stored
	return ext, ext.Err
}

// State reports the state of key; absent keys are idle.
func (l *Loader) State(key Key) State {
	l.mu.RLock()
	ent, ok := l.entries[key]
	l.mu.RUnlock()
	if !ok {
		return StateIdle
	}
	return ent.state()
}

// Len reports the number of cache entries.
func (l *Loader) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// ClearCache resets every entry to idle and drops it. In-flight loads
// finish but their results are not cached.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	entries := l.entries
	l.entries = make(map[Key]*entry)
	l.mu.Unlock()

	for key, ent := range entries {
		ent.mu.Lock()
		send(ent.interp, eventReset)
		ent.mu.Unlock()
		l.group.Forget(key.String())
	}
}

func (l *Loader) settled(key Key) *Extension {
	l.mu.RLock()
	ent, ok := l.entries[key]
	l.mu.RUnlock()
	if !ok {
		return nil
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	switch stateOf(ent.interp) {
	case StateReady, StateError:
		return ent.ext
	}
	return nil
}

func (l *Loader) load(ctx context.Context, key Key, e install.Entry) (*Extension, error) {
	interp, err := newEntryMachine()
	if err != nil {
		return nil, err
	}
	ent := &entry{interp: interp}
	send(interp, eventLoad)

	l.mu.Lock()
	l.entries[key] = ent
	l.mu.Unlock()

	ctx, span := l.tracer.Start(ctx, "loader.Load", trace.WithAttributes(
		attribute.String("plugin.id", key.PluginID),
		attribute.String("extension.point", key.Point),
		attribute.String("plugin.version", key.Version),
	))
	defer span.End()

	comp, err := l.build(ctx, key, e.Plugin)

	ent.mu.Lock()
	defer ent.mu.Unlock()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errutil.CodeOf(err))
		errutil.LogWarn(ctx, l.logger, "extension load failed", err,
			"plugin_id", key.PluginID, "extension_point", key.Point, "version", key.Version)
		l.metrics.RecordLoad(outcomeError)
		ent.ext = &Extension{Key: key, State: StateError, Err: err}
		send(interp, eventFail)
		return ent.ext, nil
	}
	l.metrics.RecordLoad(outcomeReady)
	ent.ext = &Extension{Key: key, State: StateReady, Component: comp}
	send(interp, eventSucceed)
	return ent.ext, nil
}

// build runs fetch, validation, execution, extraction and wrapping.
func (l *Loader) build(ctx context.Context, key Key, def *catalog.Definition) (*component.Component, error) {
	l.metrics.RecordFetch()
	src, err := l.fetcher.Fetch(ctx, def.ID)
	if err != nil {
		return nil, err
	}

	prg, err := sandbox.Compile(bundleName(def.ID, key.Version), src)
	if err != nil {
		return nil, err
	}

	mod, err := l.sandbox.Execute(ctx, prg, sandbox.Scope{PluginID: key.PluginID, Version: key.Version})
	if err != nil {
		return nil, err
	}

	impl, err := l.sandbox.Extract(mod, key.Point)
	if err != nil {
		return nil, err
	}

	if l.granter != nil {
		if err := l.granter.GrantDefinition(def); err != nil {
			return nil, err
		}
	}
	return l.wrapper.Wrap(impl, def.DisplayName()), nil
}

func bundleName(id ulid.ULID, version string) string {
	return "plugin:" + id.String() + "@" + version
}
