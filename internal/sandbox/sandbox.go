// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

// Package sandbox executes plugin bundles inside an embedded ECMAScript
// engine. Each bundle gets a fresh runtime whose globals are the language
// built-ins plus a fixed capability set: module/exports, an allow-listed
// require, a frozen process descriptor and a logging console.
//
// Isolation is best effort. The runtime has no access to the host's
// filesystem, network or globals, but nothing bounds memory use.
package sandbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/dop251/goja"
	"github.com/samber/oops"

	"github.com/tessera-dev/tessera/internal/observability"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

// DefaultExecTimeout bounds bundle execution and each render.
const DefaultExecTimeout = 5 * time.Second

// maxCallStack keeps runaway recursion in guest code from exhausting the
// host stack.
const maxCallStack = 2048

// Program is a bundle that passed static validation.
type Program struct {
	name string
	prg  *goja.Program
}

// Name is the program's source name used in guest stack traces.
func (p *Program) Name() string { return p.name }

// Compile parses and compiles src without executing it. Syntax errors are
// reported as BUNDLE_SYNTAX_ERROR.
func Compile(name, src string) (*Program, error) {
	prg, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, oops.Code(errutil.CodeBundleSyntaxError).
			With("bundle", name).
			Wrapf(err, "bundle failed validation")
	}
	return &Program{name: name, prg: prg}, nil
}

// Scope identifies the plugin a bundle executes for. Version separates
// registrations made by different releases of the same plugin.
type Scope struct {
	PluginID string
	Version  string
}

// Sandbox builds execution contexts from a fixed capability table.
type Sandbox struct {
	caps       map[string]Capability
	registry   *Registry
	strategies []Strategy
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// Option configures a Sandbox.
type Option func(*Sandbox)

// WithTimeout bounds execution and render time.
func WithTimeout(d time.Duration) Option {
	return func(s *Sandbox) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRegistry shares a plugin registry. By default each Sandbox owns one.
func WithRegistry(r *Registry) Option {
	return func(s *Sandbox) { s.registry = r }
}

// WithCapability adds or replaces a capability. A nil capability removes
// the name from the table.
func WithCapability(name string, c Capability) Option {
	return func(s *Sandbox) {
		if c == nil {
			delete(s.caps, name)
			return
		}
		s.caps[name] = c
	}
}

// WithStrategies replaces the extraction strategy order.
func WithStrategies(strategies ...Strategy) Option {
	return func(s *Sandbox) { s.strategies = strategies }
}

// WithLogger sets the logger behind the guest console.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sandbox) { s.logger = l }
}

// WithMetrics counts executions on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Sandbox) { s.metrics = m }
}

// New creates a sandbox with the default capability table.
func New(opts ...Option) *Sandbox {
	s := &Sandbox{
		caps:       DefaultCapabilities(),
		strategies: DefaultStrategies(),
		timeout:    DefaultExecTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	return s
}

// Registry returns the plugin registry populated by @tessera/sdk.
func (s *Sandbox) Registry() *Registry { return s.registry }

// Execute runs the program in a fresh execution context and returns the
// resulting module. Guest exceptions, panics and timeouts are returned as
// errors and never propagate.
func (s *Sandbox) Execute(ctx context.Context, p *Program, scope Scope) (*Module, error) {
	m := newModule(s, scope)
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.install(); err != nil {
		return nil, err
	}
	if err := m.checkRuntimeLibrary(); err != nil {
		return nil, err
	}

	s.metrics.RecordExecution()
	if _, err := m.run(ctx, errutil.CodeSandboxRuntimeError, func() (goja.Value, error) {
		return m.rt.RunProgram(p.prg)
	}); err != nil {
		return nil, oops.With("bundle", p.name).Wrap(err)
	}
	return m, nil
}
