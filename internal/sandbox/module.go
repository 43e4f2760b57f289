// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/samber/oops"

	"github.com/tessera-dev/tessera/pkg/errutil"
)

// requiredRuntimeAPI is what the execution context relies on from the
// runtime library capability.
var requiredRuntimeAPI = []string{"createElement", "useState", "useEffect"}

// Module is one executed bundle. goja runtimes are not safe for concurrent
// use, so every call into the runtime holds mu.
type Module struct {
	mu       sync.Mutex
	sandbox  *Sandbox
	rt       *goja.Runtime
	pluginID string
	scope    Scope
	timeout  time.Duration
	module   *goja.Object
	fragment *goja.Object
	required map[string]goja.Value
}

func newModule(s *Sandbox, scope Scope) *Module {
	rt := goja.New()
	rt.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	rt.SetMaxCallStackSize(maxCallStack)
	return &Module{
		sandbox:  s,
		rt:       rt,
		pluginID: scope.PluginID,
		scope:    scope,
		timeout:  s.timeout,
		fragment: rt.NewObject(),
		required: map[string]goja.Value{},
	}
}

// PluginID is the plugin the module was executed for.
func (m *Module) PluginID() string { return m.pluginID }

// Timeout bounds each execution or render inside the module.
func (m *Module) Timeout() time.Duration { return m.timeout }

// HasRuntimeLibrary reports whether the runtime library capability is
// present and complete.
func (m *Module) HasRuntimeLibrary() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkRuntimeLibrary() == nil
}

// Capability returns the value require(name) yields inside the module, for
// handing host modules back to the guest through props.
func (m *Module) Capability(name string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.require(name)
}

// install sets up the global capability surface. Caller holds mu.
func (m *Module) install() error {
	rt := m.rt
	global := rt.GlobalObject()

	m.module = rt.NewObject()
	exports := rt.NewObject()
	if err := m.module.Set("exports", exports); err != nil {
		return m.setupError(err)
	}

	freeze, ok := goja.AssertFunction(rt.Get("Object").ToObject(rt).Get("freeze"))
	if !ok {
		return m.setupError(errors.New("Object.freeze unavailable"))
	}
	env := rt.NewObject()
	process := rt.NewObject()
	for _, step := range []func() error{
		func() error { return env.Set("NODE_ENV", "production") },
		func() error { return process.Set("env", env) },
		func() error { _, err := freeze(goja.Undefined(), env); return err },
		func() error { _, err := freeze(goja.Undefined(), process); return err },
		func() error { return global.Set("module", m.module) },
		func() error { return global.Set("exports", exports) },
		func() error { return global.Set("require", m.requireFunc) },
		func() error { return global.Set("process", process) },
		func() error { return global.Set("console", m.console()) },
		func() error { return global.Delete("eval") },
		m.sealFunctionConstructor,
	} {
		if err := step(); err != nil {
			return m.setupError(err)
		}
	}
	return nil
}

// sealFunctionConstructor removes every function constructor reachable
// from guest code: Function itself and the constructors behind generator
// and async function prototypes.
func (m *Module) sealFunctionConstructor() error {
	rt := m.rt
	thrower := rt.ToValue(func(goja.FunctionCall) goja.Value {
		panic(rt.NewTypeError("code generation from strings is disabled"))
	})
	protos := []goja.Value{rt.Get("Function").ToObject(rt).Get("prototype")}
	for _, src := range []string{
		"Object.getPrototypeOf(function*(){})",
		"Object.getPrototypeOf(async function(){})",
		"Object.getPrototypeOf(async function*(){})",
	} {
		v, err := rt.RunString(src)
		if err != nil {
			// The engine lacks this function kind.
			continue
		}
		protos = append(protos, v)
	}
	for _, p := range protos {
		if err := p.ToObject(rt).DefineDataProperty("constructor", thrower, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
			return err
		}
	}
	return rt.GlobalObject().Delete("Function")
}

func (m *Module) setupError(err error) error {
	return oops.Code(errutil.CodeSandboxRuntimeError).With("plugin_id", m.pluginID).Wrapf(err, "prepare execution context")
}

// checkRuntimeLibrary verifies the runtime library exposes the API the
// context depends on. Caller holds mu.
func (m *Module) checkRuntimeLibrary() error {
	v, err := m.require(RuntimeModule)
	if err != nil {
		return oops.Code(errutil.CodeSandboxRuntimeError).
			With("plugin_id", m.pluginID).
			Errorf("runtime library unavailable")
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return oops.Code(errutil.CodeSandboxRuntimeError).With("plugin_id", m.pluginID).Errorf("runtime library is not an object")
	}
	for _, name := range requiredRuntimeAPI {
		if _, ok := goja.AssertFunction(obj.Get(name)); !ok {
			return oops.Code(errutil.CodeSandboxRuntimeError).
				With("plugin_id", m.pluginID).
				With("missing", name).
				Errorf("runtime library lacks %s", name)
		}
	}
	return nil
}

// require resolves a dependency from the capability table. Aliases share
// the canonical module's value. Caller holds mu.
func (m *Module) require(name string) (goja.Value, error) {
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	if v, ok := m.required[name]; ok {
		return v, nil
	}
	c, ok := m.sandbox.caps[name]
	if !ok {
		return nil, oops.Code(errutil.CodeUnknownDependency).
			With("plugin_id", m.pluginID).
			With("dependency", name).
			Errorf("unknown dependency %q", name)
	}
	v := c(m)
	m.required[name] = v
	return v, nil
}

func (m *Module) requireFunc(call goja.FunctionCall) goja.Value {
	v, err := m.require(call.Argument(0).String())
	if err != nil {
		panic(m.rt.NewGoError(err))
	}
	return v
}

func (m *Module) console() *goja.Object {
	obj := m.rt.NewObject()
	logger := m.sandbox.logger.With("plugin_id", m.pluginID)
	levels := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"log":   slog.LevelInfo,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for name, level := range levels {
		//nolint:errcheck // fresh object
		obj.Set(name, func(call goja.FunctionCall) goja.Value {
			args := make([]any, 0, len(call.Arguments))
			for _, a := range call.Arguments {
				args = append(args, a.String())
			}
			logger.Log(context.Background(), level, "plugin console", "args", args)
			return goja.Undefined()
		})
	}
	return obj
}

// exports returns module.exports as the guest left it. Caller holds mu.
func (m *Module) exports() *goja.Object {
	v := m.module.Get("exports")
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.ToObject(m.rt)
}

// run calls fn with a deadline, interrupting the guest when it expires.
// Guest exceptions and Go panics become errors carrying code unless the
// failure already has a code of its own. Caller holds mu.
func (m *Module) run(ctx context.Context, code string, fn func() (goja.Value, error)) (v goja.Value, err error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		m.rt.Interrupt(ctx.Err())
		close(fired)
	})
	defer func() {
		if !stop() {
			<-fired
		}
		m.rt.ClearInterrupt()
	}()
	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = oops.Code(code).With("plugin_id", m.pluginID).Errorf("guest panic: %v", r)
		}
	}()

	v, err = fn()
	if err == nil {
		return v, nil
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return nil, oops.Code(code).
			With("plugin_id", m.pluginID).
			With("timeout", m.timeout.String()).
			Errorf("guest interrupted: %v", interrupted.Value())
	}
	if errutil.CodeOf(err) != "" {
		return nil, oops.With("plugin_id", m.pluginID).Wrap(err)
	}
	return nil, oops.Code(code).With("plugin_id", m.pluginID).Wrap(guestError(err))
}

// guestError strips goja stack formatting down to the thrown value.
func guestError(err error) error {
	var ex *goja.Exception
	if errors.As(err, &ex) && ex.Value() != nil {
		return fmt.Errorf("%s", ex.Value().String())
	}
	return err
}
