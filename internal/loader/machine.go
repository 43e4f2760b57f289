// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package loader

import (
	"github.com/felixgeelhaar/statekit"
	"github.com/samber/oops"
)

// State is the load state of one cache entry.
type State string

// Machine state ids.
const (
	idle    = "idle"
	loading = "loading"
	ready   = "ready"
	failed  = "error"
)

// Load states. ready and error are terminal until the cache is cleared.
const (
	StateIdle    State = idle
	StateLoading State = loading
	StateReady   State = ready
	StateError   State = failed
)

// Machine events.
const (
	eventLoad    = "LOAD"
	eventSucceed = "SUCCEED"
	eventFail    = "FAIL"
	eventReset   = "RESET"
)

// entryContext is the statekit context type. Entries keep their payload
// outside the machine, so it carries nothing.
type entryContext struct{}

// newEntryMachine builds and starts the per-entry machine:
//
//	idle --LOAD--> loading --SUCCEED--> ready
//	                       --FAIL-----> error
//	loading|ready|error --RESET--> idle
func newEntryMachine() (*statekit.Interpreter[entryContext], error) {
	machine, err := statekit.NewMachine[entryContext]("extension-load").
		WithInitial(idle).
		WithContext(entryContext{}).
		State(idle).
		On(eventLoad).Target(loading).Done().
		State(loading).
		On(eventSucceed).Target(ready).
		On(eventFail).Target(failed).
		On(eventReset).Target(idle).Done().
		State(ready).
		On(eventReset).Target(idle).Done().
		State(failed).
		On(eventReset).Target(idle).Done().
		Build()
	if err != nil {
		return nil, oops.Wrapf(err, "build load state machine")
	}
	interp := statekit.NewInterpreter(machine)
	interp.Start()
	return interp, nil
}

func send(interp *statekit.Interpreter[entryContext], event string) {
	interp.Send(statekit.Event{Type: statekit.EventType(event)})
}

// stateOf reads the interpreter's current state.
func stateOf(interp *statekit.Interpreter[entryContext]) State {
	return State(interp.State().Value)
}
