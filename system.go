// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package plex

import (
	"context"
	"fmt"
	"reflect"
	"runtime"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/limitbuf"

	plextask "github.com/MathieuDonofrio/plex/task"
)

// SystemHandle stably identifies a registered System for the lifetime of
// the program. It is the function's code pointer, so two handles compare
// equal iff they were produced from functions sharing the same code:
// closures of one function literal, and functions built with
// reflect.MakeFunc, share a handle.
type SystemHandle uintptr

// System is an immutable descriptor wrapping a callable ("the system")
// together with its full, flattened list of QueryDataAccess records. A
// System is produced once, at registration time, by NewSystem, and is
// never mutated afterward.
type System struct {
	handle SystemHandle
	name   string
	access []QueryDataAccess

	fn         reflect.Value
	paramTypes []reflect.Type
}

// errorType and taskErrType are the single return types NewSystem accepts:
// a system function returns nothing, an error, or a *task.Task[error] (for
// systems that want to suspend onto the thread pool mid-invocation).
var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	taskErrType = reflect.TypeOf((*plextask.Task[error])(nil))
)

// NewSystem builds a System descriptor from fn, a plain Go function whose
// parameters are each either:
//   - a Query (and, if it is to be fetched, a Fetchable) type, whose
//     DataAccess() is folded into the system's aggregated access list, or
//   - any other by-value type, treated as an implicit read-only global
//     query (category "global"), per §4.5.
//
// fn must return nothing, an error, or a *task.Task[error].
func NewSystem(fn any) (*System, error) {
	fnVal := reflect.ValueOf(fn)
	fnType := fnVal.Type()
	if fnType.Kind() != reflect.Func {
		return nil, errors.E(errors.Invalid, "plex: NewSystem requires a function, got", fnType)
	}
	switch fnType.NumOut() {
	case 0:
	case 1:
		out := fnType.Out(0)
		if out != errorType && out != taskErrType {
			return nil, errors.E(errors.Invalid, "plex: system function's single return value must be error or *task.Task[error], got", out)
		}
	default:
		return nil, errors.E(errors.Invalid, "plex: system function must return at most one value")
	}

	numIn := fnType.NumIn()
	paramTypes := make([]reflect.Type, numIn)
	var access []QueryDataAccess

	for i := 0; i < numIn; i++ {
		pt := fnType.In(i)
		paramTypes[i] = pt
		access = append(access, accessFor(pt)...)
	}

	return &System{
		handle:     SystemHandle(fnVal.Pointer()),
		name:       runtime.FuncForPC(fnVal.Pointer()).Name(),
		access:     access,
		fn:         fnVal,
		paramTypes: paramTypes,
	}, nil
}

// accessFor returns pt's declared access records if it is a Query type,
// or a single implicit read-only global record otherwise (§4.5).
func accessFor(pt reflect.Type) []QueryDataAccess {
	zero := reflect.Zero(pt)
	if q, ok := zero.Interface().(Query); ok {
		return q.DataAccess()
	}
	return []QueryDataAccess{{Category: "global", TypeID: pt, ReadOnly: true, ThreadSafe: false}}
}

// Handle returns the system's stable identity.
func (s *System) Handle() SystemHandle { return s.handle }

// Name returns the underlying function's name, for diagnostics only.
func (s *System) Name() string { return s.name }

// DataAccess returns the system's full, flattened access list.
func (s *System) DataAccess() []QueryDataAccess { return s.access }

// HasDependency reports whether any of self's access records conflicts
// (per Conflict) with any of other's.
func (s *System) HasDependency(other *System) bool {
	for _, a := range s.access {
		for _, b := range other.access {
			if Conflict(a, b) {
				return true
			}
		}
	}
	return false
}

// Invoke fetches each declared parameter from local/global and calls the
// underlying function, returning a task covering its execution. If the
// function returns eagerly (no error return, or a plain error return), the
// returned task is already complete by the time Invoke returns control to
// its own goroutine; if it returns a *task.Task[error], that task is
// returned directly so the caller observes any suspension the system
// performs (e.g. onto the thread pool).
func (s *System) Invoke(ctx context.Context, local, global *Context) *plextask.Task[error] {
	args := make([]reflect.Value, len(s.paramTypes))
	for i, pt := range s.paramTypes {
		zero := reflect.Zero(pt)
		if f, ok := zero.Interface().(Fetchable); ok {
			fetched, err := f.Fetch(local, global)
			if err != nil {
				return plextask.Done[error](err)
			}
			args[i] = reflect.ValueOf(fetched)
		} else if v, ok := getReflect(local, pt); ok {
			args[i] = v
		} else if v, ok := getReflect(global, pt); ok {
			args[i] = v
		} else {
			return plextask.Done[error](errors.E(errors.NotExist,
				fmt.Sprintf("plex: system %s: no value of type %s in either context", s.name, pt)))
		}
	}

	var out []reflect.Value
	func() {
		defer func() {
			if r := recover(); r != nil {
				out = []reflect.Value{reflect.ValueOf(errors.E(errors.Fatal,
					fmt.Sprintf("plex: system %s panicked: %s", s.name, s.truncate(r))))}
			}
		}()
		out = s.fn.Call(args)
	}()

	if len(out) == 0 {
		return plextask.Done[error](nil)
	}

	if t, ok := out[0].Interface().(*plextask.Task[error]); ok {
		if t == nil {
			return plextask.Done[error](nil)
		}
		return t
	}

	err, _ := out[0].Interface().(error)
	return plextask.Done[error](err)
}

func (s *System) truncate(v any) string {
	b := limitbuf.NewLogger(512)
	fmt.Fprint(b, v)
	return b.String()
}

// String returns a short diagnostic representation of the system.
func (s *System) String() string {
	return fmt.Sprintf("system(%s)", s.name)
}
