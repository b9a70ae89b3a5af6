// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package plex

import (
	"reflect"
	"sync"

	"github.com/grailbio/base/errors"
)

// Context is a type-keyed heterogeneous map of shared resources. It
// supports construction-in-place and typed lookup, but no iteration and no
// removal: resources live for as long as the Context does.
//
// A Context is read by many goroutines concurrently during a scheduler
// run. Emplace must only be called before a run starts (see
// scheduler.App.EmplaceGlobal); calling it concurrently with Get is safe.
// Concurrent Emplace calls for the same type are serialized by the lock:
// exactly one succeeds and the others get ContextDuplicate, though which
// caller wins is not defined.
type Context struct {
	mu     sync.RWMutex
	values map[reflect.Type]any
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return &Context{values: make(map[reflect.Type]any)}
}

// Emplace constructs value in place, keyed by its dynamic type. It returns
// ContextDuplicate if a value of that type is already present.
func Emplace[T any](c *Context, value T) error {
	t := reflect.TypeOf(value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.values[t]; ok {
		return errors.E(errors.Exists, "plex: context already has a value of type", t)
	}

	c.values[t] = value
	return nil
}

// Get returns the value of type T, or ContextMissing if none is present.
func Get[T any](c *Context) (T, error) {
	var zero T
	t := reflect.TypeOf(zero)

	c.mu.RLock()
	v, ok := c.values[t]
	c.mu.RUnlock()

	if !ok {
		return zero, errors.E(errors.NotExist, "plex: context has no value of type", t)
	}
	return v.(T), nil
}

// getReflect fetches a value keyed by an arbitrary reflect.Type, used by
// the System descriptor to fetch implicit by-value parameters that are not
// themselves Query types.
func getReflect(c *Context, t reflect.Type) (reflect.Value, bool) {
	c.mu.RLock()
	v, ok := c.values[t]
	c.mu.RUnlock()

	if !ok {
		return reflect.Value{}, false
	}
	return reflect.ValueOf(v), true
}
