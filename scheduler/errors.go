// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package scheduler

import (
	"fmt"
	"reflect"

	"github.com/grailbio/base/errors"
)

// The five error kinds §7 names, each built from github.com/grailbio/base/errors'
// upspin-style Kind taxonomy. Callers classify with errors.Is or plex.Is.
var (
	// errContextMissing reports that a query fetch required a type absent
	// from both the local and global context.
	errContextMissing = errors.NotExist

	// errContextDuplicate reports that Emplace was called twice for the
	// same type.
	errContextDuplicate = errors.Exists

	// errPlanCycle is defensive: the planner's output would be cyclic,
	// which should be unreachable given the algorithm in planner.go.
	errPlanCycle = errors.Invalid

	// errSystemPanic reports that a user system terminated abnormally.
	errSystemPanic = errors.Fatal

	// errCancelledAtShutdown reports that the scheduler was torn down with
	// work still in flight.
	errCancelledAtShutdown = errors.Canceled
)

func newContextMissingError(systemName string, want reflect.Type) error {
	return errors.E(errContextMissing,
		fmt.Sprintf("scheduler: system %s: no value of type %s in either the local or global context", systemName, want))
}

func newPlanCycleError(stepIndex int) error {
	return errors.E(errPlanCycle,
		fmt.Sprintf("scheduler: planner produced a cyclic plan at step %d; this is a planner bug", stepIndex))
}

func newSystemPanicError(systemName, cause string) error {
	return errors.E(errSystemPanic, fmt.Sprintf("scheduler: system %s panicked: %s", systemName, cause))
}

func newCancelledAtShutdownError() error {
	return errors.E(errCancelledAtShutdown, "scheduler: torn down with a run still in flight")
}
