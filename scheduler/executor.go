// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package scheduler

import (
	"context"
	"sync/atomic"

	"github.com/grailbio/base/status"

	plex "github.com/MathieuDonofrio/plex"
	plextask "github.com/MathieuDonofrio/plex/task"
)

// StepState is the observable lifecycle of one planned step within a run,
// retrievable from the RunState for partial-success diagnostics (§7).
type StepState int32

const (
	StepPending StepState = iota
	StepRunning
	StepSucceeded
	// StepFailed means the step's own system invocation returned an error.
	StepFailed
	// StepSkipped means a predecessor failed, so this step's system was
	// never invoked; Err still reports the predecessor's error (Decided
	// Open Question #1).
	StepSkipped
)

// RunState tracks the per-step outcome of one scheduler run. It is created
// at the start of a run and is safe to read concurrently with the run
// itself, including from another goroutine while the run is still in
// flight, mirroring exec/eval.go's per-task state field.
type RunState struct {
	plan   *Plan
	states []int32
	errs   []atomic.Value // error
}

func newRunState(plan *Plan) *RunState {
	return &RunState{
		plan:   plan,
		states: make([]int32, plan.Len()),
		errs:   make([]atomic.Value, plan.Len()),
	}
}

// StepCount returns the number of steps in the run's plan.
func (r *RunState) StepCount() int { return len(r.states) }

// StepStatus returns the current state of step i.
func (r *RunState) StepStatus(i int) StepState {
	return StepState(atomic.LoadInt32(&r.states[i]))
}

// StepErr returns the error recorded for step i, or nil if it succeeded or
// has not yet finished.
func (r *RunState) StepErr(i int) error {
	v := r.errs[i].Load()
	if v == nil {
		return nil
	}
	return v.(error)
}

func (r *RunState) setState(i int, s StepState, err error) {
	if err != nil {
		r.errs[i].Store(err)
	}
	atomic.StoreInt32(&r.states[i], int32(s))
}

// execute builds one driver task per step (§4.8) and returns both the
// RunState that callers can poll for diagnostics and the outer task that,
// once awaited, runs the whole plan to completion. A step's driver task
// awaits a when-all of its direct predecessors' driver tasks before
// invoking its system; if any predecessor failed, the step is marked
// StepSkipped and its system is never invoked (Decided Open Question #1).
//
// Grounded on engine/include/genebits/engine/ecs/phase.h's Phase::Run /
// MakeSystemTask: co_await counter over trigger tasks, then co_await the
// system's own Update task.
func execute(ctx context.Context, plan *Plan, local, global *plex.Context, group *status.Group) (*RunState, *plextask.Task[error]) {
	state := newRunState(plan)
	n := plan.Len()

	drivers := make([]*plextask.Task[error], n)
	for i := 0; i < n; i++ {
		i := i
		step := plan.Step(i)

		drivers[i] = plextask.New(func(ctx context.Context) (error, error) {
			st := group.Startf("%s", step.System.String())
			defer st.Done()

			if len(step.Predecessors) > 0 {
				st.Print("waiting for predecessors")

				preds := make([]*plextask.Task[error], len(step.Predecessors))
				for j, p := range step.Predecessors {
					preds[j] = drivers[p]
				}

				results, err := plextask.WhenAll(preds...).Wait(ctx)
				if err != nil {
					state.setState(i, StepFailed, err)
					return err, nil
				}

				for _, predErr := range results {
					if predErr != nil {
						state.setState(i, StepSkipped, predErr)
						return predErr, nil
					}
				}
			}

			state.setState(i, StepRunning, nil)
			st.Print("running")

			sysErr, waitErr := step.System.Invoke(ctx, local, global).Wait(ctx)
			if waitErr != nil {
				sysErr = waitErr
			}

			if sysErr != nil {
				state.setState(i, StepFailed, sysErr)
				return sysErr, nil
			}

			state.setState(i, StepSucceeded, nil)
			return nil, nil
		})
	}

	outer := plextask.New(func(ctx context.Context) (error, error) {
		results, err := plextask.WhenAll(drivers...).Wait(ctx)
		if err != nil {
			return err, nil
		}
		for _, stepErr := range results {
			if stepErr != nil {
				return stepErr, nil
			}
		}
		return nil, nil
	})

	return state, outer
}
