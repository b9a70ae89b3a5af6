// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package task

import (
	"context"
	"sync"
)

// Func is the body of a Task: it runs once, on its own goroutine, and
// produces a value or an error.
type Func[T any] func(ctx context.Context) (T, error)

// Task is a lazily-started, single-shot unit of asynchronous work. Its
// zero value is not usable; create one with New. A Task is moveable but
// not copyable — always hold and pass *Task[T], never a Task[T] value.
//
// Creating a Task does not start it. It starts the first time it is
// Waited on or Ejected. Once started, it runs to completion exactly once;
// every subsequent Wait (from any number of goroutines) observes the same
// stored result. This is the "single continuation, resumed atomically"
// contract translated to Go: closing done is the resume, and every
// goroutine parked on it wakes at once.
//
// Policy for a Task whose result is never collected: this package requires
// that every started Task is eventually Waited or Ejected-and-drained by
// its owner before that owner is torn down (the scheduler enforces this
// at the App/run level — see scheduler.App.Close). A Task does not itself
// detect abandonment.
type Task[T any] struct {
	start sync.Once
	done  chan struct{}
	fn    Func[T]
	value T
	err   error
}

// New creates a Task that will run fn the first time it is started.
func New[T any](fn Func[T]) *Task[T] {
	return &Task[T]{done: make(chan struct{}), fn: fn}
}

// Done returns a Task that has already completed with value and a nil
// error. It is used to wrap eager (non-suspending) system invocations in
// an already-complete task, per §4.5.
func Done[T any](value T) *Task[T] {
	t := &Task[T]{done: make(chan struct{}), value: value}
	close(t.done)
	return t
}

// Eject starts the task without waiting for it, detaching it to run to
// completion in the background. Its result can still be collected later
// with Wait.
func (t *Task[T]) Eject(ctx context.Context) {
	t.startOnce(ctx)
}

func (t *Task[T]) startOnce(ctx context.Context) {
	t.start.Do(func() {
		if t.fn == nil {
			// Already-complete task constructed via Done.
			return
		}
		go func() {
			t.value, t.err = t.fn(ctx)
			close(t.done)
		}()
	})
}

// Wait starts the task if it has not already been started, then blocks
// until it completes or ctx is cancelled, whichever comes first. If the
// task has already completed, Wait returns immediately ("resumes
// inline"); otherwise it resumes on whichever goroutine closes done.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	t.startOnce(ctx)

	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Finished reports whether the task has completed. It does not start the
// task.
func (t *Task[T]) Finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
