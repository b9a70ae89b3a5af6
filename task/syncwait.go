// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package task

import (
	"context"
)

// SyncWait blocks the calling OS thread (in Go terms: the calling
// goroutine, which the caller must not have parked on a thread-pool
// worker) until task completes, and returns its value.
//
// Calling SyncWait from a pool worker goroutine can deadlock the pool:
// if every worker blocks waiting on a task that itself needs a worker to
// make progress, no goroutine remains to run it. SyncWait panics rather
// than risk a silent deadlock when it detects this via ctx (see
// task.WithWorker, set by plex/pool around every scheduled function).
func SyncWait[T any](ctx context.Context, t *Task[T]) (T, error) {
	if IsWorker(ctx) {
		panic("task: SyncWait called from a thread-pool worker goroutine; this can deadlock the pool, suspend with pool.Schedule instead")
	}
	return t.Wait(ctx)
}
