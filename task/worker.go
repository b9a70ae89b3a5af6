// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package task

import "context"

type workerKey struct{}

// WithWorker marks ctx as running on a thread-pool worker goroutine. The
// pool package calls this before invoking a scheduled function, so that
// SyncWait can refuse to block a worker (which could deadlock the pool if
// every worker ends up blocked waiting on work only other workers can
// produce).
func WithWorker(ctx context.Context) context.Context {
	return context.WithValue(ctx, workerKey{}, true)
}

// IsWorker reports whether ctx is running on a thread-pool worker
// goroutine.
func IsWorker(ctx context.Context) bool {
	v, _ := ctx.Value(workerKey{}).(bool)
	return v
}
