// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package pool implements a fixed-size worker pool that schedules short
// cooperative work items onto one of N worker goroutines, the Go
// translation of genebits/engine/jobs/thread_pool.h: a single FIFO queue
// behind a mutex and condition variable, wake-one on enqueue, and a
// drain-then-join shutdown.
package pool
