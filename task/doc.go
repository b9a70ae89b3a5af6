// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package task implements a lazy, single-shot asynchronous computation
// primitive and the combinators used to wait on it. A Task is the Go
// analogue of the stackless-coroutine Task described in the source engine
// (genebits/engine/parallel/task.h): it does not start until it is waited
// on or explicitly ejected, it is moveable but not copyable (always held
// by pointer), and it runs at most once: any number of goroutines may Wait
// on it, and all of them observe the same stored result.
package task
