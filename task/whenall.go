// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package task

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// WhenAll returns a Task that completes once every input task has
// completed. Results are collected in input order; the returned task
// fails with the first error encountered among the inputs (errgroup's
// collection order is whichever goroutine returns first, but we always
// read results[i] from tasks[i], so the ordering of results is
// deterministic even though the ordering of completion is not, per §4.2).
func WhenAll[T any](tasks ...*Task[T]) *Task[[]T] {
	return New(func(ctx context.Context) ([]T, error) {
		results := make([]T, len(tasks))

		// Deliberately not errgroup.WithContext: when-all must wait for
		// every input to complete, even after one has failed, so that a
		// predecessor's side effects are always visible to its
		// successors (§5 happens-before). Only the first error is kept.
		var g errgroup.Group
		for i, t := range tasks {
			i, t := i, t
			g.Go(func() error {
				v, err := t.Wait(ctx)
				if err != nil {
					return err
				}
				results[i] = v
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}
		return results, nil
	})
}
