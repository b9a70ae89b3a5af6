// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pool

import (
	"context"
	"runtime"
	"sync"

	"github.com/grailbio/base/backgroundcontext"
	"github.com/grailbio/base/log"

	plextask "github.com/MathieuDonofrio/plex/task"
)

// Pool is a fixed-size pool of worker goroutines draining a single FIFO
// task queue. Enqueue takes the lock, pushes, unlocks, then wakes exactly
// one waiter — never all of them — so that a burst of small items does
// not thunder every idle worker at once (§4.3).
type Pool struct {
	mu        sync.Mutex
	cond      *sync.Cond
	queue     []func()
	running   bool
	workers   int
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Option configures a Pool at construction time.
type Option func(*config)

type config struct {
	workers int
}

// WithWorkers overrides the default worker count (runtime.NumCPU()).
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// New starts a Pool with the given options and returns it running.
// Default size is one worker per logical CPU (§4.3's fallback chain ends
// here: this package never queries physical topology, since CPU topology
// is explicitly out of scope — correctness must not depend on it).
func New(opts ...Option) *Pool {
	c := config{workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(&c)
	}
	if c.workers < 1 {
		c.workers = 1
	}

	p := &Pool{running: true, workers: c.workers}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < c.workers; i++ {
		p.wg.Add(1)
		go p.run(backgroundcontext.Get())
	}
	return p
}

// WorkerCount returns the number of worker goroutines in the pool.
func (p *Pool) WorkerCount() int { return p.workers }

// enqueue pushes fn to the back of the queue and wakes exactly one idle
// worker. Enqueuing after Close is a programmer error.
func (p *Pool) enqueue(fn func()) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		panic("pool: Schedule called after Close")
	}
	p.queue = append(p.queue, fn)
	p.mu.Unlock()

	p.cond.Signal()
}

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()

	ctx = plextask.WithWorker(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	for p.running || len(p.queue) > 0 {
		if len(p.queue) == 0 {
			p.cond.Wait()
			continue
		}

		fn := p.queue[0]
		p.queue = p.queue[1:]

		p.mu.Unlock()
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error.Printf("pool: worker item panicked: %v", r)
				}
			}()
			fn()
		}()
		p.mu.Lock()
	}
}

// Schedule returns a Task that completes, with no error, once a worker
// goroutine has picked it up and run it to completion. Awaiting it is the
// "reschedule the current task's continuation onto the pool" suspension
// point from §4.3/§5: the calling goroutine blocks in Wait, but any other
// goroutines are free to make progress, and the work itself always runs
// on a pool worker.
func (p *Pool) Schedule(ctx context.Context) *plextask.Task[struct{}] {
	return plextask.New(func(ctx context.Context) (struct{}, error) {
		done := make(chan struct{})
		p.enqueue(func() { close(done) })

		select {
		case <-done:
			return struct{}{}, nil
		case <-ctx.Done():
			return struct{}{}, ctx.Err()
		}
	})
}

// Go schedules fn to run on a worker and returns a task covering its
// result.
func Go[T any](p *Pool, fn func(ctx context.Context) (T, error)) *plextask.Task[T] {
	return plextask.New(func(ctx context.Context) (T, error) {
		type result struct {
			v   T
			err error
		}
		resc := make(chan result, 1)
		p.enqueue(func() {
			v, err := fn(plextask.WithWorker(ctx))
			resc <- result{v, err}
		})

		select {
		case r := <-resc:
			return r.v, r.err
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	})
}

// Close stops accepting new work, wakes every worker, and blocks until
// the queue has drained and every worker has exited. Close requires the
// queue to already be empty of work that was never going to be picked up
// (it will still run whatever is already queued); enqueuing after Close
// has returned is a programmer error, matching the teacher's
// DestroyWorkers assertion.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()

		p.cond.Broadcast()
		p.wg.Wait()
	})
}
