// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package scheduler implements the dependency planner (C7) and scheduler
// executor (C8) on top of plex's Context/System/Stage types, plus App: the
// registration/run-all shell named in spec §6, grounded on
// core/include/plex/app/app.h.
package scheduler

import (
	"context"
	"reflect"
	"sync"

	"github.com/grailbio/base/status"
	"github.com/grailbio/base/sync/ctxsync"

	plex "github.com/MathieuDonofrio/plex"
	"github.com/MathieuDonofrio/plex/pool"
	plextask "github.com/MathieuDonofrio/plex/task"
)

// Package bundles systems and global resources into one reusable unit that
// can be installed into an App, grounded on
// core/include/plex/app/package.h.
type Package interface {
	Install(app *App) error
}

// Option configures an App at construction time.
type Option func(*App)

// WithStatusGroup attaches a status.Group that per-step progress is
// reported through. If unset, App creates its own.
func WithStatusGroup(group *status.Group) Option {
	return func(a *App) { a.statusGroup = group }
}

// WithWorkers overrides the App's owned thread pool's worker count
// (default runtime.NumCPU(), set by pool.New). A system suspends onto the
// pool by taking a *pool.Pool parameter — App emplaces its own pool into
// the global context at construction time, per §1/§4.8's "offloads
// suspendable systems to the thread pool".
func WithWorkers(n int) Option {
	return func(a *App) { a.poolOpts = append(a.poolOpts, pool.WithWorkers(n)) }
}

// App is the main entry point to a plex-based application: an empty shell
// until systems are registered and stages scheduled, owning the global
// context, the stage registry, the plan cache, and the thread pool.
// Grounded on core/include/plex/app/app.h's App (global_context_,
// scheduler_, work_pool_).
type App struct {
	mu      sync.Mutex
	stages  map[reflect.Type]*plex.Stage
	pending []*plex.Stage

	global      *plex.Context
	cache       planCache
	statusGroup *status.Group

	poolOpts []pool.Option
	pool     *pool.Pool

	cond     *ctxsync.Cond
	inflight int
	lastRun  *RunState
}

// NewApp returns an empty App. It starts the App's thread pool immediately
// (pool.New never blocks) and emplaces it into the global context, so any
// registered system can request it by taking a *pool.Pool parameter.
func NewApp(opts ...Option) *App {
	a := &App{
		stages: make(map[reflect.Type]*plex.Stage),
		global: plex.NewContext(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.statusGroup == nil {
		a.statusGroup = status.New().Group("scheduler")
	}
	a.cond = ctxsync.NewCond(&a.mu)

	a.pool = pool.New(a.poolOpts...)
	if err := plex.Emplace(a.global, a.pool); err != nil {
		// Unreachable: a freshly constructed global context cannot already
		// hold a *pool.Pool.
		panic(err)
	}

	return a
}

// Pool returns the App's owned thread pool.
func (a *App) Pool() *pool.Pool { return a.pool }

// stageTag returns the type tag identifying stage type S, and the App's
// Stage for that tag, creating it on first use. Using a type parameter as
// the stage identity is the idiomatic Go stand-in for the C++ template tag
// in app.h's Schedule<StageType>/AddSystem<StageType>.
func stageTag[S any]() reflect.Type {
	return reflect.TypeOf((*S)(nil)).Elem()
}

func (a *App) stageFor(tag reflect.Type) *plex.Stage {
	a.mu.Lock()
	defer a.mu.Unlock()

	stage, ok := a.stages[tag]
	if !ok {
		stage = plex.NewStage(tag.String())
		a.stages[tag] = stage
	}
	return stage
}

// RegisterSystem adds a system to stage type S, wrapping fn in a
// plex.System. Placements, if given, control its insertion order within
// the stage (see plex.Before / plex.After).
func RegisterSystem[S any](a *App, fn any, placements ...plex.Placement) (*plex.System, error) {
	sys, err := plex.NewSystem(fn)
	if err != nil {
		return nil, err
	}
	if err := a.stageFor(stageTag[S]()).AddSystem(sys, placements...); err != nil {
		return nil, err
	}
	return sys, nil
}

// Schedule enqueues stage type S's stage for the next RunScheduler call.
// Stages are run in the order they were scheduled; scheduling the same
// stage type more than once is allowed and meaningful.
func Schedule[S any](a *App) {
	stage := a.stageFor(stageTag[S]())

	a.mu.Lock()
	a.pending = append(a.pending, stage)
	a.mu.Unlock()
}

// EmplaceGlobal constructs value in place in the App's global context.
// All EmplaceGlobal calls must happen before RunScheduler (§5): the
// context must not be mutated structurally once a run has begun reading
// it.
func EmplaceGlobal[T any](a *App, value T) error {
	return plex.Emplace(a.global, value)
}

// GetGlobal returns the value of type T from the App's global context.
func GetGlobal[T any](a *App) (T, error) {
	return plex.Get[T](a.global)
}

// AddPackage installs pkg into the App.
func (a *App) AddPackage(pkg Package) error {
	return pkg.Install(a)
}

// LastRunState returns the RunState of the most recently started run, or
// nil if RunScheduler has never been called. The returned RunState may
// still be in flight.
func (a *App) LastRunState() *RunState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastRun
}

// RunScheduler consumes the pending stage sequence, obtains (or builds)
// its Plan from the cache, executes it, and clears the pending queue.
// Returns a task covering the whole run; callers block on it with
// task.SyncWait.
func (a *App) RunScheduler(ctx context.Context) *plextask.Task[error] {
	a.mu.Lock()
	stages := a.pending
	a.pending = nil
	a.inflight++
	a.mu.Unlock()

	local := plex.NewContext()

	return plextask.New(func(ctx context.Context) (error, error) {
		defer a.endRun()

		plan, err := a.cache.getOrBuild(stages)
		if err != nil {
			return err, nil
		}

		state, outer := execute(ctx, plan, local, a.global, a.statusGroup)

		a.mu.Lock()
		a.lastRun = state
		a.mu.Unlock()

		return outer.Wait(ctx)
	})
}

func (a *App) endRun() {
	a.mu.Lock()
	a.inflight--
	if a.inflight == 0 {
		a.cond.Broadcast()
	}
	a.mu.Unlock()
}

// Close blocks until every run started via RunScheduler has completed, or
// ctx is done first, then stops the App's thread pool. Grounded on
// exec/bigmachine.go's worker.cond.Wait(ctx) drain loop. If ctx is
// cancelled while runs are still in flight, Close returns a
// CancelledAtShutdown error and leaves the pool running, since work
// already dispatched to it may still need to make progress.
func (a *App) Close(ctx context.Context) error {
	a.mu.Lock()
	for a.inflight > 0 {
		if err := a.cond.Wait(ctx); err != nil {
			a.mu.Unlock()
			return newCancelledAtShutdownError()
		}
	}
	a.mu.Unlock()

	a.pool.Close()
	return nil
}
