// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package plex

import (
	"sync/atomic"

	"github.com/grailbio/base/errors"
)

// ErrStageFrozen is returned by AddSystem once the stage has been used in
// any completed or in-flight plan. A frozen stage's system list must never
// change underneath a Plan that was built from it (Decided Open Question
// #2: plan identity is the stage sequence alone, so a stage that kept
// accepting systems after being planned would silently invalidate every
// cached Plan that referenced it).
var ErrStageFrozen = errors.E(errors.Invalid, "plex: stage already used in a plan; AddSystem is no longer allowed")

var stageGeneration int64

// StageHandle stably identifies a Stage for the lifetime of the program.
type StageHandle int64

// Stage is an append-only, insertion-ordered list of System descriptors.
// Order of insertion is meaningful: when two systems in the same stage
// conflict, the earlier-inserted one runs first (§3).
type Stage struct {
	handle StageHandle
	name   string

	systems []*System
	frozen  bool
}

// NewStage creates an empty, named Stage. name is used only for
// diagnostics; stage identity for dependency-planning purposes is the
// Stage's pointer/handle, not its name.
func NewStage(name string) *Stage {
	return &Stage{
		handle: StageHandle(atomic.AddInt64(&stageGeneration, 1)),
		name:   name,
	}
}

// Handle returns the stage's stable identity.
func (s *Stage) Handle() StageHandle { return s.handle }

// Name returns the stage's diagnostic name.
func (s *Stage) Name() string { return s.name }

// Systems returns the stage's systems in insertion order (after any
// Placement reordering performed at AddSystem time). The returned slice
// must not be mutated by the caller.
func (s *Stage) Systems() []*System { return s.systems }

// Placement is a builder-style hint that picks an insertion index into
// the stage's current (not-yet-inserted) system list. It does not change
// which systems conflict, but the planner orders conflicting systems of a
// stage by their final position in this list, so a placement decides which
// of two conflicting systems runs first. For non-conflicting systems it
// only changes the listed order.
type Placement func(systems []*System) (index int, ok bool)

// Before places the new system immediately ahead of the first system in
// the stage with the given handle, if found; otherwise it has no effect.
func Before(handle SystemHandle) Placement {
	return func(systems []*System) (int, bool) {
		for i, sys := range systems {
			if sys.Handle() == handle {
				return i, true
			}
		}
		return 0, false
	}
}

// After places the new system immediately behind the first system in the
// stage with the given handle, if found; otherwise it has no effect.
func After(handle SystemHandle) Placement {
	return func(systems []*System) (int, bool) {
		for i, sys := range systems {
			if sys.Handle() == handle {
				return i + 1, true
			}
		}
		return 0, false
	}
}

// AddSystem inserts sys into the stage, defaulting to the end unless a
// placement hint resolves to an earlier index; the first placement hint
// to resolve wins. AddSystem returns ErrStageFrozen if the stage has
// already been frozen (used in a scheduled run) — see the planner's
// immutability contract in §3.
func (s *Stage) AddSystem(sys *System, placements ...Placement) error {
	if s.frozen {
		return ErrStageFrozen
	}

	idx := len(s.systems)
	for _, p := range placements {
		if i, ok := p(s.systems); ok {
			idx = i
			break
		}
	}

	out := make([]*System, 0, len(s.systems)+1)
	out = append(out, s.systems[:idx]...)
	out = append(out, sys)
	out = append(out, s.systems[idx:]...)
	s.systems = out
	return nil
}

// Freeze marks the stage as immutable. The scheduler calls this the first
// time a stage sequence containing it is planned.
func (s *Stage) Freeze() { s.frozen = true }
