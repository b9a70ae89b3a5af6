// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package scheduler

import (
	plex "github.com/MathieuDonofrio/plex"
)

// Step is one planned invocation of one system within a compiled Plan. It
// carries only its direct, transitively-reduced predecessor indices —
// predecessors always strictly precede the step's own index, since steps
// are emitted in topological (source) order.
type Step struct {
	System       *plex.System
	Predecessors []int
}

// Plan is the compiled, transitively-reduced dependency DAG for one
// concrete sequence of stages. A Plan is immutable once built and safe for
// concurrent read access from many goroutines.
type Plan struct {
	steps []Step
}

// Len returns the number of steps in the plan.
func (p *Plan) Len() int { return len(p.steps) }

// Step returns the i'th step.
func (p *Plan) Step(i int) Step { return p.steps[i] }

// DependsOn reports whether the step running system a transitively depends
// on the step running system b, a debug/test-only introspection query
// grounded on Phase::CheckDependency.
func (p *Plan) DependsOn(a, b plex.SystemHandle) bool {
	indexOf := func(h plex.SystemHandle) int {
		for i, s := range p.steps {
			if s.System.Handle() == h {
				return i
			}
		}
		return -1
	}

	ai, bi := indexOf(a), indexOf(b)
	if ai < 0 || bi < 0 {
		return false
	}

	var reaches func(i, target int, seen map[int]bool) bool
	reaches = func(i, target int, seen map[int]bool) bool {
		if seen[i] {
			return false
		}
		seen[i] = true
		for _, pred := range p.steps[i].Predecessors {
			if pred == target || reaches(pred, target, seen) {
				return true
			}
		}
		return false
	}

	return reaches(ai, bi, map[int]bool{})
}

// buildPlan implements §4.7's algorithm: flatten the stage sequence into a
// system vector V, build the raw forward-only conflict matrix, transitively
// reduce it, and emit one Step per system with its minimal direct
// predecessor set. Grounded 1:1 on
// engine/source/genebits/engine/ecs/phase.cpp's ComputeAdjacencyMatrix and
// PruneRedundant.
func buildPlan(stages []*plex.Stage) *Plan {
	var systems []*plex.System
	for _, stage := range stages {
		systems = append(systems, stage.Systems()...)
	}

	n := len(systems)

	// M[j][i] is true iff i < j and systems[i] conflicts with systems[j].
	// Only ever populated for i < j, which is what makes the resulting
	// graph acyclic by construction: no step can depend on a later one.
	matrix := make([][]bool, n)
	for j := range matrix {
		matrix[j] = make([]bool, n)
		for i := 0; i < j; i++ {
			matrix[j][i] = systems[i].HasDependency(systems[j])
		}
	}

	// Transitive reduction: if k depends on i and i depends on j, k need
	// not directly wait on j, since waiting on i already implies j has
	// completed.
	for i := 0; i < n; i++ {
		for j := 0; j < i; j++ {
			if !matrix[i][j] {
				continue
			}
			for k := i + 1; k < n; k++ {
				if matrix[k][i] {
					matrix[k][j] = false
				}
			}
		}
	}

	steps := make([]Step, n)
	for i := 0; i < n; i++ {
		var preds []int
		for j := 0; j < i; j++ {
			if matrix[i][j] {
				preds = append(preds, j)
			}
		}
		steps[i] = Step{System: systems[i], Predecessors: preds}
	}

	return &Plan{steps: steps}
}
