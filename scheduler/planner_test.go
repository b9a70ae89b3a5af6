// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package scheduler

import (
	"testing"

	plex "github.com/MathieuDonofrio/plex"
)

// Marker component types standing in for the C++ algorithm tests'
// MockData<0..6>, ported from
// core/test/unit/scheduler/scheduler_algorithm_tests.cpp.
type (
	data0 struct{}
	data1 struct{}
	data2 struct{}
	data3 struct{}
	data4 struct{}
	data5 struct{}
	data6 struct{}
)

func mustSystem(t *testing.T, fn any) *plex.System {
	t.Helper()
	sys, err := plex.NewSystem(fn)
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	return sys
}

// runsAfter reports whether system2 transitively depends on system1 (i.e.
// "system2 runs after system1"), the same relation the ported tests call
// RunsAfter.
func runsAfter(plan *Plan, system1, system2 *plex.System) bool {
	return plan.DependsOn(system2.Handle(), system1.Handle())
}

func isOrderedExclusive(plan *Plan, system1, system2 *plex.System) bool {
	cond1 := runsAfter(plan, system1, system2)
	cond2 := runsAfter(plan, system2, system1)
	return (cond1 || cond2) && !(cond1 && cond2)
}

func hasCircularDependency(plan *Plan) bool {
	for i := range plan.steps {
		for _, dep := range plan.steps[i].Predecessors {
			if isCyclic(plan, i, dep) {
				return true
			}
		}
	}
	return false
}

func isCyclic(plan *Plan, system, i int) bool {
	for _, dep := range plan.steps[i].Predecessors {
		if dep == system || isCyclic(plan, system, dep) {
			return true
		}
	}
	return false
}

func TestComputeSchedulerData_NoSystems_ZeroSteps(t *testing.T) {
	plan := buildPlan(nil)

	if got, want := plan.Len(), 0; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
}

func TestComputeSchedulerData_SingleSystem_OneStep(t *testing.T) {
	sys := mustSystem(t, func() {})

	stage := plex.NewStage("stage1")
	stage.AddSystem(sys)

	plan := buildPlan([]*plex.Stage{stage})

	if got, want := plan.Len(), 1; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
	if got, want := plan.Step(0).System.Handle(), sys.Handle(); got != want {
		t.Fatalf("step 0 system handle = %v, want %v", got, want)
	}
	if got := plan.Step(0).Predecessors; len(got) != 0 {
		t.Fatalf("step 0 predecessors = %v, want empty", got)
	}
}

func TestComputeSchedulerData_TwoSystemsNoQueriesOneStage_CanRunInParallel(t *testing.T) {
	system1 := mustSystem(t, func() {})
	system2 := mustSystem(t, func() {})

	stage := plex.NewStage("stage1")
	stage.AddSystem(system1)
	stage.AddSystem(system2)

	plan := buildPlan([]*plex.Stage{stage})

	if got, want := plan.Len(), 2; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
	if hasCircularDependency(plan) {
		t.Fatal("plan has a circular dependency")
	}
	if runsAfter(plan, system1, system2) {
		t.Fatal("system2 should not depend on system1")
	}
	if runsAfter(plan, system2, system1) {
		t.Fatal("system1 should not depend on system2")
	}
}

func TestComputeSchedulerData_TwoSystemsNoQueriesTwoStages_CanRunInParallel(t *testing.T) {
	system1 := mustSystem(t, func() {})
	system2 := mustSystem(t, func() {})

	stage1 := plex.NewStage("stage1")
	stage1.AddSystem(system1)

	stage2 := plex.NewStage("stage2")
	stage2.AddSystem(system2)

	plan := buildPlan([]*plex.Stage{stage1, stage2})

	if got, want := plan.Len(), 2; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
	if hasCircularDependency(plan) {
		t.Fatal("plan has a circular dependency")
	}
	if runsAfter(plan, system1, system2) || runsAfter(plan, system2, system1) {
		t.Fatal("systems in different stages with no conflict must not be ordered")
	}
}

func TestComputeSchedulerData_TwoSystemsWithDependencySameStage_Ordered(t *testing.T) {
	system1 := mustSystem(t, func(plex.Write[data0]) {})
	system2 := mustSystem(t, func(plex.Write[data0]) {})

	stage := plex.NewStage("stage1")
	stage.AddSystem(system1)
	stage.AddSystem(system2)

	plan := buildPlan([]*plex.Stage{stage})

	if got, want := plan.Len(), 2; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
	if hasCircularDependency(plan) {
		t.Fatal("plan has a circular dependency")
	}
	if !isOrderedExclusive(plan, system1, system2) {
		t.Fatal("conflicting systems in the same stage must be exclusively ordered")
	}
}

func TestComputeSchedulerData_TwoSystemsWithDependencyDifferentStage_InSequence(t *testing.T) {
	system1 := mustSystem(t, func(plex.Write[data0]) {})
	system2 := mustSystem(t, func(plex.Write[data0]) {})

	stage1 := plex.NewStage("stage1")
	stage1.AddSystem(system1)

	stage2 := plex.NewStage("stage2")
	stage2.AddSystem(system2)

	plan := buildPlan([]*plex.Stage{stage1, stage2})

	if got, want := plan.Len(), 2; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
	if hasCircularDependency(plan) {
		t.Fatal("plan has a circular dependency")
	}
	if !isOrderedExclusive(plan, system1, system2) {
		t.Fatal("conflicting systems across stages must be exclusively ordered")
	}
}

func TestComputeSchedulerData_Complex4Systems_InCorrectSequence(t *testing.T) {
	system1 := mustSystem(t, func(plex.Write[data0], plex.Write[data2]) {})
	system2 := mustSystem(t, func(plex.Write[data0], plex.Read[data2]) {})

	system3 := mustSystem(t, func(plex.Write[data0], plex.Write[data3]) {})
	system4 := mustSystem(t, func(plex.Write[data3]) {})

	stage1 := plex.NewStage("stage1")
	stage1.AddSystem(system1)
	stage1.AddSystem(system2)

	stage2 := plex.NewStage("stage2")
	stage2.AddSystem(system3)
	stage2.AddSystem(system4)

	plan := buildPlan([]*plex.Stage{stage1, stage2})

	if got, want := plan.Len(), 4; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
	if hasCircularDependency(plan) {
		t.Fatal("plan has a circular dependency")
	}

	if !isOrderedExclusive(plan, system1, system2) {
		t.Error("system1/system2 (stage1, conflicting on data0) must be exclusively ordered")
	}

	if runsAfter(plan, system3, system1) || runsAfter(plan, system4, system1) {
		t.Error("stage2 systems must not run before system1")
	}
	if runsAfter(plan, system3, system2) || runsAfter(plan, system4, system2) {
		t.Error("stage2 systems must not run before system2")
	}

	if !isOrderedExclusive(plan, system3, system4) {
		t.Error("system3/system4 (stage2, conflicting on data3) must be exclusively ordered")
	}

	if !runsAfter(plan, system1, system3) && !runsAfter(plan, system2, system3) {
		t.Error("system3 must depend on at least one of system1/system2 via data0")
	}
	if runsAfter(plan, system1, system4) || runsAfter(plan, system2, system4) {
		t.Error("system4 (writes only data3) must not depend on system1/system2 (data0/data2)")
	}
}

// TestComputeSchedulerData_Complex8Systems_RunsAfterDependencies ports the
// 8-system graph from
// core/test/unit/scheduler/scheduler_algorithm_tests.cpp verbatim: three
// stages, systems declaring overlapping read/write access across seven
// component types, exercising both same-stage and cross-stage transitive
// reduction at once.
func TestComputeSchedulerData_Complex8Systems_RunsAfterDependencies(t *testing.T) {
	system1 := mustSystem(t, func(plex.Write[data0], plex.Write[data1]) {})
	system2 := mustSystem(t, func(plex.Write[data0], plex.Write[data2]) {})

	system3 := mustSystem(t, func(plex.Write[data0], plex.Read[data1]) {})
	system4 := mustSystem(t, func(plex.Write[data3], plex.Read[data2], plex.Read[data1]) {})

	system5 := mustSystem(t, func(plex.Read[data0], plex.Read[data3], plex.Write[data4]) {})
	system6 := mustSystem(t, func(plex.Read[data0], plex.Read[data2], plex.Write[data5]) {})
	system7 := mustSystem(t, func(plex.Read[data1], plex.Write[data4], plex.Write[data5]) {})
	system8 := mustSystem(t, func(plex.Read[data0], plex.Read[data5], plex.Write[data6]) {})

	stage1 := plex.NewStage("stage1")
	stage1.AddSystem(system1)
	stage1.AddSystem(system2)

	stage2 := plex.NewStage("stage2")
	stage2.AddSystem(system3)
	stage2.AddSystem(system4)

	stage3 := plex.NewStage("stage3")
	stage3.AddSystem(system5)
	stage3.AddSystem(system6)
	stage3.AddSystem(system7)
	stage3.AddSystem(system8)

	plan := buildPlan([]*plex.Stage{stage1, stage2, stage3})

	if got, want := plan.Len(), 8; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
	if hasCircularDependency(plan) {
		t.Fatal("plan has a circular dependency")
	}

	for _, tc := range []struct {
		name string
		pred *plex.System
		succ *plex.System
	}{
		{"system3 after system1", system1, system3},
		{"system3 after system2", system2, system3},
		{"system4 after system1", system1, system4},
		{"system4 after system2", system2, system4},
		{"system5 after system1", system1, system5},
		{"system5 after system2", system2, system5},
		{"system5 after system3", system3, system5},
		{"system5 after system4", system4, system5},
		{"system6 after system1", system1, system6},
		{"system6 after system2", system2, system6},
		{"system6 after system3", system3, system6},
		{"system7 after system1", system1, system7},
		{"system8 after system1", system1, system8},
		{"system8 after system2", system2, system8},
		{"system8 after system3", system3, system8},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if !runsAfter(plan, tc.pred, tc.succ) {
				t.Errorf("expected %s", tc.name)
			}
		})
	}
}

func TestPlan_Determinism(t *testing.T) {
	system1 := mustSystem(t, func(plex.Write[data0]) {})
	system2 := mustSystem(t, func(plex.Write[data0]) {})

	newStages := func() []*plex.Stage {
		stage := plex.NewStage("stage1")
		stage.AddSystem(system1)
		stage.AddSystem(system2)
		return []*plex.Stage{stage}
	}

	plan1 := buildPlan(newStages())
	plan2 := buildPlan(newStages())

	if plan1.Len() != plan2.Len() {
		t.Fatalf("plan lengths differ: %d vs %d", plan1.Len(), plan2.Len())
	}
	for i := 0; i < plan1.Len(); i++ {
		a, b := plan1.Step(i), plan2.Step(i)
		if a.System.Handle() != b.System.Handle() {
			t.Fatalf("step %d system differs", i)
		}
		if len(a.Predecessors) != len(b.Predecessors) {
			t.Fatalf("step %d predecessor count differs", i)
		}
		for j := range a.Predecessors {
			if a.Predecessors[j] != b.Predecessors[j] {
				t.Fatalf("step %d predecessor %d differs", i, j)
			}
		}
	}
}

func TestPlan_ThreadSafeReadWrite_NoEdge(t *testing.T) {
	system1 := mustSystem(t, func(plex.WriteSafe[data0]) {})
	system2 := mustSystem(t, func(plex.WriteSafe[data0]) {})

	stage := plex.NewStage("stage1")
	stage.AddSystem(system1)
	stage.AddSystem(system2)

	plan := buildPlan([]*plex.Stage{stage})

	if runsAfter(plan, system1, system2) || runsAfter(plan, system2, system1) {
		t.Fatal("thread-safe writes to the same type must not be ordered")
	}
}

func TestPlan_ReadRead_NoEdge(t *testing.T) {
	system1 := mustSystem(t, func(plex.Read[data0]) {})
	system2 := mustSystem(t, func(plex.Read[data0]) {})

	stage := plex.NewStage("stage1")
	stage.AddSystem(system1)
	stage.AddSystem(system2)

	plan := buildPlan([]*plex.Stage{stage})

	if runsAfter(plan, system1, system2) || runsAfter(plan, system2, system1) {
		t.Fatal("two read-only accesses to the same type must not be ordered")
	}
}

func TestPlan_WriteAnything_Serializes(t *testing.T) {
	system1 := mustSystem(t, func(plex.Write[data0]) {})
	system2 := mustSystem(t, func(plex.Read[data0]) {})

	stage := plex.NewStage("stage1")
	stage.AddSystem(system1)
	stage.AddSystem(system2)

	plan := buildPlan([]*plex.Stage{stage})

	if !isOrderedExclusive(plan, system1, system2) {
		t.Fatal("a write and any other access to the same type must be ordered")
	}
}
