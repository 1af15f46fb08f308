package planner

import (
	"strconv"
	"testing"

	engerrors "lateral/engine/internal/errors"
)

type fakeCounter map[string]int

func (f fakeCounter) StepCount(technique string) (int, error) {
	n, ok := f[technique]
	if !ok {
		return 0, engerrors.Newf(engerrors.CodeUnknownTechnique, "unknown technique %q", technique)
	}
	return n, nil
}

func TestCompileSequentialCumulativeStepsMonotonic(t *testing.T) {
	c := New(fakeCounter{"six_hats": 6, "scamper": 7})
	plan, err := c.Compile(Input{Problem: "p", Techniques: []string{"six_hats", "scamper"}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(plan.Workflow) != 13 {
		t.Fatalf("expected 13 steps, got %d", len(plan.Workflow))
	}
	seen := make(map[string]bool)
	prev := 0
	for _, step := range plan.Workflow {
		if step.CumulativeStep <= prev {
			t.Fatalf("cumulative steps not strictly monotonic at %+v", step)
		}
		prev = step.CumulativeStep
		key := step.Technique + "#" + strconv.Itoa(step.LocalStep)
		if seen[key] {
			t.Fatalf("duplicate (technique, localStep) pair: %+v", step)
		}
		seen[key] = true
	}
}

func TestCompileUnknownTechniquePropagatesError(t *testing.T) {
	c := New(fakeCounter{"six_hats": 6})
	_, err := c.Compile(Input{Problem: "p", Techniques: []string{"nope"}})
	if engerrors.GetCode(err) != engerrors.CodeUnknownTechnique {
		t.Fatalf("expected unknown technique error, got %v", err)
	}
}

func TestCompileParallelDetectsCycle(t *testing.T) {
	c := New(fakeCounter{"a": 1, "b": 1})
	_, err := c.Compile(Input{
		Problem:       "p",
		Techniques:    []string{"a", "b"},
		ExecutionMode: "parallel",
		Dependencies:  map[string][]string{"a": {"b"}, "b": {"a"}},
	})
	if engerrors.GetCode(err) != engerrors.CodePlanCycleDetected {
		t.Fatalf("expected cycle detection error, got %v", err)
	}
}

func TestCompileParallelAcyclicSucceeds(t *testing.T) {
	c := New(fakeCounter{"a": 2, "b": 2})
	plan, err := c.Compile(Input{
		Problem:       "p",
		Techniques:    []string{"a", "b"},
		ExecutionMode: "parallel",
		Dependencies:  map[string][]string{"b": {"a"}},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(plan.ParallelPlans) != 2 {
		t.Fatalf("expected 2 parallel plans, got %d", len(plan.ParallelPlans))
	}
}
