// Package planner implements the PlanCompiler (component 8): from a
// problem, a technique list, and an execution mode, it produces an ordered
// workflow (sequential mode) or a set of independently-dependent parallel
// plans with a validated dependency DAG (parallel mode).
package planner

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"lateral/engine/internal/domain"
	engerrors "lateral/engine/internal/errors"
)

// StepCounter reports a technique's total local step count.
type StepCounter interface {
	StepCount(technique string) (int, error)
}

// timeframeDurations maps a timeframe preset to the per-step expected
// duration shown in workflow steps.
var timeframeDurations = map[string]string{
	"":              "5-10 minutes",
	"quick":         "2-3 minutes",
	"thorough":      "5-10 minutes",
	"comprehensive": "10-20 minutes",
}

// Compiler builds Plans from validated planning requests.
type Compiler struct {
	steps StepCounter
	clock func() time.Time
}

// New constructs a compiler over the given step counter (normally a
// techniques.Registry).
func New(steps StepCounter) *Compiler {
	return &Compiler{steps: steps, clock: func() time.Time { return time.Now().UTC() }}
}

// Input is a validated planThinkingSession request.
type Input struct {
	Problem       string
	Techniques    []string
	Timeframe     string
	ExecutionMode string // "" or "sequential" defaults to sequential
	// Dependencies maps a technique to the techniques its parallel plan
	// depends on. Only consulted in parallel mode.
	Dependencies map[string][]string
}

// Compile produces a Plan. In parallel mode, it additionally builds
// ParallelPlans and validates their dependency graph is a DAG.
func (c *Compiler) Compile(in Input) (*domain.Plan, error) {
	mode := domain.ModeSequential
	if in.ExecutionMode == string(domain.ModeParallel) {
		mode = domain.ModeParallel
	}

	workflow, err := c.buildWorkflow(in.Techniques, in.Timeframe)
	if err != nil {
		return nil, err
	}

	plan := &domain.Plan{
		PlanID:     uuid.NewString(),
		Problem:    in.Problem,
		Techniques: append([]string(nil), in.Techniques...),
		Mode:       mode,
		Workflow:   workflow,
		CreatedAt:  c.clock(),
	}

	if mode == domain.ModeParallel {
		parallelPlans, err := c.buildParallelPlans(in, workflow)
		if err != nil {
			return nil, err
		}
		plan.ParallelPlans = parallelPlans
	}

	return plan, nil
}

// buildWorkflow lays out an ordered, cumulative-step workflow across all
// techniques in the order given. Cumulative steps are strictly monotonic
// and each (technique, localStep) pair appears exactly once.
func (c *Compiler) buildWorkflow(techniquesList []string, timeframe string) ([]domain.WorkflowStep, error) {
	duration := timeframeDurations[timeframe]
	if duration == "" {
		duration = timeframeDurations[""]
	}

	var workflow []domain.WorkflowStep
	cumulative := 0
	for _, technique := range techniquesList {
		total, err := c.steps.StepCount(technique)
		if err != nil {
			return nil, err
		}
		for local := 1; local <= total; local++ {
			cumulative++
			workflow = append(workflow, domain.WorkflowStep{
				Technique:      technique,
				LocalStep:      local,
				CumulativeStep: cumulative,
				Description:    fmt.Sprintf("%s step %d of %d", technique, local, total),
				ExpectedDuration: duration,
			})
		}
	}
	return workflow, nil
}

// buildParallelPlans splits workflow per technique into independent
// ParallelPlan branches and validates the declared dependency graph.
func (c *Compiler) buildParallelPlans(in Input, workflow []domain.WorkflowStep) ([]domain.ParallelPlan, error) {
	byTechnique := make(map[string][]domain.WorkflowStep)
	for _, step := range workflow {
		byTechnique[step.Technique] = append(byTechnique[step.Technique], step)
	}

	plans := make([]domain.ParallelPlan, 0, len(in.Techniques))
	for _, technique := range in.Techniques {
		deps := in.Dependencies[technique]
		plans = append(plans, domain.ParallelPlan{
			PlanID:                  uuid.NewString(),
			Techniques:              []string{technique},
			Workflow:                byTechnique[technique],
			CanExecuteIndependently: len(deps) == 0,
			Dependencies:            deps,
		})
	}

	if err := validateDAG(plans); err != nil {
		return nil, err
	}
	return plans, nil
}

// validateDAG rejects cyclic dependency graphs between parallel plans at
// planning time (spec §3.2), using each plan's lead technique as its node
// identity since each technique appears in exactly one parallel plan.
func validateDAG(plans []domain.ParallelPlan) error {
	adjacency := make(map[string][]string, len(plans))
	for _, p := range plans {
		if len(p.Techniques) == 0 {
			continue
		}
		adjacency[p.Techniques[0]] = p.Dependencies
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(adjacency))

	var visit func(node string, path []string) error
	visit = func(node string, path []string) error {
		switch color[node] {
		case black:
			return nil
		case gray:
			return engerrors.Newf(engerrors.CodePlanCycleDetected,
				"dependency cycle detected involving %q", node).
				WithContext("cycle", fmt.Sprint(append(path, node)))
		}
		color[node] = gray
		for _, dep := range adjacency[node] {
			if err := visit(dep, append(path, node)); err != nil {
				return err
			}
		}
		color[node] = black
		return nil
	}

	for node := range adjacency {
		if color[node] == white {
			if err := visit(node, nil); err != nil {
				return err
			}
		}
	}
	return nil
}
