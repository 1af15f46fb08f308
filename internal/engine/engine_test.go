package engine

import (
	"context"
	"sync"
	"testing"

	"lateral/engine/internal/config"
	"lateral/engine/internal/domain"
	"lateral/engine/internal/dto"
	engerrors "lateral/engine/internal/errors"
	"lateral/engine/internal/registry"
	"lateral/engine/internal/techniques"
)

// fakePathStore is an in-memory pathmemory.Store for tests that don't need
// real persistence.
type fakePathStore struct {
	mu     sync.Mutex
	events map[string][]*domain.PathEvent
}

func newFakePathStore() *fakePathStore {
	return &fakePathStore{events: make(map[string][]*domain.PathEvent)}
}

func (f *fakePathStore) AppendPathEvent(_ context.Context, sessionID string, seq int, e *domain.PathEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[sessionID] = append(f.events[sessionID], e)
	return nil
}

func (f *fakePathStore) ListPathEvents(_ context.Context, sessionID string) ([]*domain.PathEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.PathEvent(nil), f.events[sessionID]...), nil
}

func (f *fakePathStore) NextPathEventSeq(_ context.Context, sessionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events[sessionID]) + 1, nil
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	reg := registry.New(registry.Limits{}, nil)
	techReg := techniques.NewDefaultRegistry()
	cfg := config.Default()
	cfg.Timeouts.StaleThreshold = 0
	cfg.Timeouts.DependencyWait = 0
	return New(cfg, reg, techReg, newFakePathStore(), nil)
}

func TestDiscoverTechniquesRejectsEmptyProblem(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.DiscoverTechniques(dto.DiscoverInput{})
	if engerrors.GetCode(err) != engerrors.CodeValidationFailed {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDiscoverTechniquesRanksByKeywordMatch(t *testing.T) {
	e := newTestEngine(t)
	out, err := e.DiscoverTechniques(dto.DiscoverInput{Problem: "should we take this risk? evaluate the tradeoff and decision"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(out.Recommendations) == 0 {
		t.Fatal("expected recommendations")
	}
	if out.Recommendations[0].Technique != "six_hats" {
		t.Fatalf("expected six_hats to rank first, got %+v", out.Recommendations)
	}
}

func TestPlanThenExecuteSequentialFullWorkflow(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	plan, err := e.PlanThinkingSession(ctx, dto.PlanInput{Problem: "p", Techniques: []string{"six_hats"}})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.TotalSteps() != 6 {
		t.Fatalf("expected 6 steps, got %d", plan.TotalSteps())
	}

	var sessionID string
	for step := 1; step <= 6; step++ {
		resp, err := e.ExecuteThinkingStep(ctx, dto.ExecuteInput{
			PlanID:         plan.PlanID,
			Technique:      "six_hats",
			Problem:        "p",
			SessionID:      sessionID,
			CurrentStep:    step,
			TotalSteps:     6,
			Output:         "step output",
			NextStepNeeded: step < 6,
		})
		if err != nil {
			t.Fatalf("execute step %d: %v", step, err)
		}
		sessionID = resp.SessionID
		if resp.Blocked {
			t.Fatalf("step %d unexpectedly blocked: %s", step, resp.BlockReason)
		}
	}
}

func TestExecuteBlocksEarlyTerminationBelowThreshold(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	plan, err := e.PlanThinkingSession(ctx, dto.PlanInput{Problem: "p", Techniques: []string{"six_hats"}})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	resp, err := e.ExecuteThinkingStep(ctx, dto.ExecuteInput{
		PlanID:         plan.PlanID,
		Technique:      "six_hats",
		Problem:        "p",
		CurrentStep:    1,
		TotalSteps:     6,
		Output:         "first step only",
		NextStepNeeded: false,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !resp.Blocked {
		t.Fatal("expected early termination at 1/6 complete to be blocked under standard enforcement")
	}
}

func TestExecuteUnknownPlanFails(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.ExecuteThinkingStep(context.Background(), dto.ExecuteInput{
		PlanID: "does-not-exist", Technique: "six_hats", Problem: "p", CurrentStep: 1, TotalSteps: 1,
	})
	if engerrors.GetCode(err) != engerrors.CodeWorkflowPlanNotFound {
		t.Fatalf("expected plan-not-found error, got %v", err)
	}
}

func TestExecuteTechniqueMismatchFails(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	plan, err := e.PlanThinkingSession(ctx, dto.PlanInput{Problem: "p", Techniques: []string{"six_hats"}})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	_, err = e.ExecuteThinkingStep(ctx, dto.ExecuteInput{
		PlanID: plan.PlanID, Technique: "scamper", Problem: "p", CurrentStep: 1, TotalSteps: 1,
	})
	if engerrors.GetCode(err) != engerrors.CodeTechniqueMismatch {
		t.Fatalf("expected technique-mismatch error, got %v", err)
	}
}

func TestExecuteSharesContextAcrossParallelGroupMembers(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	plan, err := e.PlanThinkingSession(ctx, dto.PlanInput{
		Problem:       "p",
		Techniques:    []string{"six_hats", "scamper"},
		ExecutionMode: "parallel",
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	respA, err := e.ExecuteThinkingStep(ctx, dto.ExecuteInput{
		PlanID: plan.PlanID, Technique: "six_hats", Problem: "p",
		CurrentStep: 1, TotalSteps: 6, Output: "hats step 1",
		Insights: []string{"shared-insight"}, NextStepNeeded: true,
	})
	if err != nil {
		t.Fatalf("execute six_hats: %v", err)
	}

	respB, err := e.ExecuteThinkingStep(ctx, dto.ExecuteInput{
		PlanID: plan.PlanID, Technique: "scamper", Problem: "p",
		CurrentStep: 7, TotalSteps: 13, Output: "scamper step 1",
		NextStepNeeded: true,
	})
	if err != nil {
		t.Fatalf("execute scamper: %v", err)
	}

	if respA.SharedContext == nil || respB.SharedContext == nil {
		t.Fatal("expected both parallel members to receive a shared context snapshot")
	}
}

func TestSessionOperationListAndDelete(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	plan, err := e.PlanThinkingSession(ctx, dto.PlanInput{Problem: "p", Techniques: []string{"six_hats"}})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	resp, err := e.ExecuteThinkingStep(ctx, dto.ExecuteInput{
		PlanID: plan.PlanID, Technique: "six_hats", Problem: "p", CurrentStep: 1, TotalSteps: 6, NextStepNeeded: true,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	listOut, err := e.SessionOperation(ctx, dto.SessionOpInput{Operation: "list"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listOut.Sessions) != 1 {
		t.Fatalf("expected 1 tracked session, got %d", len(listOut.Sessions))
	}

	delOut, err := e.SessionOperation(ctx, dto.SessionOpInput{Operation: "delete", SessionID: resp.SessionID})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !delOut.Deleted {
		t.Fatal("expected deleted=true")
	}
}
