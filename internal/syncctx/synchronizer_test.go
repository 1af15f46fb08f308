package syncctx

import (
	"testing"

	"lateral/engine/internal/domain"
)

func TestImmediateModePublishesEachUpdate(t *testing.T) {
	s := New()
	s.InitGroup("g1", domain.SyncImmediate, []string{"a", "b"})
	s.Update("g1", "a", 1, []string{"insight1"}, nil, nil)
	ctx, ok := s.GetSharedContext("g1")
	if !ok || len(ctx.SharedInsights) != 1 {
		t.Fatalf("expected immediate publish, got %+v", ctx)
	}
}

func TestStepAlignedModeWaitsForSlowestMember(t *testing.T) {
	s := New()
	s.InitGroup("g1", domain.SyncStepAligned, []string{"a", "b"})
	s.Update("g1", "a", 2, []string{"from-a"}, nil, nil)
	ctx, _ := s.GetSharedContext("g1")
	if len(ctx.SharedInsights) != 0 {
		t.Fatalf("expected no publish until slowest member catches up, got %+v", ctx)
	}
	s.Update("g1", "b", 2, []string{"from-b"}, nil, nil)
	ctx, _ = s.GetSharedContext("g1")
	if len(ctx.SharedInsights) != 2 {
		t.Fatalf("expected both updates published once all members reach step 2, got %+v", ctx)
	}
}

func TestOnCompletionModePublishesOnlyAfterComplete(t *testing.T) {
	s := New()
	s.InitGroup("g1", domain.SyncOnCompletion, []string{"a"})
	s.Update("g1", "a", 1, []string{"insight1"}, nil, nil)
	ctx, _ := s.GetSharedContext("g1")
	if len(ctx.SharedInsights) != 0 {
		t.Fatalf("expected no publish before Complete, got %+v", ctx)
	}
	s.Complete("g1")
	ctx, _ = s.GetSharedContext("g1")
	if len(ctx.SharedInsights) != 1 {
		t.Fatalf("expected publish after Complete, got %+v", ctx)
	}
}

func TestGetSharedContextReturnsIndependentSnapshot(t *testing.T) {
	s := New()
	s.InitGroup("g1", domain.SyncImmediate, []string{"a"})
	s.Update("g1", "a", 1, []string{"x"}, nil, nil)
	ctx, _ := s.GetSharedContext("g1")
	ctx.SharedInsights[0] = "mutated"
	ctx2, _ := s.GetSharedContext("g1")
	if ctx2.SharedInsights[0] == "mutated" {
		t.Fatal("expected GetSharedContext to return an independent copy")
	}
}
