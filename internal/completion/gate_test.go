package completion

import (
	"testing"

	"lateral/engine/internal/domain"
)

func TestGatekeeperNoneNeverBlocks(t *testing.T) {
	g := NewGatekeeper()
	d := g.CanProceedToNextStep(LevelNone, Thresholds{}, domain.CompletionMetadata{OverallProgress: 0})
	if d.Blocked {
		t.Fatal("NONE must never block")
	}
}

func TestGatekeeperStandardBlocksBelow30Percent(t *testing.T) {
	g := NewGatekeeper()
	meta := domain.CompletionMetadata{OverallProgress: 1.0 / 6, CompletedSteps: 1, TotalPlannedSteps: 6}
	d := g.CanProceedToNextStep(LevelStandard, Thresholds{MinimumCompletionThreshold: 0.6, RequireConfirmationThreshold: 0.8}, meta)
	if !d.Blocked {
		t.Fatal("expected standard enforcement to block at 16%")
	}
}

func TestGatekeeperStandardBlocksOnCriticalGap(t *testing.T) {
	g := NewGatekeeper()
	meta := domain.CompletionMetadata{OverallProgress: 0.9, CriticalGapsIdentified: []string{"missing risk review"}}
	d := g.CanProceedToNextStep(LevelStandard, Thresholds{MinimumCompletionThreshold: 0.6, RequireConfirmationThreshold: 0.8}, meta)
	if !d.Blocked {
		t.Fatal("expected standard enforcement to block on a critical gap regardless of progress")
	}
}

func TestGatekeeperStandardRequiresConfirmationBetweenThresholds(t *testing.T) {
	g := NewGatekeeper()
	meta := domain.CompletionMetadata{OverallProgress: 0.7}
	d := g.CanProceedToNextStep(LevelStandard, Thresholds{MinimumCompletionThreshold: 0.6, RequireConfirmationThreshold: 0.8}, meta)
	if d.Blocked || !d.RequiresConfirmation {
		t.Fatalf("expected confirmation-required, not blocked: %+v", d)
	}
}

func TestGatekeeperStrictBlocksBelowMinimum(t *testing.T) {
	g := NewGatekeeper()
	meta := domain.CompletionMetadata{OverallProgress: 0.33, CompletedSteps: 2, TotalPlannedSteps: 6}
	d := g.CanProceedToNextStep(LevelStrict, Thresholds{MinimumCompletionThreshold: 0.6}, meta)
	if !d.Blocked {
		t.Fatal("expected strict enforcement to block below minimumCompletionThreshold")
	}
	if len(d.RequiredActions) == 0 {
		t.Fatal("expected requiredActions to be populated")
	}
}

func TestCanProceedToSynthesisBlocksMissingTechnique(t *testing.T) {
	meta := domain.CompletionMetadata{MissedPerspectives: []string{"scamper"}}
	d := CanProceedToSynthesis([]string{"six_hats", "scamper"}, meta)
	if !d.Blocked {
		t.Fatal("expected synthesis block when a plan technique has no executed step")
	}
}

func TestCanProceedToSynthesisAllowsSkippedTechnique(t *testing.T) {
	meta := domain.CompletionMetadata{SkippedTechniques: []string{"scamper"}}
	d := CanProceedToSynthesis([]string{"six_hats", "scamper"}, meta)
	if d.Blocked {
		t.Fatal("expected synthesis allowed when missing technique is explicitly skipped")
	}
}

func TestTrackerSnapshotComputesProgress(t *testing.T) {
	tr := NewTracker([]string{"six_hats", "scamper"}, 13)
	for i := 1; i <= 6; i++ {
		tr.RecordStep("six_hats", i)
	}
	snap := tr.Snapshot("s1")
	if snap.CompletedSteps != 6 {
		t.Fatalf("expected 6 completed steps, got %d", snap.CompletedSteps)
	}
	if len(snap.MissedPerspectives) != 1 || snap.MissedPerspectives[0] != "scamper" {
		t.Fatalf("expected scamper to be missed, got %v", snap.MissedPerspectives)
	}
	wantProgress := 6.0 / 13.0
	if snap.OverallProgress != wantProgress {
		t.Fatalf("expected overallProgress %v, got %v", wantProgress, snap.OverallProgress)
	}
}
