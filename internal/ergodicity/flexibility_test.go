package ergodicity

import (
	"testing"
	"time"

	"lateral/engine/internal/domain"
)

func TestFlexibilityEmptyLogIsMaximallyFlexible(t *testing.T) {
	c := NewFlexibilityCalculator()
	snap := c.Compute(nil)
	if snap.FlexibilityScore != 1 {
		t.Fatalf("expected flexibility 1.0 for empty log, got %v", snap.FlexibilityScore)
	}
}

func TestFlexibilityMonotonicOnClosureOnlyEvent(t *testing.T) {
	c := NewFlexibilityCalculator()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []domain.PathEvent{
		{Technique: "six_hats", Step: 1, Timestamp: base, OptionsOpened: []string{"a", "b", "c"}, ReversibilityCost: 0.2, CommitmentLevel: 0.3},
	}
	before := c.Compute(events)

	events = append(events, domain.PathEvent{
		Technique: "six_hats", Step: 2, Timestamp: base.Add(time.Minute),
		OptionsOpened: nil, OptionsClosed: []string{"a"}, ReversibilityCost: 0.4, CommitmentLevel: 0.5,
	})
	after := c.Compute(events)

	if after.FlexibilityScore > before.FlexibilityScore {
		t.Fatalf("flexibility increased after closure-only event: before=%v after=%v", before.FlexibilityScore, after.FlexibilityScore)
	}
}

func TestFlexibilityScoreBounded(t *testing.T) {
	c := NewFlexibilityCalculator()
	base := time.Now()
	events := []domain.PathEvent{
		{Technique: "t", Step: 1, Timestamp: base, OptionsOpened: []string{"a"}, ReversibilityCost: 1.5, CommitmentLevel: 2},
	}
	snap := c.Compute(events)
	if snap.FlexibilityScore < 0 || snap.FlexibilityScore > 1 {
		t.Fatalf("flexibility score out of range: %v", snap.FlexibilityScore)
	}
	if snap.ReversibilityIndex < 0 || snap.ReversibilityIndex > 1 {
		t.Fatalf("reversibility index out of range: %v", snap.ReversibilityIndex)
	}
}
