// Package ergodicity implements the FlexibilityCalculator, EarlyWarningSystem,
// and EscapeVelocitySystem components (3, 4, 5): pure derivations over a
// session's PathMemory event log, absorbing-barrier sensors built on top of
// those derivations, and the five-level escape protocol engine.
package ergodicity

import (
	"math"
	"time"

	"lateral/engine/internal/domain"
)

// commitmentWindow is N in spec §4.4's commitmentDepth definition.
const commitmentWindow = 10

// velocityWindow bounds how many recent events contribute to optionVelocity.
const velocityWindow = 10

// FlexibilityCalculator derives a FlexibilitySnapshot from a PathMemory
// event log. It holds no state: every call is a pure function of its input.
type FlexibilityCalculator struct{}

// NewFlexibilityCalculator returns a stateless calculator.
func NewFlexibilityCalculator() *FlexibilityCalculator {
	return &FlexibilityCalculator{}
}

// Compute derives the flexibility snapshot for the given event log, in
// append order. An empty log is maximally flexible (score 1.0), matching
// the tie-break rule for openOptions=0 ∧ closedOptions=0.
func (c *FlexibilityCalculator) Compute(events []domain.PathEvent) domain.FlexibilitySnapshot {
	if len(events) == 0 {
		return domain.FlexibilitySnapshot{FlexibilityScore: 1, ReversibilityIndex: 1, OptionVelocity: 0, CommitmentDepth: 0}
	}

	open := make(map[string]bool)
	var closedWeight, reversibilitySum float64
	openCounts := make([]int, len(events))
	timestamps := make([]time.Time, len(events))

	for i, e := range events {
		for _, o := range e.OptionsOpened {
			open[o] = true
		}
		for _, o := range e.OptionsClosed {
			if open[o] {
				delete(open, o)
				closedWeight += clamp01(e.ReversibilityCost)
			}
		}
		reversibilitySum += clamp01(e.ReversibilityCost)
		openCounts[i] = len(open)
		timestamps[i] = e.Timestamp
	}

	openOptions := float64(len(open))
	var flexibility float64
	if openOptions == 0 && closedWeight == 0 {
		flexibility = 1.0
	} else {
		flexibility = clampFloat(openOptions/(openOptions+closedWeight), 0, 1)
	}

	return domain.FlexibilitySnapshot{
		FlexibilityScore:   flexibility,
		ReversibilityIndex: clampFloat(1-reversibilitySum/float64(len(events)), 0, 1),
		OptionVelocity:     optionVelocity(openCounts, timestamps),
		CommitmentDepth:    meanCommitment(events, commitmentWindow),
	}
}

// meanCommitment averages commitmentLevel over the last n events (or the
// whole log if shorter).
func meanCommitment(events []domain.PathEvent, n int) float64 {
	start := len(events) - n
	if start < 0 {
		start = 0
	}
	window := events[start:]
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, e := range window {
		sum += clamp01(e.CommitmentLevel)
	}
	return sum / float64(len(window))
}

// optionVelocity computes the windowed, normalized rate of change of the
// open-option count. The raw rate (Δopen/Δt, options per second) is
// squashed through tanh so the result is always in [-1,1] without a hard
// cutoff: large bursts of option creation/closure saturate toward ±1
// rather than clipping discontinuously.
func optionVelocity(openCounts []int, timestamps []time.Time) float64 {
	n := len(openCounts)
	if n < 2 {
		return 0
	}
	start := n - velocityWindow
	if start < 0 {
		start = 0
	}
	deltaOpen := openCounts[n-1] - openCounts[start]
	deltaT := timestamps[n-1].Sub(timestamps[start]).Seconds()
	if deltaT <= 0 {
		if deltaOpen == 0 {
			return 0
		}
		if deltaOpen > 0 {
			return 1
		}
		return -1
	}
	rate := float64(deltaOpen) / deltaT
	return math.Tanh(rate)
}

func clamp01(v float64) float64 {
	return clampFloat(v, 0, 1)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
