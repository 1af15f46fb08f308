// Package completion implements the CompletionTracker and
// CompletionGatekeeper (component 9): it tracks per-technique step
// completion against a plan and decides, per configured enforcement
// level, whether an early termination or synthesis request may proceed.
//
// The decision function is memoized the way the teacher's policy gate
// memoizes OrgPolicy decisions: identical (completion, level) inputs are
// common across a long-running session (the client often resends the same
// nextStepNeeded:false probe after being blocked) and the decision is a
// pure function of its inputs.
package completion

import (
	"strconv"
	"strings"
	"sync"

	"lateral/engine/internal/domain"
)

// Level is the configured enforcement strictness (spec §4.9).
type Level string

const (
	LevelNone     Level = "none"
	LevelLenient  Level = "lenient"
	LevelStandard Level = "standard"
	LevelStrict   Level = "strict"
)

// Thresholds parameterizes gatekeeper decisions (config.GatekeeperConfig).
type Thresholds struct {
	MinimumCompletionThreshold   float64
	RequireConfirmationThreshold float64
	CriticalTechniques          []string
}

// Decision is the gatekeeper's verdict on a termination or synthesis
// request.
type Decision struct {
	Blocked              bool
	RequiresConfirmation bool
	Title                string
	Reason               string
	RequiredActions      []string
	Suggestions          []string
}

// decisionKey identifies an Evaluate call's effective inputs for caching.
type decisionKey struct {
	level                Level
	minThreshold         float64
	confirmThreshold     float64
	overallProgress      float64
	criticalGaps         string
	totalPlannedSteps    int
	completedSteps       int
}

// Gatekeeper evaluates completion metadata against an enforcement level.
// Safe for concurrent use; decisions are cached per distinct input.
type Gatekeeper struct {
	mu    sync.RWMutex
	cache map[decisionKey]Decision
}

// NewGatekeeper constructs an empty gatekeeper.
func NewGatekeeper() *Gatekeeper {
	return &Gatekeeper{cache: make(map[decisionKey]Decision)}
}

// ClearCache drops all cached decisions; callers should invoke this when
// thresholds or the enforcement level change dynamically.
func (g *Gatekeeper) ClearCache() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache = make(map[decisionKey]Decision)
}

// CanProceedToNextStep decides whether a nextStepNeeded:false request may
// terminate the workflow (spec §4.9). meta must already reflect the state
// as of the step being evaluated.
func (g *Gatekeeper) CanProceedToNextStep(level Level, th Thresholds, meta domain.CompletionMetadata) Decision {
	key := decisionKey{
		level:             level,
		minThreshold:      th.MinimumCompletionThreshold,
		confirmThreshold:  th.RequireConfirmationThreshold,
		overallProgress:   meta.OverallProgress,
		criticalGaps:      strings.Join(meta.CriticalGapsIdentified, "\x00"),
		totalPlannedSteps: meta.TotalPlannedSteps,
		completedSteps:    meta.CompletedSteps,
	}

	g.mu.RLock()
	if cached, ok := g.cache[key]; ok {
		g.mu.RUnlock()
		return cached
	}
	g.mu.RUnlock()

	decision := evaluate(level, th, meta)

	g.mu.Lock()
	g.cache[key] = decision
	g.mu.Unlock()
	return decision
}

func evaluate(level Level, th Thresholds, meta domain.CompletionMetadata) Decision {
	switch level {
	case LevelNone:
		return Decision{Blocked: false}

	case LevelLenient:
		if meta.OverallProgress < th.MinimumCompletionThreshold {
			return Decision{
				Blocked: false,
				Title:   "Workflow incomplete",
				Reason:  "overallProgress is below minimumCompletionThreshold",
				Suggestions: []string{
					"Consider completing the remaining steps: " + remainingStepsNote(meta),
				},
			}
		}
		return Decision{Blocked: false}

	case LevelStandard:
		if meta.OverallProgress < 0.30 || len(meta.CriticalGapsIdentified) > 0 {
			return Decision{
				Blocked:         true,
				Title:           "Completion below minimum threshold",
				Reason:          standardBlockReason(meta),
				RequiredActions: requiredActions(meta),
				Suggestions:     []string{"Resume the session with nextStepNeeded:true"},
			}
		}
		if meta.OverallProgress < th.RequireConfirmationThreshold {
			return Decision{
				Blocked:              false,
				RequiresConfirmation: true,
				Title:                "Confirm early completion",
				Reason:               "overallProgress is below requireConfirmationThreshold",
				Suggestions:          []string{"Pass forceComplete:true to proceed anyway"},
			}
		}
		return Decision{Blocked: false}

	case LevelStrict:
		if meta.OverallProgress < th.MinimumCompletionThreshold {
			return Decision{
				Blocked:         true,
				Title:           "Early termination block",
				Reason:          standardBlockReason(meta),
				RequiredActions: requiredActions(meta),
				Suggestions:     []string{"Complete remaining planned steps before terminating"},
			}
		}
		return Decision{Blocked: false}

	default:
		return Decision{Blocked: false}
	}
}

// CanProceedToSynthesis gates a convergence step: every technique in the
// plan must have at least one executed step unless it is explicitly in
// skippedTechniques (spec §4.9).
func CanProceedToSynthesis(planTechniques []string, meta domain.CompletionMetadata) Decision {
	skipped := make(map[string]bool, len(meta.SkippedTechniques))
	for _, t := range meta.SkippedTechniques {
		skipped[t] = true
	}
	var missing []string
	for _, t := range planTechniques {
		if skipped[t] {
			continue
		}
		if !executedAtLeastOnce(t, meta) {
			missing = append(missing, t)
		}
	}
	if len(missing) == 0 {
		return Decision{Blocked: false}
	}
	return Decision{
		Blocked:         true,
		Title:           "Synthesis blocked: techniques missing executed steps",
		Reason:          "techniques " + strings.Join(missing, ", ") + " have no executed step and are not marked skipped",
		RequiredActions: []string{"Execute at least one step for: " + strings.Join(missing, ", ")},
		Suggestions:     []string{"Mark any intentionally-omitted technique as skipped instead"},
	}
}

// executedAtLeastOnce treats any technique not present in
// MissedPerspectives (which Tracker.Snapshot populates for plan
// techniques with zero executed steps) as executed.
func executedAtLeastOnce(technique string, meta domain.CompletionMetadata) bool {
	for _, m := range meta.MissedPerspectives {
		if m == technique {
			return false
		}
	}
	return true
}

func standardBlockReason(meta domain.CompletionMetadata) string {
	pct := int(meta.OverallProgress * 100)
	return "overallProgress " + strconv.Itoa(pct) + "% is below the required threshold"
}

func requiredActions(meta domain.CompletionMetadata) []string {
	remaining := meta.TotalPlannedSteps - meta.CompletedSteps
	if remaining < 0 {
		remaining = 0
	}
	actions := []string{"Complete " + strconv.Itoa(remaining) + " more steps"}
	for _, gap := range meta.CriticalGapsIdentified {
		actions = append(actions, "Address critical gap: "+gap)
	}
	return actions
}

func remainingStepsNote(meta domain.CompletionMetadata) string {
	remaining := meta.TotalPlannedSteps - meta.CompletedSteps
	if remaining < 0 {
		remaining = 0
	}
	return strconv.Itoa(remaining) + " step(s)"
}

// IsCriticalTechnique reports whether technique always requires explicit
// confirmation before being skipped or terminated early, regardless of
// enforcement level (spec §6 config: criticalTechniques[]).
func IsCriticalTechnique(th Thresholds, technique string) bool {
	for _, t := range th.CriticalTechniques {
		if t == technique {
			return true
		}
	}
	return false
}
