package completion

import (
	"sort"
	"sync"

	"lateral/engine/internal/domain"
)

// Tracker accumulates per-technique step completion for one plan and
// derives CompletionMetadata from it. One Tracker exists per session; the
// engine persists its snapshot as part of session state.
type Tracker struct {
	mu sync.Mutex

	planTechniques []string
	totalPlanned   int

	executedSteps map[string]map[int]bool // technique -> set of localStep
	skipped       map[string]bool
	missed        map[string]bool
	criticalGaps  []string
}

// NewTracker seeds a tracker from a compiled plan's technique list and its
// total workflow length.
func NewTracker(planTechniques []string, totalPlannedSteps int) *Tracker {
	return &Tracker{
		planTechniques: append([]string(nil), planTechniques...),
		totalPlanned:   totalPlannedSteps,
		executedSteps:  make(map[string]map[int]bool),
		skipped:        make(map[string]bool),
		missed:         make(map[string]bool),
	}
}

// RecordStep marks one (technique, localStep) pair as executed.
func (t *Tracker) RecordStep(technique string, localStep int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	steps, ok := t.executedSteps[technique]
	if !ok {
		steps = make(map[int]bool)
		t.executedSteps[technique] = steps
	}
	steps[localStep] = true
}

// MarkSkipped records that technique was intentionally omitted.
func (t *Tracker) MarkSkipped(technique string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.skipped[technique] = true
}

// AddCriticalGap records an identified gap that should block STANDARD and
// STRICT enforcement until addressed.
func (t *Tracker) AddCriticalGap(gap string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, g := range t.criticalGaps {
		if g == gap {
			return
		}
	}
	t.criticalGaps = append(t.criticalGaps, gap)
}

// Snapshot derives CompletionMetadata for sessionID from the tracker's
// current state.
func (t *Tracker) Snapshot(sessionID string) domain.CompletionMetadata {
	t.mu.Lock()
	defer t.mu.Unlock()

	completed := 0
	for _, steps := range t.executedSteps {
		completed += len(steps)
	}

	var skippedList, missedList []string
	for _, technique := range t.planTechniques {
		if t.skipped[technique] {
			skippedList = append(skippedList, technique)
			continue
		}
		if len(t.executedSteps[technique]) == 0 {
			missedList = append(missedList, technique)
		}
	}
	sort.Strings(skippedList)
	sort.Strings(missedList)

	overall := 1.0
	if t.totalPlanned > 0 {
		overall = float64(completed) / float64(t.totalPlanned)
		if overall > 1 {
			overall = 1
		}
	}

	return domain.CompletionMetadata{
		SessionID:              sessionID,
		CompletedSteps:         completed,
		TotalPlannedSteps:      t.totalPlanned,
		OverallProgress:        overall,
		SkippedTechniques:      skippedList,
		MissedPerspectives:     missedList,
		CriticalGapsIdentified: append([]string(nil), t.criticalGaps...),
	}
}
