// Package syncctx implements the SessionSynchronizer (component 11): a
// shared-context store for one parallel group, with three publish modes
// and per-group serialized writes (spec §5 Shared resource policy).
package syncctx

import (
	"sync"
	"time"

	"lateral/engine/internal/domain"
)

// groupState holds one group's shared context plus whatever staged
// updates have not yet been published under step-aligned or
// on-completion mode.
type groupState struct {
	mu      sync.Mutex
	mode    domain.SyncMode
	context domain.SharedContext
	staged  []update
	members map[string]int // sessionID -> last reported step, for step-aligned publish
}

type update struct {
	insights []string
	themes   map[string]float64
	metrics  map[string]any
}

// Synchronizer owns one SharedContext per parallel group.
type Synchronizer struct {
	mu     sync.RWMutex
	groups map[string]*groupState
	clock  func() time.Time
}

// New constructs an empty Synchronizer.
func New() *Synchronizer {
	return &Synchronizer{
		groups: make(map[string]*groupState),
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, for deterministic tests.
func (s *Synchronizer) WithClock(clock func() time.Time) *Synchronizer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
	return s
}

// InitGroup registers a group's synchronization mode and membership. Safe
// to call again to reset membership; it leaves any already-published
// context untouched.
func (s *Synchronizer) InitGroup(groupID string, mode domain.SyncMode, memberSessionIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		g = &groupState{mode: mode, members: make(map[string]int)}
		s.groups[groupID] = g
	}
	g.mu.Lock()
	g.mode = mode
	for _, id := range memberSessionIDs {
		if _, exists := g.members[id]; !exists {
			g.members[id] = 0
		}
	}
	if g.context.SharedThemes == nil {
		g.context.SharedThemes = make(map[string]float64)
	}
	if g.context.MetricsRollup == nil {
		g.context.MetricsRollup = make(map[string]any)
	}
	g.context.SyncMode = mode
	g.mu.Unlock()
}

// Update contributes one member's insights/themes/metrics. Depending on
// the group's sync mode, this either publishes immediately, stages the
// update until the slowest member crosses currentStep (step-aligned), or
// stages until Complete is called (on-completion).
func (s *Synchronizer) Update(groupID, sessionID string, currentStep int, insights []string, themes map[string]float64, metrics map[string]any) {
	s.mu.RLock()
	g, ok := s.groups[groupID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[sessionID] = currentStep
	u := update{insights: insights, themes: themes, metrics: metrics}

	switch g.mode {
	case domain.SyncImmediate:
		applyLocked(&g.context, u, s.now())
	case domain.SyncStepAligned:
		g.staged = append(g.staged, u)
		if slowestStepLocked(g.members) >= currentStep && allAtLeastLocked(g.members, currentStep) {
			for _, staged := range g.staged {
				applyLocked(&g.context, staged, s.now())
			}
			g.staged = nil
		}
	case domain.SyncOnCompletion:
		g.staged = append(g.staged, u)
	default:
		applyLocked(&g.context, u, s.now())
	}
}

// Complete publishes any staged on-completion updates. Call this once the
// group has reached a terminal state (spec §5).
func (s *Synchronizer) Complete(groupID string) {
	s.mu.RLock()
	g, ok := s.groups[groupID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mode != domain.SyncOnCompletion {
		return
	}
	for _, staged := range g.staged {
		applyLocked(&g.context, staged, s.now())
	}
	g.staged = nil
}

// GetSharedContext returns a coherent snapshot of a group's currently
// published SharedContext.
func (s *Synchronizer) GetSharedContext(groupID string) (domain.SharedContext, bool) {
	s.mu.RLock()
	g, ok := s.groups[groupID]
	s.mu.RUnlock()
	if !ok {
		return domain.SharedContext{}, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return cloneContext(g.context), true
}

// DropGroup releases a group's shared-context state.
func (s *Synchronizer) DropGroup(groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, groupID)
}

func (s *Synchronizer) now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock()
}

func applyLocked(ctx *domain.SharedContext, u update, now time.Time) {
	for _, ins := range u.insights {
		if !containsString(ctx.SharedInsights, ins) {
			ctx.SharedInsights = append(ctx.SharedInsights, ins)
		}
	}
	for theme, weight := range u.themes {
		ctx.SharedThemes[theme] += weight
	}
	for k, v := range u.metrics {
		ctx.MetricsRollup[k] = v
	}
	ctx.LastUpdate = now
}

func slowestStepLocked(members map[string]int) int {
	min := -1
	for _, step := range members {
		if min == -1 || step < min {
			min = step
		}
	}
	if min == -1 {
		return 0
	}
	return min
}

func allAtLeastLocked(members map[string]int, step int) bool {
	for _, s := range members {
		if s < step {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func cloneContext(c domain.SharedContext) domain.SharedContext {
	out := domain.SharedContext{
		SharedInsights: append([]string(nil), c.SharedInsights...),
		SharedThemes:   make(map[string]float64, len(c.SharedThemes)),
		MetricsRollup:  make(map[string]any, len(c.MetricsRollup)),
		LastUpdate:     c.LastUpdate,
		SyncMode:       c.SyncMode,
	}
	for k, v := range c.SharedThemes {
		out.SharedThemes[k] = v
	}
	for k, v := range c.MetricsRollup {
		out.MetricsRollup[k] = v
	}
	return out
}
