// Package registry implements the SessionRegistry (component 6): it owns
// sessions, plans, and parallel groups, enforces the session id format,
// capacity-driven eviction, idle expiry, and activity touches.
package registry

import (
	"context"
	"regexp"
	"sort"
	"sync"
	"time"

	"lateral/engine/internal/backpressure"
	"lateral/engine/internal/domain"
	engerrors "lateral/engine/internal/errors"
)

// sessionIDPattern is spec §3.1's session id grammar.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]{1,64}$`)

// ValidSessionID reports whether id matches the session id grammar.
func ValidSessionID(id string) bool {
	return id != "" && sessionIDPattern.MatchString(id)
}

// Store is the persistence port the registry writes through to. A nil
// Store is valid: the registry then holds state only in memory, useful
// for tests and ephemeral engines.
type Store interface {
	SaveSession(ctx context.Context, s *domain.Session) error
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	ListSessions(ctx context.Context, planID string) ([]*domain.Session, error)
	DeleteSession(ctx context.Context, id string) error

	SavePlan(ctx context.Context, p *domain.Plan) error
	GetPlan(ctx context.Context, id string) (*domain.Plan, error)
	DeletePlan(ctx context.Context, id string) error

	SaveParallelGroup(ctx context.Context, g *domain.ParallelGroup) error
	GetParallelGroup(ctx context.Context, id string) (*domain.ParallelGroup, error)
	DeleteParallelGroup(ctx context.Context, id string) error
}

// Limits controls the registry's capacity and expiry policy.
type Limits struct {
	MaxTrackedSessions  int
	IdleExpiry          time.Duration
	MaxParallelSessions int
}

// Registry is the in-memory owner of sessions, plans, and parallel groups.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	limits Limits
	store  Store
	clock  func() time.Time

	sessions map[string]*domain.Session
	plans    map[string]*domain.Plan
	groups   map[string]*domain.ParallelGroup

	// groupSems caps each parallel group's membership at
	// limits.MaxParallelSessions (spec §5: a group that would exceed the
	// configured fan-out is rejected rather than silently admitted). One
	// permit is held per member for the group's lifetime and freed in bulk
	// when the group is deleted.
	groupSems map[string]*backpressure.Semaphore

	// storageCB trips once the store has failed repeatedly in a row, so a
	// degraded disk fails registry calls fast instead of retrying into a
	// dead store on every request (spec §7: system errors are retryable,
	// but retries must still back off).
	storageCB *backpressure.CircuitBreaker
}

// New constructs a registry. store may be nil for in-memory-only use.
func New(limits Limits, store Store) *Registry {
	if limits.MaxTrackedSessions <= 0 {
		limits.MaxTrackedSessions = 1000
	}
	if limits.IdleExpiry <= 0 {
		limits.IdleExpiry = 24 * time.Hour
	}
	if limits.MaxParallelSessions <= 0 {
		limits.MaxParallelSessions = 20
	}
	return &Registry{
		limits:    limits,
		store:     store,
		clock:     func() time.Time { return time.Now().UTC() },
		sessions:  make(map[string]*domain.Session),
		plans:     make(map[string]*domain.Plan),
		groups:    make(map[string]*domain.ParallelGroup),
		groupSems: make(map[string]*backpressure.Semaphore),
		storageCB: backpressure.NewCircuitBreaker(backpressure.DefaultCircuitBreakerOptions()),
	}
}

// callStore runs fn with retry and circuit-breaker protection, classifying
// any raw driver error as code before it is handed to the retry loop (so
// EngineError.Retryable, not the driver's own error type, decides whether
// a retry is attempted).
func (r *Registry) callStore(ctx context.Context, code engerrors.Code, fn func() error) error {
	return backpressure.RetryWithCircuitBreaker(ctx, r.storageCB, backpressure.DefaultRetryOptions(), func() error {
		if err := fn(); err != nil {
			return engerrors.ClassifyWithCode(err, code)
		}
		return nil
	})
}

// WithClock overrides the registry's time source, for deterministic tests.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
	return r
}

func (r *Registry) now() time.Time { return r.clock() }

// --- Plans ---------------------------------------------------------------

// CreatePlan stores a newly-compiled, immutable plan.
func (r *Registry) CreatePlan(ctx context.Context, p *domain.Plan) error {
	if p.PlanID == "" {
		return engerrors.New(engerrors.CodeValidationFailed, "planId must not be empty")
	}
	r.mu.Lock()
	r.plans[p.PlanID] = p
	r.mu.Unlock()

	if r.store != nil {
		return r.callStore(ctx, engerrors.CodeStorageWriteFailed, func() error {
			return r.store.SavePlan(ctx, p)
		})
	}
	return nil
}

// GetPlan looks up a plan by id, consulting the store if not held in
// memory. Unknown ids yield PLAN_NOT_FOUND with a recovery suggestion.
func (r *Registry) GetPlan(ctx context.Context, planID string) (*domain.Plan, error) {
	r.mu.RLock()
	p, ok := r.plans[planID]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}
	if r.store != nil {
		// A store miss here is a routine outcome (most plans never leave
		// memory), not a storage failure, so this bypasses callStore's
		// retry/circuit-breaker path entirely.
		p, err := r.store.GetPlan(ctx, planID)
		if err == nil {
			r.mu.Lock()
			r.plans[planID] = p
			r.mu.Unlock()
			return p, nil
		}
	}
	return nil, engerrors.Newf(engerrors.CodeWorkflowPlanNotFound, "no plan found for id %q", planID).
		WithSuggestion("call planThinkingSession before executeThinkingStep").
		WithContext("planId", planID)
}

// DeletePlan removes a plan. It does not cascade to sessions.
func (r *Registry) DeletePlan(ctx context.Context, planID string) error {
	r.mu.Lock()
	delete(r.plans, planID)
	r.mu.Unlock()
	if r.store != nil {
		return r.callStore(ctx, engerrors.CodeStorageWriteFailed, func() error {
			return r.store.DeletePlan(ctx, planID)
		})
	}
	return nil
}

// --- Sessions --------------------------------------------------------------

// CreateSession registers a new session, enforcing the id format and
// MAX_TRACKED_SESSIONS backpressure (spec §5): when at capacity, the
// oldest evictable (idle, non-group-member) session is evicted first; if
// none is evictable, creation fails with MAX_SESSIONS_EXCEEDED.
func (r *Registry) CreateSession(ctx context.Context, s *domain.Session) error {
	if !ValidSessionID(s.SessionID) {
		return engerrors.Newf(engerrors.CodeValidationFailed, "invalid session id %q", s.SessionID).
			WithSuggestion(`session ids must match [A-Za-z0-9_.\-]{1,64}`).
			WithContext("sessionId", s.SessionID)
	}

	r.mu.Lock()
	if _, exists := r.sessions[s.SessionID]; !exists && len(r.sessions) >= r.limits.MaxTrackedSessions {
		if !r.evictOneLocked() {
			r.mu.Unlock()
			return engerrors.Newf(engerrors.CodeMaxSessionsExceeded,
				"registry is at capacity (%d) and no session is evictable", r.limits.MaxTrackedSessions).
				WithSuggestion("delete an idle session or wait for one to expire")
		}
	}
	r.sessions[s.SessionID] = s
	r.mu.Unlock()

	if r.store != nil {
		return r.callStore(ctx, engerrors.CodeStorageWriteFailed, func() error {
			return r.store.SaveSession(ctx, s)
		})
	}
	return nil
}

// evictOneLocked evicts the oldest idle, non-group-member session. Caller
// must hold r.mu. Returns false if nothing was evictable.
func (r *Registry) evictOneLocked() bool {
	var target *domain.Session
	for _, s := range r.sessions {
		if s.ParallelGroupID != "" {
			continue
		}
		if target == nil || s.LastActivityTime.Before(target.LastActivityTime) {
			target = s
		}
	}
	if target == nil {
		return false
	}
	delete(r.sessions, target.SessionID)
	return true
}

// GetSession looks up a session by id.
func (r *Registry) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}
	if r.store != nil {
		s, err := r.store.GetSession(ctx, sessionID)
		if err == nil {
			r.mu.Lock()
			r.sessions[sessionID] = s
			r.mu.Unlock()
			return s, nil
		}
	}
	return nil, engerrors.Newf(engerrors.CodeSessionNotFound, "no session found for id %q", sessionID).
		WithContext("sessionId", sessionID)
}

// TouchSession bumps a session's lastActivityTime and persists the change.
func (r *Registry) TouchSession(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		s.Touch(r.now())
	}
	r.mu.Unlock()
	if !ok {
		return engerrors.Newf(engerrors.CodeSessionNotFound, "no session found for id %q", sessionID)
	}
	if r.store != nil {
		return r.callStore(ctx, engerrors.CodeStorageWriteFailed, func() error {
			return r.store.SaveSession(ctx, s)
		})
	}
	return nil
}

// SaveSession persists a session's full current state (used after
// appending history entries).
func (r *Registry) SaveSession(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	r.sessions[s.SessionID] = s
	r.mu.Unlock()
	if r.store != nil {
		return r.callStore(ctx, engerrors.CodeStorageWriteFailed, func() error {
			return r.store.SaveSession(ctx, s)
		})
	}
	return nil
}

// ListSessions returns all tracked sessions, optionally filtered by plan.
func (r *Registry) ListSessions(planID string) []*domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if planID != "" && s.PlanID != planID {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// DeleteSession explicitly removes a session. Unlike idle/LRU eviction,
// an explicit delete is allowed even for active parallel-group members —
// the caller is assumed to know what they're doing.
func (r *Registry) DeleteSession(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	if r.store != nil {
		return r.callStore(ctx, engerrors.CodeStorageWriteFailed, func() error {
			return r.store.DeleteSession(ctx, sessionID)
		})
	}
	return nil
}

// EvictExpired evicts sessions idle longer than the configured expiry,
// skipping active parallel-group members (spec §3.3: "Eviction refuses
// active parallel-group members"). Returns the evicted session ids.
func (r *Registry) EvictExpired(ctx context.Context) []string {
	now := r.now()
	r.mu.Lock()
	var evicted []string
	for id, s := range r.sessions {
		if s.ParallelGroupID != "" {
			continue
		}
		if now.Sub(s.LastActivityTime) > r.limits.IdleExpiry {
			delete(r.sessions, id)
			evicted = append(evicted, id)
		}
	}
	r.mu.Unlock()

	if r.store != nil {
		for _, id := range evicted {
			_ = r.callStore(ctx, engerrors.CodeStorageWriteFailed, func() error {
				return r.store.DeleteSession(ctx, id)
			})
		}
	}
	return evicted
}

// --- Parallel groups ---------------------------------------------------

// CreateParallelGroup registers a new parallel group and sizes its
// membership semaphore to MaxParallelSessions, reserving one permit per
// founding member.
func (r *Registry) CreateParallelGroup(ctx context.Context, g *domain.ParallelGroup) error {
	r.mu.Lock()
	sem := backpressure.NewSemaphore(r.limits.MaxParallelSessions)
	for range g.SessionIDs {
		if !sem.TryAcquire() {
			r.mu.Unlock()
			return engerrors.Newf(engerrors.CodeMaxSessionsExceeded,
				"parallel group %q exceeds the configured fan-out of %d", g.GroupID, r.limits.MaxParallelSessions).
				WithContext("groupId", g.GroupID)
		}
	}
	r.groupSems[g.GroupID] = sem
	r.groups[g.GroupID] = g
	for _, sid := range g.SessionIDs {
		if s, ok := r.sessions[sid]; ok {
			s.ParallelGroupID = g.GroupID
		}
	}
	r.mu.Unlock()
	if r.store != nil {
		return r.callStore(ctx, engerrors.CodeStorageWriteFailed, func() error {
			return r.store.SaveParallelGroup(ctx, g)
		})
	}
	return nil
}

// AddParallelGroupMember appends sessionID to an existing group, refusing
// the join once the group's membership semaphore is exhausted (spec §5:
// MAX_PARALLEL_SESSIONS bounds fan-out per group, not just globally).
func (r *Registry) AddParallelGroupMember(ctx context.Context, groupID, sessionID string) (*domain.ParallelGroup, error) {
	r.mu.Lock()
	g, ok := r.groups[groupID]
	if !ok {
		r.mu.Unlock()
		return nil, engerrors.Newf(engerrors.CodeWorkflowGroupNotFound, "no parallel group found for id %q", groupID).
			WithContext("groupId", groupID)
	}
	sem, ok := r.groupSems[groupID]
	if !ok {
		sem = backpressure.NewSemaphore(r.limits.MaxParallelSessions)
		r.groupSems[groupID] = sem
		for range g.SessionIDs {
			sem.TryAcquire()
		}
	}
	if !sem.TryAcquire() {
		r.mu.Unlock()
		return nil, engerrors.Newf(engerrors.CodeMaxSessionsExceeded,
			"parallel group %q is at its configured fan-out limit of %d", groupID, r.limits.MaxParallelSessions).
			WithSuggestion("start a new plan rather than joining this group").
			WithContext("groupId", groupID)
	}
	g.SessionIDs = append(g.SessionIDs, sessionID)
	g.UpdatedAt = r.now()
	if s, ok := r.sessions[sessionID]; ok {
		s.ParallelGroupID = groupID
	}
	r.mu.Unlock()

	if r.store != nil {
		if err := r.callStore(ctx, engerrors.CodeStorageWriteFailed, func() error {
			return r.store.SaveParallelGroup(ctx, g)
		}); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// GetParallelGroup looks up a parallel group by id.
func (r *Registry) GetParallelGroup(ctx context.Context, groupID string) (*domain.ParallelGroup, error) {
	r.mu.RLock()
	g, ok := r.groups[groupID]
	r.mu.RUnlock()
	if ok {
		return g, nil
	}
	if r.store != nil {
		g, err := r.store.GetParallelGroup(ctx, groupID)
		if err == nil {
			r.mu.Lock()
			r.groups[groupID] = g
			r.mu.Unlock()
			return g, nil
		}
	}
	return nil, engerrors.Newf(engerrors.CodeWorkflowGroupNotFound, "no parallel group found for id %q", groupID).
		WithContext("groupId", groupID)
}

// SaveParallelGroup persists an updated group (e.g. new SharedContext or status).
func (r *Registry) SaveParallelGroup(ctx context.Context, g *domain.ParallelGroup) error {
	r.mu.Lock()
	r.groups[g.GroupID] = g
	r.mu.Unlock()
	if r.store != nil {
		return r.callStore(ctx, engerrors.CodeStorageWriteFailed, func() error {
			return r.store.SaveParallelGroup(ctx, g)
		})
	}
	return nil
}

// DeleteParallelGroup removes a parallel group. Callers must ensure the
// group has reached a terminal state (spec §3.3) before calling this; the
// registry itself does not verify member status.
func (r *Registry) DeleteParallelGroup(ctx context.Context, groupID string) error {
	r.mu.Lock()
	for _, s := range r.sessions {
		if s.ParallelGroupID == groupID {
			s.ParallelGroupID = ""
		}
	}
	delete(r.groups, groupID)
	delete(r.groupSems, groupID)
	r.mu.Unlock()
	if r.store != nil {
		return r.callStore(ctx, engerrors.CodeStorageWriteFailed, func() error {
			return r.store.DeleteParallelGroup(ctx, groupID)
		})
	}
	return nil
}
