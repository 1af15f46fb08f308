// Package pathmemory implements the append-only ergodicity event log: the
// record of decisions a thinking session has made, the options each opened
// or closed, and the constraints those decisions created.
package pathmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"lateral/engine/internal/domain"
	engerrors "lateral/engine/internal/errors"
)

// Store is the persistence port PathMemory writes through to.
type Store interface {
	AppendPathEvent(ctx context.Context, sessionID string, seq int, e *domain.PathEvent) error
	ListPathEvents(ctx context.Context, sessionID string) ([]*domain.PathEvent, error)
	NextPathEventSeq(ctx context.Context, sessionID string) (int, error)
}

// Constraint is a restriction on future options created by a past decision.
type Constraint struct {
	ID          string
	Description string
	CreatedBy   string // path event id
	Step        int
}

// PathMemory is the append-only decision log for a single session. Events
// are held in an arena (a flat slice); cross-references (revisesStep,
// constraint provenance) are by id or index, never by direct pointer, so
// the log stays append-only and cheap to snapshot.
type PathMemory struct {
	mu          sync.Mutex
	sessionID   string
	store       Store
	events      []domain.PathEvent
	constraints []Constraint
	options     map[string]bool // currently open options
}

// New creates an empty PathMemory for a session.
func New(sessionID string, store Store) *PathMemory {
	return &PathMemory{
		sessionID: sessionID,
		store:     store,
		options:   make(map[string]bool),
	}
}

// Load reconstructs a PathMemory from persisted events. A nil store (the
// "memory" storage driver, spec §10.3) yields a fresh, empty PathMemory
// with no persisted history to replay.
func Load(ctx context.Context, sessionID string, store Store) (*PathMemory, error) {
	if store == nil {
		return New(sessionID, nil), nil
	}
	events, err := store.ListPathEvents(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("pathmemory: loading events: %w", err)
	}
	pm := New(sessionID, store)
	for _, e := range events {
		pm.applyLocked(*e)
	}
	return pm, nil
}

// RecordInput is the caller-supplied shape of a new decision; Record fills
// in id and timestamp.
type RecordInput struct {
	Technique          string
	Step               int
	Decision           string
	OptionsOpened      []string
	OptionsClosed      []string
	ReversibilityCost  float64
	CommitmentLevel    float64
	ConstraintsCreated []string
	RevisesStep        int
}

// Record appends a new PathEvent. It is the only way PathMemory grows;
// existing events are never mutated.
func (pm *PathMemory) Record(ctx context.Context, in RecordInput) (domain.PathEvent, error) {
	if in.ReversibilityCost < 0 || in.ReversibilityCost > 1 {
		return domain.PathEvent{}, engerrors.New(engerrors.CodeValidationFailed, "reversibilityCost must be in [0,1]")
	}
	if in.CommitmentLevel < 0 || in.CommitmentLevel > 1 {
		return domain.PathEvent{}, engerrors.New(engerrors.CodeValidationFailed, "commitmentLevel must be in [0,1]")
	}

	pm.mu.Lock()
	currentStep := pm.lastStepLocked()
	if in.RevisesStep > currentStep {
		pm.mu.Unlock()
		return domain.PathEvent{}, engerrors.New(engerrors.CodeValidationFailed, "revisesStep must not exceed currentStep").
			WithContext("revisesStep", fmt.Sprintf("%d", in.RevisesStep)).
			WithContext("currentStep", fmt.Sprintf("%d", currentStep))
	}
	pm.mu.Unlock()

	event := domain.PathEvent{
		ID:                 uuid.NewString(),
		SessionID:          pm.sessionID,
		Timestamp:          time.Now().UTC(),
		Technique:          in.Technique,
		Step:               in.Step,
		Decision:           in.Decision,
		OptionsOpened:      append([]string(nil), in.OptionsOpened...),
		OptionsClosed:      append([]string(nil), in.OptionsClosed...),
		ReversibilityCost:  in.ReversibilityCost,
		CommitmentLevel:    in.CommitmentLevel,
		ConstraintsCreated: append([]string(nil), in.ConstraintsCreated...),
		RevisesStep:        in.RevisesStep,
	}

	if pm.store != nil {
		seq, err := pm.store.NextPathEventSeq(ctx, pm.sessionID)
		if err != nil {
			return domain.PathEvent{}, fmt.Errorf("pathmemory: allocating seq: %w", err)
		}
		event.Seq = seq
		if err := pm.store.AppendPathEvent(ctx, pm.sessionID, seq, &event); err != nil {
			return domain.PathEvent{}, fmt.Errorf("pathmemory: appending event: %w", err)
		}
	} else {
		event.Seq = currentStep + 1
	}

	pm.mu.Lock()
	pm.applyLocked(event)
	pm.mu.Unlock()

	return event, nil
}

// applyLocked folds an event into the in-memory arena. Must hold pm.mu.
func (pm *PathMemory) applyLocked(e domain.PathEvent) {
	pm.events = append(pm.events, e)
	for _, opt := range e.OptionsOpened {
		pm.options[opt] = true
	}
	for _, opt := range e.OptionsClosed {
		delete(pm.options, opt)
	}
	for _, desc := range e.ConstraintsCreated {
		pm.constraints = append(pm.constraints, Constraint{
			ID:          uuid.NewString(),
			Description: desc,
			CreatedBy:   e.ID,
			Step:        e.Step,
		})
	}
}

func (pm *PathMemory) lastStepLocked() int {
	if len(pm.events) == 0 {
		return 0
	}
	return pm.events[len(pm.events)-1].Step
}

// Events returns a snapshot copy of the full path history.
func (pm *PathMemory) Events() []domain.PathEvent {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make([]domain.PathEvent, len(pm.events))
	copy(out, pm.events)
	return out
}

// Constraints returns a snapshot copy of derived constraints.
func (pm *PathMemory) Constraints() []Constraint {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make([]Constraint, len(pm.constraints))
	copy(out, pm.constraints)
	return out
}

// AvailableOptions returns the set of options currently open (opened but
// not yet closed).
func (pm *PathMemory) AvailableOptions() []string {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make([]string, 0, len(pm.options))
	for opt := range pm.options {
		out = append(out, opt)
	}
	return out
}

// Len returns the number of recorded events.
func (pm *PathMemory) Len() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.events)
}
