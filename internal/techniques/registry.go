// Package techniques is the TechniqueRegistry port (component 1): lookup of
// a lateral-thinking technique handler by id, step counting, step
// validation, and step guidance. Handlers are stateless and deterministic
// given their inputs; the registry itself owns no session state.
//
// The individual technique handlers (six_hats, scamper, ...) are, per the
// system's scope, small static tables of step names and guidance strings —
// the interesting behavior lives in the engine components that call this
// port, not in the tables themselves.
package techniques

import (
	"fmt"
	"sync"

	"lateral/engine/internal/domain"
	engerrors "lateral/engine/internal/errors"
)

// StepInfo describes one technique-local step.
type StepInfo struct {
	Name        string `json:"name"`
	Focus       string `json:"focus"`
	Emoji       string `json:"emoji"`
	Description string `json:"description"`
}

// Handler is the capability a technique must implement. Handlers are
// stateless: all state lives in the session history passed to them.
type Handler interface {
	// ID is the technique's identifier, e.g. "six_hats".
	ID() string
	// Name is the human-readable technique name.
	Name() string
	// Emoji is a short visual tag used by formatters (out of scope here;
	// carried through so a formatter port can use it).
	Emoji() string
	// TotalSteps is the number of local steps this technique defines.
	TotalSteps() int
	// Description is a one-line summary of the technique.
	Description() string
	// GetStepInfo returns the static description of localStep.
	GetStepInfo(localStep int) (StepInfo, error)
	// GetStepGuidance returns step-specific guidance text for a problem.
	GetStepGuidance(localStep int, problem string) (string, error)
	// ValidateStep performs technique-specific structural validation of the
	// step data. ok=false with err=nil is a soft failure (the step is still
	// recorded, with a warning); a non-nil err is a hard failure that
	// aborts the step.
	ValidateStep(localStep int, data map[string]any) (ok bool, err error)
	// ExtractInsights derives insight strings from a session's history.
	ExtractInsights(history []domain.HistoryEntry) []string
	// GetPromptContext returns auxiliary context for a prompt-template
	// handler (out of scope here; passed through opaquely).
	GetPromptContext(localStep int) map[string]any
}

// Registry looks up handlers by technique id.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty registry. Use Register to populate it, or
// NewDefaultRegistry for the built-in technique set.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds or replaces a handler under its own ID.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.ID()] = h
}

// Get looks up a handler by technique id. Unknown ids yield a structured
// VALIDATION_UNKNOWN_TECHNIQUE error.
func (r *Registry) Get(technique string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[technique]
	if !ok {
		return nil, engerrors.New(engerrors.CodeUnknownTechnique, fmt.Sprintf("unknown technique %q", technique)).
			WithSuggestion("call discoverTechniques or list registered techniques").
			WithContext("technique", technique)
	}
	return h, nil
}

// Has reports whether technique is registered, without allocating an error.
func (r *Registry) Has(technique string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[technique]
	return ok
}

// StepCount returns the handler's total step count.
func (r *Registry) StepCount(technique string) (int, error) {
	h, err := r.Get(technique)
	if err != nil {
		return 0, err
	}
	return h.TotalSteps(), nil
}

// Techniques returns all registered technique ids, unordered.
func (r *Registry) Techniques() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		out = append(out, id)
	}
	return out
}
