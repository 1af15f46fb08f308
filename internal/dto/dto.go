// Package dto holds the request/response shapes for the three RPC-style
// operations (spec §6): discoverTechniques, planThinkingSession,
// executeThinkingStep, and the multiplexed sessionOperation. These are
// plain records shared between the transport layer, ValidationStrategies,
// and the WorkflowEngine, so none of those packages needs to import the
// others' internal types.
package dto

import (
	"encoding/json"

	"lateral/engine/internal/domain"
)

// DiscoverInput is the input to discoverTechniques.
type DiscoverInput struct {
	Problem           string   `json:"problem"`
	Context           string   `json:"context,omitempty"`
	PreferredOutcome  string   `json:"preferredOutcome,omitempty"`
	Constraints       []string `json:"constraints,omitempty"`
	CurrentFlexibility *float64 `json:"currentFlexibility,omitempty"`
}

// Recommendation is one scored technique suggestion.
type Recommendation struct {
	Technique string  `json:"technique"`
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// DiscoverOutput is the response to discoverTechniques.
type DiscoverOutput struct {
	Recommendations      []Recommendation `json:"recommendations"`
	Reasoning             string           `json:"reasoning"`
	SuggestedWorkflow     []string         `json:"suggestedWorkflow,omitempty"`
	FlexibilityWarning    string           `json:"flexibilityWarning,omitempty"`
	GeneratedOptions      []string         `json:"generatedOptions,omitempty"`
	EscapeVelocityAnalysis string          `json:"escapeVelocityAnalysis,omitempty"`
}

// PlanInput is the input to planThinkingSession.
type PlanInput struct {
	Problem        string   `json:"problem"`
	Techniques     []string `json:"techniques"`
	Objectives     []string `json:"objectives,omitempty"`
	Constraints    []string `json:"constraints,omitempty"`
	Timeframe      string   `json:"timeframe,omitempty"` // quick | thorough | comprehensive
	IncludeOptions bool     `json:"includeOptions,omitempty"`
	ExecutionMode  string   `json:"executionMode,omitempty"` // sequential | parallel
}

// ParallelResultInput is one member's contribution to a convergence step.
// Insights is left as raw JSON rather than []string: spec §4.8 requires a
// member whose insights arrived as a stringified JSON blob (a recurring
// client error, same family as pathImpact's) to be excluded individually
// rather than failing strict decode for the whole convergence request — a
// typed []string field would reject the entire request at the transport
// boundary before convergence.Execute ever saw which member was malformed.
type ParallelResultInput struct {
	PlanID    string          `json:"planId"`
	Technique string          `json:"technique"`
	Insights  json.RawMessage `json:"insights"`
	Results   map[string]any  `json:"results"`
}

// ExecuteInput is the input to executeThinkingStep. Extra carries
// technique-specific fields (hatColor, scamperAction, pathImpact, ...)
// that ValidationStrategies checks structurally per technique.
type ExecuteInput struct {
	PlanID          string                 `json:"planId"`
	Technique       string                 `json:"technique"`
	Problem         string                 `json:"problem"`
	SessionID       string                 `json:"sessionId,omitempty"`
	CurrentStep     int                    `json:"currentStep"`
	TotalSteps      int                    `json:"totalSteps"`
	Output          string                 `json:"output"`
	NextStepNeeded  bool                   `json:"nextStepNeeded"`
	IsRevision      bool                   `json:"isRevision,omitempty"`
	RevisesStep     int                    `json:"revisesStep,omitempty"`
	Insights        []string               `json:"insights,omitempty"`
	ParallelResults []ParallelResultInput  `json:"parallelResults,omitempty"`
	Extra           map[string]any         `json:"extra,omitempty"`
}

// ExecutionResponse is the response to executeThinkingStep.
type ExecutionResponse struct {
	SessionID         string                    `json:"sessionId"`
	CurrentStep       int                       `json:"currentStep"`
	NextStepNeeded     bool                      `json:"nextStepNeeded"`
	NextStepGuidance  string                    `json:"nextStepGuidance,omitempty"`
	Insights          []string                  `json:"insights,omitempty"`
	Metrics           map[string]any            `json:"metrics,omitempty"`
	EarlyWarningState any                       `json:"earlyWarningState,omitempty"`
	PathImpact        *domain.PathEvent         `json:"pathImpact,omitempty"`
	Blocked           bool                      `json:"blocked,omitempty"`
	BlockReason        string                    `json:"blockReason,omitempty"`
	RequiredActions   []string                  `json:"requiredActions,omitempty"`
	Suggestions       []string                  `json:"suggestions,omitempty"`
	CompletionStatus  *domain.CompletionMetadata `json:"completionStatus,omitempty"`
	SharedContext     *domain.SharedContext      `json:"sharedContext,omitempty"`
}

// SessionOpInput is the input to the multiplexed sessionOperation.
type SessionOpInput struct {
	Operation string `json:"sessionOperation"` // save | load | list | delete | export
	SessionID string `json:"sessionId,omitempty"`
	Format    string `json:"format,omitempty"` // json | markdown | csv
}

// SessionOpOutput is the adapter-defined result of a sessionOperation.
type SessionOpOutput struct {
	Sessions []*domain.Session `json:"sessions,omitempty"`
	Session  *domain.Session   `json:"session,omitempty"`
	Exported string            `json:"exported,omitempty"`
	Deleted  bool              `json:"deleted,omitempty"`
}
