// Package domain holds the core entity types shared across the workflow
// engine: plans, sessions, path memory, parallel groups, progress, and
// completion metadata. Components depend on these types rather than on
// each other's internal representations.
package domain

import "time"

// ExecutionMode selects how a plan's techniques are run.
type ExecutionMode string

const (
	ModeSequential ExecutionMode = "sequential"
	ModeParallel   ExecutionMode = "parallel"
)

// WorkflowStep is one entry in a compiled plan's ordered workflow.
type WorkflowStep struct {
	Technique          string   `json:"technique"`
	LocalStep          int      `json:"localStep"`
	CumulativeStep     int      `json:"cumulativeStep"`
	Description        string   `json:"description"`
	ExpectedDuration    string   `json:"expectedDuration"`
	RiskConsiderations  []string `json:"riskConsiderations,omitempty"`
}

// ParallelPlan is one independently-executable branch of a parallel-mode plan.
type ParallelPlan struct {
	PlanID                  string         `json:"planId"`
	Techniques              []string       `json:"techniques"`
	Workflow                []WorkflowStep `json:"workflow"`
	CanExecuteIndependently bool           `json:"canExecuteIndependently"`
	Dependencies            []string       `json:"dependencies,omitempty"`
}

// Plan is the immutable output of plan compilation.
type Plan struct {
	PlanID        string         `json:"planId"`
	Problem       string         `json:"problem"`
	Techniques    []string       `json:"techniques"`
	Mode          ExecutionMode  `json:"mode"`
	Workflow      []WorkflowStep `json:"workflow"`
	ParallelPlans []ParallelPlan `json:"parallelPlans,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// TotalSteps returns the number of entries in the plan's workflow.
func (p *Plan) TotalSteps() int {
	return len(p.Workflow)
}

// HistoryEntry is one recorded execution step within a session.
type HistoryEntry struct {
	Step        int             `json:"step"`
	Timestamp   time.Time       `json:"timestamp"`
	Input       map[string]any  `json:"input"`
	Output      string          `json:"output"`
	Insights    []string        `json:"insights,omitempty"`
	IsRevision  bool            `json:"isRevision,omitempty"`
	RevisesStep int             `json:"revisesStep,omitempty"`
}

// Session is a single technique's execution state, optionally attached to
// a plan and a parallel group.
type Session struct {
	SessionID        string          `json:"sessionId"`
	PlanID           string          `json:"planId,omitempty"`
	Technique        string          `json:"technique"`
	Problem          string          `json:"problem"`
	StartTime        time.Time       `json:"startTime"`
	LastActivityTime time.Time       `json:"lastActivityTime"`
	EndTime          *time.Time      `json:"endTime,omitempty"`
	History          []HistoryEntry  `json:"history"`
	Branches         map[string][]HistoryEntry `json:"branches"`
	Insights         []string        `json:"insights"`
	ParallelGroupID  string          `json:"parallelGroupId,omitempty"`
}

// Touch bumps lastActivityTime to now.
func (s *Session) Touch(now time.Time) {
	s.LastActivityTime = now
}

// SyncStrategy selects how a parallel group reconciles member results.
type SyncStrategy string

const (
	SyncMerge  SyncStrategy = "merge"
	SyncVote   SyncStrategy = "vote"
	SyncFilter SyncStrategy = "filter"
)

// SyncMode selects when SharedContext updates become visible.
type SyncMode string

const (
	SyncImmediate    SyncMode = "immediate"
	SyncStepAligned  SyncMode = "step_aligned"
	SyncOnCompletion SyncMode = "on_completion"
)

// SharedContext is the data a parallel group's members exchange.
type SharedContext struct {
	SharedInsights []string           `json:"sharedInsights"`
	SharedThemes   map[string]float64 `json:"sharedThemes"`
	MetricsRollup  map[string]any     `json:"metricsRollup"`
	LastUpdate     time.Time          `json:"lastUpdate"`
	SyncMode       SyncMode           `json:"syncMode"`
}

// GroupStatus is the lifecycle state of a ParallelGroup.
type GroupStatus string

const (
	GroupActive   GroupStatus = "active"
	GroupComplete GroupStatus = "complete"
)

// ParallelGroup is a set of sessions executing concurrently on one problem.
type ParallelGroup struct {
	GroupID       string        `json:"groupId"`
	SessionIDs    []string      `json:"sessionIds"`
	PlanIDs       []string      `json:"planIds"`
	SyncStrategy  SyncStrategy  `json:"syncStrategy"`
	SharedContext SharedContext `json:"sharedContext"`
	Status        GroupStatus   `json:"status"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// PathEvent is one append-only record in a session's PathMemory.
type PathEvent struct {
	ID                 string    `json:"id"`
	SessionID          string    `json:"-"`
	Seq                int       `json:"-"`
	Timestamp          time.Time `json:"timestamp"`
	Technique          string    `json:"technique"`
	Step               int       `json:"step"`
	Decision           string    `json:"decision"`
	OptionsOpened      []string  `json:"optionsOpened"`
	OptionsClosed      []string  `json:"optionsClosed"`
	ReversibilityCost  float64   `json:"reversibilityCost"`
	CommitmentLevel    float64   `json:"commitmentLevel"`
	ConstraintsCreated []string  `json:"constraintsCreated"`
	RevisesStep        int       `json:"revisesStep,omitempty"`
}

// FlexibilitySnapshot is a derived, point-in-time summary of a session's
// PathMemory.
type FlexibilitySnapshot struct {
	FlexibilityScore  float64 `json:"flexibilityScore"`
	ReversibilityIndex float64 `json:"reversibilityIndex"`
	OptionVelocity    float64 `json:"optionVelocity"`
	CommitmentDepth   float64 `json:"commitmentDepth"`
}

// ProgressStatus is a session's position in the ProgressCoordinator state
// machine.
type ProgressStatus string

const (
	StatusPending     ProgressStatus = "pending"
	StatusInProgress  ProgressStatus = "in_progress"
	StatusWaiting     ProgressStatus = "waiting"
	StatusCompleted   ProgressStatus = "completed"
	StatusFailed      ProgressStatus = "failed"
)

// ProgressRecord is a session's current execution progress.
type ProgressRecord struct {
	SessionID    string         `json:"sessionId"`
	CurrentStep  int            `json:"currentStep"`
	TotalSteps   int            `json:"totalSteps"`
	Status       ProgressStatus `json:"status"`
	Timestamp    time.Time      `json:"timestamp"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// CompletionMetadata summarizes how much of a plan's intended coverage has
// actually executed.
type CompletionMetadata struct {
	SessionID               string   `json:"sessionId"`
	CompletedSteps          int      `json:"completedSteps"`
	TotalPlannedSteps        int      `json:"totalPlannedSteps"`
	OverallProgress          float64  `json:"overallProgress"`
	SkippedTechniques        []string `json:"skippedTechniques"`
	MissedPerspectives       []string `json:"missedPerspectives"`
	CriticalGapsIdentified   []string `json:"criticalGapsIdentified"`
}
