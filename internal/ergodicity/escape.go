package ergodicity

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"

	engerrors "lateral/engine/internal/errors"
	"lateral/engine/internal/pathmemory"
)

// Protocol is one of the five ordered escape-velocity interventions.
type Protocol string

const (
	ProtocolPatternInterruption  Protocol = "PATTERN_INTERRUPTION"
	ProtocolResourceReallocation Protocol = "RESOURCE_REALLOCATION"
	ProtocolStakeholderReset     Protocol = "STAKEHOLDER_RESET"
	ProtocolTechnicalRefactoring Protocol = "TECHNICAL_REFACTORING"
	ProtocolStrategicPivot       Protocol = "STRATEGIC_PIVOT"
)

// protocolLevel orders the protocols; levels >= 3 require user approval.
var protocolLevel = map[Protocol]int{
	ProtocolPatternInterruption:  1,
	ProtocolResourceReallocation: 2,
	ProtocolStakeholderReset:     3,
	ProtocolTechnicalRefactoring: 4,
	ProtocolStrategicPivot:       5,
}

// requiredFlexibilityFloor is the minimum currentFlexibility each protocol
// requires, spec §4.6.
var requiredFlexibilityFloor = map[Protocol]float64{
	ProtocolPatternInterruption:  0.00,
	ProtocolResourceReallocation: 0.20,
	ProtocolStakeholderReset:     0.30,
	ProtocolTechnicalRefactoring: 0.35,
	ProtocolStrategicPivot:       0.50,
}

// orderedProtocols lists the five protocols from least to most drastic.
var orderedProtocols = []Protocol{
	ProtocolPatternInterruption,
	ProtocolResourceReallocation,
	ProtocolStakeholderReset,
	ProtocolTechnicalRefactoring,
	ProtocolStrategicPivot,
}

// EscapeContext is the input to EscapeVelocitySystem.Execute.
type EscapeContext struct {
	SessionID        string
	CurrentFlexibility float64
	TriggerReason    string
	UserApproval     bool
	AutomaticMode    bool
	// RequestedProtocol is used when AutomaticMode is false: the caller
	// names which protocol to attempt.
	RequestedProtocol Protocol
}

// EscapeResult is the outcome of attempting an escape protocol.
type EscapeResult struct {
	Success            bool     `json:"success"`
	Protocol           Protocol `json:"protocol"`
	FlexibilityGained  float64  `json:"flexibilityGained"`
	ConstraintsRemoved []string `json:"constraintsRemoved"`
	NewOptionsCreated  []string `json:"newOptionsCreated"`
	ExecutionNotes     []string `json:"executionNotes"`
}

// EscapeVelocitySystem selects and simulates execution of escape protocols,
// recording their effect back into a session's PathMemory.
type EscapeVelocitySystem struct{}

// NewEscapeVelocitySystem returns a stateless escape-velocity system.
func NewEscapeVelocitySystem() *EscapeVelocitySystem {
	return &EscapeVelocitySystem{}
}

// recommendProtocol picks the minimum (least drastic) protocol whose floor
// the given flexibility score clears, for EarlyWarningSystem's suggestion.
func recommendProtocol(flexibility float64) string {
	for _, p := range orderedProtocols {
		if flexibility >= requiredFlexibilityFloor[p] {
			return string(p)
		}
	}
	return string(ProtocolPatternInterruption)
}

// selectAutomatic picks the minimum protocol meeting the computed
// escape-force requirement: the more severe the gap below 0.5 flexibility,
// the more drastic a protocol automatic mode is willing to reach for.
func selectAutomatic(currentFlexibility float64) Protocol {
	escapeForceNeeded := clampFloat(1-currentFlexibility, 0, 1)
	for _, p := range orderedProtocols {
		if currentFlexibility < requiredFlexibilityFloor[p] {
			continue
		}
		// A protocol "meets" the force needed once its own level's
		// fraction of the ordered set covers the force required.
		if float64(protocolLevel[p])/float64(len(orderedProtocols)) >= escapeForceNeeded {
			return p
		}
	}
	return ProtocolStrategicPivot
}

// Execute attempts the chosen (or automatically selected) escape protocol.
func (s *EscapeVelocitySystem) Execute(ctx context.Context, pm *pathmemory.PathMemory, ec EscapeContext) (EscapeResult, error) {
	protocol := ec.RequestedProtocol
	if ec.AutomaticMode || protocol == "" {
		protocol = selectAutomatic(ec.CurrentFlexibility)
	}
	level, ok := protocolLevel[protocol]
	if !ok {
		return EscapeResult{}, engerrors.Newf(engerrors.CodeEscapeProtocolFailed, "unknown escape protocol %q", protocol)
	}

	floor := requiredFlexibilityFloor[protocol]
	if ec.CurrentFlexibility < floor {
		return EscapeResult{}, engerrors.Newf(engerrors.CodeFlexibilityExhausted,
			"flexibility %.2f is below the %.2f floor required for %s", ec.CurrentFlexibility, floor, protocol).
			WithSuggestion(fmt.Sprintf("try %s instead", minimumProtocolFor(ec.CurrentFlexibility))).
			WithContext("protocol", string(protocol))
	}
	if level >= 3 && !ec.UserApproval {
		return EscapeResult{}, engerrors.Newf(engerrors.CodeEscapeProtocolFailed,
			"%s requires explicit user approval", protocol).
			WithSuggestion("resubmit with userApproval=true").
			WithContext("protocol", string(protocol))
	}

	gain, notes := simulateExecution(protocol, ec.SessionID, ec.TriggerReason)
	constraintsRemoved := []string{fmt.Sprintf("constraint-pressure-from-%s", ec.TriggerReason)}
	newOptions := []string{fmt.Sprintf("%s-reopened-option", protocol)}

	if pm != nil {
		if _, err := pm.Record(ctx, pathmemory.RecordInput{
			Technique:          "escape_velocity",
			Step:               0,
			Decision:           fmt.Sprintf("executed %s escape protocol (%s)", protocol, ec.TriggerReason),
			OptionsOpened:      newOptions,
			OptionsClosed:      nil,
			ReversibilityCost:  clampFloat(1-gain, 0, 1),
			CommitmentLevel:    0,
			ConstraintsCreated: nil,
		}); err != nil {
			return EscapeResult{}, err
		}
	}

	return EscapeResult{
		Success:            true,
		Protocol:           protocol,
		FlexibilityGained:  gain,
		ConstraintsRemoved: constraintsRemoved,
		NewOptionsCreated:  newOptions,
		ExecutionNotes:     notes,
	}, nil
}

func minimumProtocolFor(flexibility float64) Protocol {
	best := ProtocolPatternInterruption
	for _, p := range orderedProtocols {
		if flexibility >= requiredFlexibilityFloor[p] {
			best = p
		}
	}
	return best
}

// simulateExecution estimates flexibilityGained deterministically from
// (protocol, sessionID, triggerReason) rather than real stochastic I/O, so
// repeated runs over the same input reproduce the same gain.
func simulateExecution(protocol Protocol, sessionID, triggerReason string) (float64, []string) {
	h := fnv.New64a()
	h.Write([]byte(protocol))
	h.Write([]byte(sessionID))
	h.Write([]byte(triggerReason))
	r := rand.New(rand.NewSource(int64(h.Sum64())))

	base := 0.10 + 0.05*float64(protocolLevel[protocol])
	variance := (r.Float64() - 0.5) * 0.1
	gain := clampFloat(base+variance, 0, 1)

	notes := []string{
		fmt.Sprintf("simulated %s against trigger %q", protocol, triggerReason),
		fmt.Sprintf("estimated flexibility gain %.2f", gain),
	}
	return gain, notes
}
