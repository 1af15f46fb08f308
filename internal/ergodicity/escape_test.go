package ergodicity

import (
	"context"
	"testing"

	engerrors "lateral/engine/internal/errors"
)

func TestEscapeVelocityInsufficientFlexibility(t *testing.T) {
	sys := NewEscapeVelocitySystem()
	_, err := sys.Execute(context.Background(), nil, EscapeContext{
		SessionID:          "s1",
		CurrentFlexibility: 0.05,
		TriggerReason:      "resource",
		RequestedProtocol:  ProtocolStrategicPivot,
	})
	if err == nil {
		t.Fatal("expected error for insufficient flexibility")
	}
	if engerrors.GetCode(err) != engerrors.CodeFlexibilityExhausted {
		t.Fatalf("expected CodeFlexibilityExhausted, got %v", engerrors.GetCode(err))
	}
}

func TestEscapeVelocityPatternInterruptionSucceedsAtFloor(t *testing.T) {
	sys := NewEscapeVelocitySystem()
	result, err := sys.Execute(context.Background(), nil, EscapeContext{
		SessionID:          "s1",
		CurrentFlexibility: 0.05,
		TriggerReason:      "resource",
		RequestedProtocol:  ProtocolPatternInterruption,
	})
	if err != nil {
		t.Fatalf("expected pattern interruption to succeed: %v", err)
	}
	if !result.Success || result.FlexibilityGained <= 0 {
		t.Fatalf("expected a nonzero flexibility gain, got %+v", result)
	}
}

func TestEscapeVelocityHighLevelRequiresApproval(t *testing.T) {
	sys := NewEscapeVelocitySystem()
	_, err := sys.Execute(context.Background(), nil, EscapeContext{
		SessionID:          "s1",
		CurrentFlexibility: 0.9,
		TriggerReason:      "strategy",
		RequestedProtocol:  ProtocolStrategicPivot,
		UserApproval:       false,
	})
	if err == nil {
		t.Fatal("expected error requiring approval")
	}
}
