// Package mcpserver implements the request-router transport the engine is
// driven by (spec §1: "the MCP transport ... treated as a request
// router"). It holds no business logic: every RPC method maps directly
// onto one of the engine's four operations, and every error the engine
// returns is converted into the response envelope spec §7 requires
// (`{error:{code,message,details,layer,timestamp}, isError:true}`). No
// exception ever escapes an RPC boundary.
package mcpserver

import (
	"context"

	"lateral/engine/internal/domain"
	"lateral/engine/internal/dto"
	engerrors "lateral/engine/internal/errors"
	"lateral/engine/internal/telemetry"
)

// Engine is the subset of *engine.Engine the transport layer depends on.
// Declaring it here (rather than importing the concrete type) keeps this
// package import-cycle-free and lets tests substitute a fake.
type Engine interface {
	DiscoverTechniques(in dto.DiscoverInput) (dto.DiscoverOutput, error)
	PlanThinkingSession(ctx context.Context, in dto.PlanInput) (*domain.Plan, error)
	ExecuteThinkingStep(ctx context.Context, in dto.ExecuteInput) (dto.ExecutionResponse, error)
	SessionOperation(ctx context.Context, in dto.SessionOpInput) (dto.SessionOpOutput, error)
}

// Server adapts an Engine to the transport-agnostic RPC surface (spec §6).
type Server struct {
	engine  Engine
	export  *PersistenceAdapter
	log     *telemetry.Logger
	metrics *telemetry.Metrics
}

// New constructs a Server. export may be nil if the caller never wires a
// PersistenceAdapter; "export" operations then fail with a clear error
// instead of panicking.
func New(engine Engine, export *PersistenceAdapter) *Server {
	return &Server{
		engine:  engine,
		export:  export,
		log:     telemetry.Default().WithComponent("mcpserver"),
		metrics: telemetry.DefaultMetrics(),
	}
}

// envelope is the response body for every RPC method, success or failure.
type envelope struct {
	Result  any        `json:"result,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
	IsError bool       `json:"isError,omitempty"`
}

// errorBody is spec §7's error shape: {code, message, details, layer, timestamp}.
type errorBody struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	Layer     string            `json:"layer"`
	Timestamp string            `json:"timestamp"`
}

func errEnvelope(err error) envelope {
	ee := engerrors.Classify(err)
	return envelope{
		IsError: true,
		Error: &errorBody{
			Code:      string(ee.Code),
			Message:   ee.Message,
			Details:   ee.Context,
			Layer:     ee.Code.Category(),
			Timestamp: ee.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		},
	}
}

// Discover runs discoverTechniques (spec §4.1). It is a pure function of
// its input, so it takes no context.
func (s *Server) Discover(in dto.DiscoverInput) envelope {
	out, err := s.engine.DiscoverTechniques(in)
	if err != nil {
		s.metrics.Counter("rpc_discover_errors")
		return errEnvelope(err)
	}
	s.metrics.Counter("rpc_discover_ok")
	return envelope{Result: out}
}

// Plan runs planThinkingSession.
func (s *Server) Plan(ctx context.Context, in dto.PlanInput) envelope {
	plan, err := s.engine.PlanThinkingSession(ctx, in)
	if err != nil {
		s.metrics.Counter("rpc_plan_errors")
		s.log.WithError(err).Warn("planThinkingSession failed")
		return errEnvelope(err)
	}
	s.metrics.Counter("rpc_plan_ok")
	return envelope{Result: plan}
}

// Execute runs executeThinkingStep. A gatekeeper-blocked response is
// still a *success* envelope (spec §7: "blocked:true ... not an
// exception"); only actual errors produce IsError:true.
func (s *Server) Execute(ctx context.Context, in dto.ExecuteInput) envelope {
	resp, err := s.engine.ExecuteThinkingStep(ctx, in)
	if err != nil {
		s.metrics.Counter("rpc_execute_errors")
		s.log.WithError(err).Warn("executeThinkingStep failed")
		return errEnvelope(err)
	}
	s.metrics.Counter("rpc_execute_ok")
	if resp.Blocked {
		s.log.WithField("sessionId", resp.SessionID).Info("execute blocked by gatekeeper")
	}
	return envelope{Result: resp}
}

// SessionOp runs the multiplexed sessionOperation, routing "export"
// through the PersistenceAdapter since the engine itself only owns the
// registry-level save/load/list/delete operations.
func (s *Server) SessionOp(ctx context.Context, in dto.SessionOpInput) envelope {
	if in.Operation == "export" {
		if s.export == nil {
			return errEnvelope(engerrors.New(engerrors.CodeNotImplemented, "no PersistenceAdapter configured for export"))
		}
		exported, err := s.export.Export(ctx, in)
		if err != nil {
			s.metrics.Counter("rpc_session_op_errors")
			return errEnvelope(err)
		}
		s.metrics.Counter("rpc_session_op_ok")
		return envelope{Result: dto.SessionOpOutput{Exported: exported}}
	}
	out, err := s.engine.SessionOperation(ctx, in)
	if err != nil {
		s.metrics.Counter("rpc_session_op_errors")
		return errEnvelope(err)
	}
	s.metrics.Counter("rpc_session_op_ok")
	return envelope{Result: out}
}
