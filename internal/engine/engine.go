// Package engine implements the WorkflowEngine (spec §4.1): the top-level
// orchestrator for the three-phase discover/plan/execute workflow. It
// wires every other component — TechniqueRegistry, SessionRegistry,
// PlanCompiler, PathMemory, the ergodicity subsystem, the completion
// gatekeeper, ProgressCoordinator, SessionSynchronizer, SessionTimeoutMonitor,
// and ConvergenceExecutor — behind the four RPC-style operations the
// transport layer calls.
//
// The engine itself holds no business logic beyond sequencing: every rule
// it enforces is delegated to the component that owns it, mirroring the
// teacher's workspace.Runner dispatch style (switch on operation type,
// delegate to owned collaborators).
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"lateral/engine/internal/completion"
	"lateral/engine/internal/config"
	"lateral/engine/internal/convergence"
	"lateral/engine/internal/domain"
	"lateral/engine/internal/dto"
	engerrors "lateral/engine/internal/errors"
	"lateral/engine/internal/ergodicity"
	"lateral/engine/internal/pathmemory"
	"lateral/engine/internal/planner"
	"lateral/engine/internal/progress"
	"lateral/engine/internal/registry"
	"lateral/engine/internal/syncctx"
	"lateral/engine/internal/techniques"
	"lateral/engine/internal/telemetry"
	"lateral/engine/internal/timeoutmon"
	"lateral/engine/internal/validation"
)

// Engine is the WorkflowEngine. One Engine is long-lived for the process;
// all mutable state lives in its owned collaborators, each already safe
// for concurrent use.
type Engine struct {
	cfg        *config.Config
	registry   *registry.Registry
	techniques *techniques.Registry
	pmStore    pathmemory.Store
	planner    *planner.Compiler
	gate       *completion.Gatekeeper
	progress   *progress.Coordinator
	sync       *syncctx.Synchronizer
	timeouts   *timeoutmon.Monitor
	flex       *ergodicity.FlexibilityCalculator
	warning    *ergodicity.EarlyWarningSystem
	escape     *ergodicity.EscapeVelocitySystem
	log        *telemetry.Logger
	metrics    *telemetry.Metrics
	clock      func() time.Time

	mu           sync.Mutex
	pathMemories map[string]*pathmemory.PathMemory
	trackers     map[string]*completion.Tracker
}

// New wires an Engine from its configuration and ports. reg must be
// non-nil; pmStore may be nil, in which case path events are kept in
// memory only. sink, if non-nil, receives every SessionTimeoutMonitor event
// after the engine has applied its own timeout handling.
func New(cfg *config.Config, reg *registry.Registry, techReg *techniques.Registry, pmStore pathmemory.Store, sink timeoutmon.Sink) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	flex := ergodicity.NewFlexibilityCalculator()
	e := &Engine{
		cfg:        cfg,
		registry:   reg,
		techniques: techReg,
		pmStore:    pmStore,
		planner:    planner.New(techReg),
		gate:       completion.NewGatekeeper(),
		progress:   progress.New(),
		sync:       syncctx.New(),
		flex:       flex,
		warning:    ergodicity.NewEarlyWarningSystem(flex),
		escape:     ergodicity.NewEscapeVelocitySystem(),
		log:        telemetry.Default().WithComponent("engine"),
		metrics:    telemetry.DefaultMetrics(),
		clock:      func() time.Time { return time.Now().UTC() },

		pathMemories: make(map[string]*pathmemory.PathMemory),
		trackers:     make(map[string]*completion.Tracker),
	}
	e.timeouts = timeoutmon.New(timeoutmon.Options{
		WarnFraction:   0.8,
		StaleInterval:  cfg.Timeouts.StaleThreshold,
		DependencyWait: cfg.Timeouts.DependencyWait,
	}, e.wrapSink(sink))
	return e
}

// wrapSink folds SessionTimeoutMonitor events into the ProgressCoordinator
// before forwarding to the caller's sink (spec §4.10: "timeout ... transitions
// session to failed via ProgressCoordinator").
func (e *Engine) wrapSink(sink timeoutmon.Sink) timeoutmon.Sink {
	return func(ev timeoutmon.Event) {
		if ev.Kind == timeoutmon.EventTimeout {
			if rec, ok := e.progress.Get(ev.SessionID); ok {
				e.progress.Transition(ev.SessionID, domain.StatusFailed, rec.CurrentStep, nil)
			}
		}
		if sink != nil {
			sink(ev)
		}
	}
}

// gatekeeperThresholds projects the engine's configured GatekeeperConfig
// into completion.Thresholds.
func (e *Engine) gatekeeperThresholds() (completion.Level, completion.Thresholds) {
	return completion.Level(e.cfg.Gatekeeper.Level), completion.Thresholds{
		MinimumCompletionThreshold:   e.cfg.Gatekeeper.MinimumCompletionThreshold,
		RequireConfirmationThreshold: e.cfg.Gatekeeper.RequireConfirmationThreshold,
		CriticalTechniques:           e.cfg.Gatekeeper.CriticalTechniques,
	}
}

// pathMemoryFor returns (creating and loading from the store if needed)
// the PathMemory for sessionID.
func (e *Engine) pathMemoryFor(ctx context.Context, sessionID string) (*pathmemory.PathMemory, error) {
	e.mu.Lock()
	pm, ok := e.pathMemories[sessionID]
	e.mu.Unlock()
	if ok {
		return pm, nil
	}
	pm, err := pathmemory.Load(ctx, sessionID, e.pmStore)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.pathMemories[sessionID] = pm
	e.mu.Unlock()
	return pm, nil
}

// trackerFor returns the CompletionTracker for sessionID, seeding one from
// plan if this is the first time the session is seen.
func (e *Engine) trackerFor(sessionID string, plan *domain.Plan) *completion.Tracker {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.trackers[sessionID]
	if !ok {
		t = completion.NewTracker(plan.Techniques, plan.TotalSteps())
		e.trackers[sessionID] = t
	}
	return t
}

// PlanThinkingSession compiles a Plan from a validated planning request
// and registers it with the SessionRegistry (spec §4.1).
func (e *Engine) PlanThinkingSession(ctx context.Context, in dto.PlanInput) (*domain.Plan, error) {
	if err := validation.Plan(in, e.techniques.Has); err != nil {
		return nil, err
	}
	depsByTechnique := make(map[string][]string)
	plan, err := e.planner.Compile(planner.Input{
		Problem:       in.Problem,
		Techniques:    in.Techniques,
		Timeframe:     in.Timeframe,
		ExecutionMode: in.ExecutionMode,
		Dependencies:  depsByTechnique,
	})
	if err != nil {
		return nil, err
	}
	if err := e.registry.CreatePlan(ctx, plan); err != nil {
		return nil, err
	}
	e.log.WithField("planId", plan.PlanID).Info("plan compiled")
	e.metrics.Counter("plans_compiled")
	return plan, nil
}

// resolveSession implements spec §4.2 step 3: resolve an existing session
// by user-supplied id, or create a new one (auto-generating an id if the
// caller didn't supply a format-valid one).
func (e *Engine) resolveSession(ctx context.Context, in dto.ExecuteInput, plan *domain.Plan) (*domain.Session, error) {
	now := e.clock()

	if in.SessionID != "" {
		if s, err := e.registry.GetSession(ctx, in.SessionID); err == nil {
			s.Touch(now)
			return s, nil
		}
		if !registry.ValidSessionID(in.SessionID) {
			return nil, engerrors.Newf(engerrors.CodeValidationFailed, "invalid session id %q", in.SessionID).
				WithSuggestion(`session ids must match [A-Za-z0-9_.\-]{1,64}`)
		}
	}

	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	groupID := groupIDForPlan(plan)
	s := &domain.Session{
		SessionID:        sessionID,
		PlanID:           plan.PlanID,
		Technique:        in.Technique,
		Problem:          in.Problem,
		StartTime:        now,
		LastActivityTime: now,
		Branches:         make(map[string][]domain.HistoryEntry),
		ParallelGroupID:  groupID,
	}
	if err := e.registry.CreateSession(ctx, s); err != nil {
		return nil, err
	}
	e.progress.Track(sessionID, in.TotalSteps, groupID)
	e.timeouts.StartExecution(sessionID, e.executionLimitFor(in.Technique))
	if groupID != "" {
		if err := e.joinParallelGroup(ctx, groupID, plan, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// groupIDForPlan derives the deterministic parallel-group id for a
// parallel-mode plan, so every member session executed against the same
// plan joins the same group without the transport layer having to track
// one separately (spec §3.2: "ParallelGroup: created by a parallel-mode
// plan execution").
func groupIDForPlan(plan *domain.Plan) string {
	if plan.Mode != domain.ModeParallel {
		return ""
	}
	return "group:" + plan.PlanID
}

// joinParallelGroup registers s as a member of groupID, creating the
// group on first use and wiring it into the SessionSynchronizer under
// step-aligned sync — members only see each other's contributions once
// every member has crossed the same local step (spec §5 Shared resource
// policy).
func (e *Engine) joinParallelGroup(ctx context.Context, groupID string, plan *domain.Plan, s *domain.Session) error {
	g, err := e.registry.GetParallelGroup(ctx, groupID)
	if err != nil {
		g = &domain.ParallelGroup{
			GroupID:      groupID,
			SessionIDs:   []string{s.SessionID},
			PlanIDs:      []string{plan.PlanID},
			SyncStrategy: domain.SyncMerge,
			Status:       domain.GroupActive,
			CreatedAt:    e.clock(),
			UpdatedAt:    e.clock(),
		}
		if err := e.registry.CreateParallelGroup(ctx, g); err != nil {
			return err
		}
	} else {
		updated, err := e.registry.AddParallelGroupMember(ctx, groupID, s.SessionID)
		if err != nil {
			return err
		}
		g = updated
	}
	e.sync.InitGroup(groupID, domain.SyncStepAligned, g.SessionIDs)
	return nil
}

// executionLimitFor picks the quick/thorough/comprehensive execution
// timeout preset; techniques don't currently declare a preset of their
// own, so every session uses the configured default.
func (e *Engine) executionLimitFor(technique string) time.Duration {
	return e.cfg.Timeouts.ExecutionTimeout
}

// localStepFor implements spec §4.2 step 4 by looking the cumulative step
// up directly in the compiled plan's workflow, rather than re-deriving it
// from per-technique step counts.
func localStepFor(plan *domain.Plan, technique string, cumulativeStep int) (domain.WorkflowStep, error) {
	for _, step := range plan.Workflow {
		if step.CumulativeStep == cumulativeStep {
			if step.Technique != technique {
				return domain.WorkflowStep{}, engerrors.Newf(engerrors.CodeTechniqueMismatch,
					"step %d belongs to technique %q, not %q", cumulativeStep, step.Technique, technique).
					WithContext("planId", plan.PlanID)
			}
			return step, nil
		}
	}
	return domain.WorkflowStep{}, engerrors.Newf(engerrors.CodeInvalidStepNumber,
		"plan %q has no workflow step at cumulative step %d", plan.PlanID, cumulativeStep)
}

// recordInputFor derives a pathmemory.RecordInput from an execute request,
// preferring the caller-supplied pathImpact fields (in.Extra) and falling
// back to technique-agnostic defaults otherwise.
func recordInputFor(in dto.ExecuteInput, localStep int) pathmemory.RecordInput {
	rec := pathmemory.RecordInput{
		Technique:   in.Technique,
		Step:        localStep,
		Decision:    in.Output,
		RevisesStep: in.RevisesStep,
	}
	if in.IsRevision {
		rec.RevisesStep = in.RevisesStep
	}

	impact, ok := in.Extra["pathImpact"].(map[string]any)
	if !ok {
		rec.ReversibilityCost = 0.2
		rec.CommitmentLevel = 0.3
		return rec
	}
	rec.OptionsOpened = stringSlice(impact["optionsOpened"])
	rec.OptionsClosed = stringSlice(impact["optionsClosed"])
	rec.ConstraintsCreated = stringSlice(impact["constraintsCreated"])
	rec.ReversibilityCost = floatOr(impact["reversibilityCost"], 0.2)
	rec.CommitmentLevel = floatOr(impact["commitmentLevel"], 0.3)
	return rec
}

func stringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func floatOr(v any, fallback float64) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	return fallback
}

// ExecuteThinkingStep runs the nine-stage execute pipeline (spec §4.2).
func (e *Engine) ExecuteThinkingStep(ctx context.Context, in dto.ExecuteInput) (dto.ExecutionResponse, error) {
	if err := validation.Execute(in); err != nil {
		return dto.ExecutionResponse{}, err
	}
	plan, err := e.registry.GetPlan(ctx, in.PlanID)
	if err != nil {
		return dto.ExecutionResponse{}, err
	}
	if !containsTechnique(plan.Techniques, in.Technique) {
		return dto.ExecutionResponse{}, engerrors.Newf(engerrors.CodeTechniqueMismatch,
			"technique %q is not part of plan %q", in.Technique, in.PlanID).
			WithContext("planId", in.PlanID)
	}

	session, err := e.resolveSession(ctx, in, plan)
	if err != nil {
		return dto.ExecutionResponse{}, err
	}

	step, err := localStepFor(plan, in.Technique, in.CurrentStep)
	if err != nil {
		return dto.ExecutionResponse{}, err
	}

	handler, err := e.techniques.Get(in.Technique)
	if err != nil {
		return dto.ExecutionResponse{}, err
	}

	var synthesized *convergence.Synthesized
	if in.Technique == "convergence" {
		s, err := convergence.Execute(in.ParallelResults, e.techniques.Has)
		if err != nil {
			return dto.ExecutionResponse{}, err
		}
		synthesized = &s
	}

	resp := dto.ExecutionResponse{SessionID: session.SessionID, CurrentStep: in.CurrentStep}

	ok, verr := handler.ValidateStep(step.LocalStep, in.Extra)
	if verr != nil {
		return dto.ExecutionResponse{}, verr
	}
	if !ok {
		resp.Suggestions = append(resp.Suggestions, "step "+fmt.Sprint(step.LocalStep)+" is out of the technique's declared range; recorded with a warning")
	}

	tracker := e.trackerFor(session.SessionID, plan)
	tracker.RecordStep(in.Technique, step.LocalStep)
	meta := tracker.Snapshot(session.SessionID)

	if !in.NextStepNeeded {
		level, th := e.gatekeeperThresholds()
		decision := e.gate.CanProceedToNextStep(level, th, meta)
		if in.Technique == "convergence" {
			if synDecision := completion.CanProceedToSynthesis(plan.Techniques, meta); synDecision.Blocked {
				decision = synDecision
			}
		}
		if decision.Blocked {
			resp.Blocked = true
			resp.BlockReason = decision.Reason
			resp.RequiredActions = decision.RequiredActions
			resp.Suggestions = append(resp.Suggestions, decision.Suggestions...)
			resp.CompletionStatus = &meta
			resp.NextStepNeeded = true
			return resp, nil
		}
		if decision.RequiresConfirmation {
			resp.Suggestions = append(resp.Suggestions, decision.Suggestions...)
		} else if completion.IsCriticalTechnique(th, in.Technique) {
			resp.Suggestions = append(resp.Suggestions, "Technique "+in.Technique+" is critical; pass forceComplete:true to confirm ending it")
		}
	}

	pm, err := e.pathMemoryFor(ctx, session.SessionID)
	if err != nil {
		return dto.ExecutionResponse{}, err
	}
	event, err := pm.Record(ctx, recordInputFor(in, step.LocalStep))
	if err != nil {
		return dto.ExecutionResponse{}, err
	}
	resp.PathImpact = &event

	insights := append([]string(nil), in.Insights...)
	if synthesized != nil {
		insights = append(insights, synthesized.Insights...)
		resp.Metrics = synthesized.MetricsRollup
	}
	session.History = append(session.History, domain.HistoryEntry{
		Step:        in.CurrentStep,
		Timestamp:   e.clock(),
		Input:       in.Extra,
		Output:      in.Output,
		Insights:    insights,
		IsRevision:  in.IsRevision,
		RevisesStep: in.RevisesStep,
	})
	session.Insights = mergeUnique(session.Insights, handler.ExtractInsights(session.History))
	if err := e.registry.SaveSession(ctx, session); err != nil {
		return dto.ExecutionResponse{}, err
	}
	resp.Insights = session.Insights

	if session.ParallelGroupID != "" {
		e.sync.Update(session.ParallelGroupID, session.SessionID, step.LocalStep, insights, nil, resp.Metrics)
		if shared, ok := e.sync.GetSharedContext(session.ParallelGroupID); ok {
			resp.SharedContext = &shared
		}
	}

	assessment := e.warning.Evaluate(session, pm.Events(), e.clock())
	if assessment.OverallSeverity == ergodicity.SeverityWarning || assessment.OverallSeverity == ergodicity.SeverityCritical {
		resp.EarlyWarningState = assessment
	}

	guidance, err := handler.GetStepGuidance(step.LocalStep, in.Problem)
	if err == nil {
		resp.NextStepGuidance = guidance
	}
	resp.NextStepNeeded = in.NextStepNeeded
	resp.CompletionStatus = &meta

	if !in.NextStepNeeded {
		e.progress.Transition(session.SessionID, domain.StatusCompleted, in.CurrentStep, nil)
		e.timeouts.StopMonitoring(session.SessionID)
		if session.ParallelGroupID != "" {
			e.settleParallelGroup(ctx, session.ParallelGroupID, plan, in.Technique)
		}
	} else {
		e.progress.Transition(session.SessionID, domain.StatusInProgress, in.CurrentStep, nil)
	}

	return resp, nil
}

// settleParallelGroup closes out a parallel group once every member has
// reached a terminal progress status and, if the plan includes a
// convergence step, that step has just been recorded (spec §3.2:
// "destroyed when all members are completed/failed AND the convergence
// step, if any, has been recorded").
func (e *Engine) settleParallelGroup(ctx context.Context, groupID string, plan *domain.Plan, justExecuted string) {
	agg := e.progress.GroupAggregate(groupID)
	if agg.Total == 0 || agg.Completed+agg.Failed < agg.Total {
		return
	}
	needsConvergence := containsTechnique(plan.Techniques, "convergence")
	if needsConvergence && justExecuted != "convergence" {
		return
	}
	e.sync.Complete(groupID)
	e.sync.DropGroup(groupID)
	e.progress.ClearGroupProgress(groupID)
	if err := e.registry.DeleteParallelGroup(ctx, groupID); err != nil {
		e.log.WithField("groupId", groupID).WithError(err).Warn("settling parallel group")
	}
}

func containsTechnique(list []string, technique string) bool {
	for _, t := range list {
		if t == technique {
			return true
		}
	}
	return false
}

func mergeUnique(existing, additions []string) []string {
	seen := make(map[string]bool, len(existing))
	out := append([]string(nil), existing...)
	for _, s := range existing {
		seen[s] = true
	}
	for _, s := range additions {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// SessionOperation implements the multiplexed sessionOperation entry point
// (spec §4.1, §6). Export formatting and the versioned-envelope wire
// format live in internal/mcpserver's PersistenceAdapter; this method only
// does the registry-level part (save/load/list/delete), since that's all
// the engine itself owns.
func (e *Engine) SessionOperation(ctx context.Context, in dto.SessionOpInput) (dto.SessionOpOutput, error) {
	if err := validation.SessionOp(in); err != nil {
		return dto.SessionOpOutput{}, err
	}
	switch in.Operation {
	case "save":
		s, err := e.registry.GetSession(ctx, in.SessionID)
		if err != nil {
			return dto.SessionOpOutput{}, err
		}
		if err := e.registry.SaveSession(ctx, s); err != nil {
			return dto.SessionOpOutput{}, err
		}
		return dto.SessionOpOutput{Session: s}, nil
	case "load":
		s, err := e.registry.GetSession(ctx, in.SessionID)
		if err != nil {
			return dto.SessionOpOutput{}, err
		}
		return dto.SessionOpOutput{Session: s}, nil
	case "list":
		return dto.SessionOpOutput{Sessions: e.registry.ListSessions("")}, nil
	case "delete":
		if err := e.registry.DeleteSession(ctx, in.SessionID); err != nil {
			return dto.SessionOpOutput{}, err
		}
		e.timeouts.StopMonitoring(in.SessionID)
		e.mu.Lock()
		delete(e.pathMemories, in.SessionID)
		delete(e.trackers, in.SessionID)
		e.mu.Unlock()
		return dto.SessionOpOutput{Deleted: true}, nil
	default:
		return dto.SessionOpOutput{}, engerrors.Newf(engerrors.CodeValidationFailed,
			"sessionOperation %q is not handled by the engine directly; route through the export adapter", in.Operation)
	}
}

// Registry exposes the engine's SessionRegistry for transport-layer
// callers that need it directly (e.g. the export adapter).
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Techniques exposes the engine's TechniqueRegistry.
func (e *Engine) Techniques() *techniques.Registry { return e.techniques }

// EscapeVelocity exposes the escape-velocity system for a dedicated
// escape-protocol transport op, using the session's own PathMemory.
func (e *Engine) EscapeVelocity(ctx context.Context, ec ergodicity.EscapeContext) (ergodicity.EscapeResult, error) {
	pm, err := e.pathMemoryFor(ctx, ec.SessionID)
	if err != nil {
		return ergodicity.EscapeResult{}, err
	}
	return e.escape.Execute(ctx, pm, ec)
}
