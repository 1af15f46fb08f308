// Package validation implements ValidationStrategies (component 7):
// per-phase input validation for discovery, planning, execution, and
// session operations. Every strategy is a pure function from request to
// error; none of them touches the registry or path memory.
package validation

import (
	"strconv"
	"strings"

	"lateral/engine/internal/dto"
	engerrors "lateral/engine/internal/errors"
)

// matrixFieldSuffix marks technique-specific fields that must decode as
// arrays (e.g. nineWindowsMatrix).
const matrixFieldSuffix = "Matrix"

// objectFields are technique-agnostic fields that must decode as plain
// objects, never as a stringified JSON blob — the recurring client error
// spec §4.2 calls out by name for pathImpact.
var objectFields = []string{"pathImpact", "sharedContext", "metricsRollup"}

// Discover validates a discoverTechniques request.
func Discover(in dto.DiscoverInput) error {
	if strings.TrimSpace(in.Problem) == "" {
		return engerrors.New(engerrors.CodeValidationFailed, "problem must not be empty").
			WithSuggestion("describe the problem you want technique recommendations for")
	}
	if in.CurrentFlexibility != nil && (*in.CurrentFlexibility < 0 || *in.CurrentFlexibility > 1) {
		return engerrors.New(engerrors.CodeValidationFailed, "currentFlexibility must be in [0,1]").
			WithContext("currentFlexibility", fmtFloat(*in.CurrentFlexibility))
	}
	return nil
}

// TechniqueChecker reports whether technique is registered; Plan takes this
// as a function parameter so it doesn't need to import the techniques
// package and create an import cycle risk as that package grows.
type TechniqueChecker func(id string) bool

var validTimeframes = map[string]bool{"": true, "quick": true, "thorough": true, "comprehensive": true}
var validModes = map[string]bool{"": true, "sequential": true, "parallel": true}

// Plan validates a planThinkingSession request.
func Plan(in dto.PlanInput, known TechniqueChecker) error {
	if strings.TrimSpace(in.Problem) == "" {
		return engerrors.New(engerrors.CodeValidationFailed, "problem must not be empty")
	}
	if len(in.Techniques) == 0 {
		return engerrors.New(engerrors.CodeValidationFailed, "techniques must not be empty").
			WithSuggestion("call discoverTechniques first if unsure which to pick")
	}
	seen := make(map[string]bool, len(in.Techniques))
	for _, t := range in.Techniques {
		if seen[t] {
			return engerrors.Newf(engerrors.CodeValidationFailed, "technique %q listed more than once", t)
		}
		seen[t] = true
		if known != nil && !known(t) {
			return engerrors.Newf(engerrors.CodeUnknownTechnique, "unknown technique %q", t).
				WithContext("technique", t)
		}
	}
	if !validTimeframes[in.Timeframe] {
		return engerrors.Newf(engerrors.CodeValidationFailed, "invalid timeframe %q", in.Timeframe)
	}
	if !validModes[in.ExecutionMode] {
		return engerrors.Newf(engerrors.CodeValidationFailed, "invalid executionMode %q", in.ExecutionMode)
	}
	return nil
}

// Execute validates an executeThinkingStep request's shape, independent of
// any particular technique handler (handler.ValidateStep runs later, as a
// separate pipeline stage — spec §4.2 steps 1 and 5).
func Execute(in dto.ExecuteInput) error {
	if strings.TrimSpace(in.PlanID) == "" {
		return engerrors.New(engerrors.CodeValidationFailed, "planId is required").
			WithSuggestion("call planThinkingSession before executeThinkingStep")
	}
	if strings.TrimSpace(in.Technique) == "" {
		return engerrors.New(engerrors.CodeValidationFailed, "technique is required")
	}
	if strings.TrimSpace(in.Problem) == "" {
		return engerrors.New(engerrors.CodeValidationFailed, "problem is required")
	}
	if in.CurrentStep < 1 {
		return engerrors.New(engerrors.CodeInvalidStepNumber, "currentStep must be >= 1").
			WithContext("currentStep", strconv.Itoa(in.CurrentStep))
	}
	if in.TotalSteps < 1 {
		return engerrors.New(engerrors.CodeInvalidStepNumber, "totalSteps must be >= 1")
	}
	if in.CurrentStep > in.TotalSteps {
		return engerrors.Newf(engerrors.CodeInvalidStepNumber, "currentStep %d exceeds totalSteps %d", in.CurrentStep, in.TotalSteps)
	}
	if in.IsRevision && in.RevisesStep > in.CurrentStep {
		return engerrors.New(engerrors.CodeValidationFailed, "revisesStep must not exceed currentStep").
			WithContext("revisesStep", strconv.Itoa(in.RevisesStep)).
			WithContext("currentStep", strconv.Itoa(in.CurrentStep))
	}
	if in.Technique == "convergence" && len(in.ParallelResults) == 0 {
		return engerrors.New(engerrors.CodeConvergenceMalformed, "convergence requires at least one parallelResults entry").
			WithSuggestion("run the parallel plan's member sessions before converging")
	}
	for _, pr := range in.ParallelResults {
		if strings.TrimSpace(pr.PlanID) == "" {
			return engerrors.New(engerrors.CodeConvergenceMalformed, "parallelResults entry missing planId")
		}
	}
	for field, v := range in.Extra {
		if strings.HasSuffix(field, matrixFieldSuffix) {
			if _, ok := v.([]any); !ok {
				return engerrors.Newf(engerrors.CodeValidationFailed, "field %q must be an array", field).
					WithContext("field", field)
			}
		}
	}
	for _, field := range objectFields {
		v, present := in.Extra[field]
		if !present {
			continue
		}
		if s, ok := v.(string); ok {
			trimmed := strings.TrimSpace(s)
			if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
				return engerrors.Newf(engerrors.CodeValidationFailed,
					"field %q must be an object, not a stringified JSON payload", field).
					WithSuggestion("send the parsed object, not json.Stringify(object)").
					WithContext("field", field)
			}
		}
	}
	return nil
}

var validSessionOps = map[string]bool{"save": true, "load": true, "list": true, "delete": true, "export": true}
var validExportFormats = map[string]bool{"": true, "json": true, "markdown": true, "csv": true}

// SessionOp validates a sessionOperation request.
func SessionOp(in dto.SessionOpInput) error {
	if !validSessionOps[in.Operation] {
		return engerrors.Newf(engerrors.CodeValidationFailed, "unknown sessionOperation %q", in.Operation)
	}
	if (in.Operation == "save" || in.Operation == "load" || in.Operation == "delete") && strings.TrimSpace(in.SessionID) == "" {
		return engerrors.Newf(engerrors.CodeValidationFailed, "sessionId is required for %q", in.Operation)
	}
	if in.Operation == "export" && !validExportFormats[in.Format] {
		return engerrors.Newf(engerrors.CodeValidationFailed, "invalid export format %q", in.Format)
	}
	return nil
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
