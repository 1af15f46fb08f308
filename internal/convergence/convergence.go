// Package convergence implements the ConvergenceExecutor (component 13):
// it validates and normalizes a set of parallel session results into a
// single synthesized context for the convergence technique handler (spec
// §4.8).
package convergence

import (
	"encoding/json"

	"lateral/engine/internal/dto"
	engerrors "lateral/engine/internal/errors"
)

// TechniqueChecker reports whether a technique id is registered.
type TechniqueChecker func(id string) bool

// Excluded records one parallelResults member that failed structural
// validation and was dropped rather than aborting the whole convergence.
type Excluded struct {
	Index  int
	PlanID string
	Reason string
}

// Synthesized is the merged context handed to the convergence handler.
type Synthesized struct {
	Insights      []string
	MetricsRollup map[string]any
	Excluded      []Excluded
}

// stripNonSerializable drops result fields that cannot survive a JSON
// round-trip (functions, channels, ...) silently, per spec §4.8, rather
// than rejecting the whole member.
func stripNonSerializable(results map[string]any) map[string]any {
	if results == nil {
		return nil
	}
	out := make(map[string]any, len(results))
	for k, v := range results {
		if isSerializable(v) {
			out[k] = v
		}
	}
	return out
}

func isSerializable(v any) bool {
	switch v.(type) {
	case nil, bool, string,
		float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	case []any, map[string]any:
		return true
	default:
		return false
	}
}

// Execute validates and merges parallelResults. It degrades gracefully:
// malformed members are recorded in Synthesized.Excluded and dropped
// rather than failing the whole step, as long as at least one member
// remains valid. Zero valid members after filtering is itself an error —
// the spec leaves the zero-valid-results case as an open question; this
// implementation resolves it as CodeConvergenceMalformed rather than
// silently returning an empty synthesis, since a convergence step with no
// usable input has nothing to converge on.
func Execute(results []dto.ParallelResultInput, known TechniqueChecker) (Synthesized, error) {
	if len(results) == 0 {
		return Synthesized{}, engerrors.New(engerrors.CodeConvergenceMalformed, "parallelResults must not be empty").
			WithSuggestion("run the parallel plan's member sessions before converging")
	}

	out := Synthesized{MetricsRollup: make(map[string]any)}
	seenInsight := make(map[string]bool)

	for i, r := range results {
		insights, reason := insightsOrReason(r, known)
		if reason != "" {
			out.Excluded = append(out.Excluded, Excluded{Index: i, PlanID: r.PlanID, Reason: reason})
			continue
		}
		for _, ins := range insights {
			if !seenInsight[ins] {
				seenInsight[ins] = true
				out.Insights = append(out.Insights, ins)
			}
		}
		for k, v := range stripNonSerializable(r.Results) {
			out.MetricsRollup[k] = v
		}
	}

	if len(out.Excluded) == len(results) {
		return out, engerrors.New(engerrors.CodeConvergenceMalformed, "every parallelResults entry was malformed").
			WithSuggestion("check planId and technique fields on each parallel member result")
	}
	return out, nil
}

// insightsOrReason validates one parallelResults member and, if valid,
// decodes its insights. A non-empty reason means the member is excluded
// and insights is always nil in that case.
func insightsOrReason(r dto.ParallelResultInput, known TechniqueChecker) ([]string, string) {
	if r.PlanID == "" {
		return nil, "missing planId"
	}
	if r.Technique == "" {
		return nil, "missing technique"
	}
	if known != nil && !known(r.Technique) {
		return nil, "unknown technique " + r.Technique
	}
	insights, err := decodeInsights(r.Insights)
	if err != nil {
		return nil, "insights must be an array of strings, not a stringified JSON payload"
	}
	return insights, ""
}

// decodeInsights parses a member's raw insights field, which must be a
// JSON array of strings. Spec §4.8: "insights is an array of strings
// (reject stringified JSON)" — a JSON string whose contents happen to
// look like an array (e.g. the literal `["x"]`) fails this decode exactly
// like any other malformed shape, since it unmarshals as a Go string, not
// a []string. Absent/null insights are treated as empty, not malformed.
func decodeInsights(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
