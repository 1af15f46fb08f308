package engine

import (
	"sort"
	"strconv"
	"strings"

	"lateral/engine/internal/dto"
	"lateral/engine/internal/ergodicity"
	"lateral/engine/internal/validation"
)

// keywordWeights maps a technique id to the lexicon that raises its
// recommendation score for a given problem statement, the same
// lexicon-density approach the early-warning system's technical_debt
// sensor uses over decision text.
var keywordWeights = map[string][]string{
	"six_hats":           {"decision", "risk", "pros and cons", "evaluate", "should we", "tradeoff", "perspective"},
	"scamper":            {"improve", "redesign", "existing", "product", "feature", "rework", "iterate"},
	"random_entry":       {"stuck", "stale", "same ideas", "no new", "fresh", "blank page", "brainstorm"},
	"po":                 {"rule", "assumption", "always", "never", "constraint", "policy", "convention"},
	"concept_extraction": {"other industries", "analogous", "similar problem", "elsewhere", "precedent"},
}

// excludedFromRecommendations lists techniques that are never suggested
// directly by discoverTechniques — convergence is a synthesis step driven
// by a completed parallel group, not a starting point.
var excludedFromRecommendations = map[string]bool{"convergence": true}

// baselineScore is every registered technique's score floor, so a problem
// matching no keyword still gets a full (if generic) recommendation list.
const baselineScore = 0.35

// DiscoverTechniques implements discoverTechniques (spec §4.1): a pure
// function of the input plus the static recommendation rules below —
// it touches no registry, session, or path-memory state.
func (e *Engine) DiscoverTechniques(in dto.DiscoverInput) (dto.DiscoverOutput, error) {
	if err := validation.Discover(in); err != nil {
		return dto.DiscoverOutput{}, err
	}

	lowered := strings.ToLower(in.Problem + " " + in.Context + " " + in.PreferredOutcome)

	var recs []dto.Recommendation
	for _, id := range e.techniques.Techniques() {
		if excludedFromRecommendations[id] {
			continue
		}
		handler, err := e.techniques.Get(id)
		if err != nil {
			continue
		}
		score, matched := scoreTechnique(id, lowered)
		reasoning := handler.Description()
		if len(matched) > 0 {
			reasoning += " Matched: " + strings.Join(matched, ", ") + "."
		}
		recs = append(recs, dto.Recommendation{Technique: id, Score: score, Reasoning: reasoning})
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].Technique < recs[j].Technique
	})

	out := dto.DiscoverOutput{
		Recommendations: recs,
		Reasoning:       buildReasoning(in, recs),
		SuggestedWorkflow: suggestedWorkflow(recs),
	}

	if in.CurrentFlexibility != nil {
		flex := *in.CurrentFlexibility
		if flex < 0.30 {
			out.FlexibilityWarning = "currentFlexibility " + strconv.FormatFloat(flex, 'f', 2, 64) +
				" is low; consider an escape-velocity protocol before committing to more techniques"
			out.EscapeVelocityAnalysis = escapeAnalysisFor(flex)
			out.GeneratedOptions = []string{"pattern-interruption-option", "resource-reallocation-option"}
		}
	}

	return out, nil
}

// scoreTechnique returns the technique's recommendation score and the
// keywords from its lexicon that matched the lowered problem text.
func scoreTechnique(id, lowered string) (float64, []string) {
	keywords := keywordWeights[id]
	var matched []string
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			matched = append(matched, kw)
		}
	}
	if len(keywords) == 0 {
		return baselineScore, matched
	}
	bonus := float64(len(matched)) / float64(len(keywords))
	score := baselineScore + bonus*(1-baselineScore)
	if score > 1 {
		score = 1
	}
	return score, matched
}

func buildReasoning(in dto.DiscoverInput, recs []dto.Recommendation) string {
	if len(recs) == 0 {
		return "no techniques are registered"
	}
	top := recs[0]
	return "ranked by keyword match against the problem statement; " + top.Technique +
		" scores highest at " + strconv.FormatFloat(top.Score, 'f', 2, 64)
}

// suggestedWorkflow names the top three recommendations in score order, a
// reasonable default plan for planThinkingSession.
func suggestedWorkflow(recs []dto.Recommendation) []string {
	n := len(recs)
	if n > 3 {
		n = 3
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, recs[i].Technique)
	}
	return out
}

// escapeAnalysisFor names the most drastic escape-velocity protocol a
// currentFlexibility reading can reach, without requiring a live session
// or PathMemory — discoverTechniques runs before any session exists.
func escapeAnalysisFor(flexibility float64) string {
	protocols := []struct {
		name  ergodicity.Protocol
		floor float64
	}{
		{ergodicity.ProtocolPatternInterruption, 0.00},
		{ergodicity.ProtocolResourceReallocation, 0.20},
		{ergodicity.ProtocolStakeholderReset, 0.30},
		{ergodicity.ProtocolTechnicalRefactoring, 0.35},
		{ergodicity.ProtocolStrategicPivot, 0.50},
	}
	best := protocols[0].name
	for _, p := range protocols {
		if flexibility >= p.floor {
			best = p.name
		}
	}
	return "at flexibility " + strconv.FormatFloat(flexibility, 'f', 2, 64) + ", " + string(best) + " is the most drastic protocol currently reachable"
}
