package convergence

import (
	"testing"

	"lateral/engine/internal/dto"
	engerrors "lateral/engine/internal/errors"
)

func knownTechniques(ids ...string) TechniqueChecker {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return func(id string) bool { return set[id] }
}

func insightsJSON(s ...string) []byte {
	out := []byte("[")
	for i, v := range s {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '"')
		out = append(out, v...)
		out = append(out, '"')
	}
	return append(out, ']')
}

func TestExecuteRejectsEmptyResults(t *testing.T) {
	_, err := Execute(nil, knownTechniques())
	if engerrors.GetCode(err) != engerrors.CodeConvergenceMalformed {
		t.Fatalf("expected convergence malformed error, got %v", err)
	}
}

func TestExecuteMergesAndDedupesInsights(t *testing.T) {
	results := []dto.ParallelResultInput{
		{PlanID: "p1", Technique: "six_hats", Insights: insightsJSON("a", "b")},
		{PlanID: "p2", Technique: "scamper", Insights: insightsJSON("b", "c")},
	}
	out, err := Execute(results, knownTechniques("six_hats", "scamper"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(out.Insights) != 3 {
		t.Fatalf("expected deduped insights [a b c], got %v", out.Insights)
	}
	if out.Insights[0] != "a" || out.Insights[1] != "b" || out.Insights[2] != "c" {
		t.Fatalf("expected first-occurrence order, got %v", out.Insights)
	}
}

func TestExecuteDegradesGracefullyOnMalformedMember(t *testing.T) {
	results := []dto.ParallelResultInput{
		{PlanID: "p1", Technique: "six_hats", Insights: insightsJSON("a")},
		{PlanID: "", Technique: "scamper", Insights: insightsJSON("b")}, // malformed: missing planId
	}
	out, err := Execute(results, knownTechniques("six_hats", "scamper"))
	if err != nil {
		t.Fatalf("expected graceful degradation, got error: %v", err)
	}
	if len(out.Excluded) != 1 || out.Excluded[0].PlanID != "" {
		t.Fatalf("expected one excluded member, got %+v", out.Excluded)
	}
	if len(out.Insights) != 1 || out.Insights[0] != "a" {
		t.Fatalf("expected only the valid member's insight, got %v", out.Insights)
	}
}

// TestExecuteExcludesStringifiedJSONInsights is scenario S3: one of three
// parallelResults entries has insights sent as the literal string '["x"]'
// rather than a JSON array. It must be excluded individually; the step
// still runs and synthesizes insights from the remaining valid members.
func TestExecuteExcludesStringifiedJSONInsights(t *testing.T) {
	results := []dto.ParallelResultInput{
		{PlanID: "p1", Technique: "six_hats", Insights: insightsJSON("a")},
		{PlanID: "p2", Technique: "scamper", Insights: insightsJSON("b")},
		{PlanID: "p3", Technique: "po", Insights: []byte(`"[\"x\"]"`)}, // stringified JSON, not an array
	}
	out, err := Execute(results, knownTechniques("six_hats", "scamper", "po"))
	if err != nil {
		t.Fatalf("expected graceful degradation, got error: %v", err)
	}
	if len(out.Excluded) != 1 || out.Excluded[0].PlanID != "p3" {
		t.Fatalf("expected p3 excluded for stringified JSON insights, got %+v", out.Excluded)
	}
	if len(out.Insights) != 2 || out.Insights[0] != "a" || out.Insights[1] != "b" {
		t.Fatalf("expected insights drawn only from the two valid members, got %v", out.Insights)
	}
}

func TestExecuteFailsWhenAllMembersMalformed(t *testing.T) {
	results := []dto.ParallelResultInput{
		{PlanID: "", Technique: "six_hats"},
		{PlanID: "p2", Technique: "unknown_technique"},
	}
	_, err := Execute(results, knownTechniques("six_hats"))
	if engerrors.GetCode(err) != engerrors.CodeConvergenceMalformed {
		t.Fatalf("expected convergence malformed error, got %v", err)
	}
}

func TestExecuteStripsNonSerializableResultFields(t *testing.T) {
	results := []dto.ParallelResultInput{
		{PlanID: "p1", Technique: "six_hats", Results: map[string]any{
			"score":   0.8,
			"fn":      func() {},
			"channel": make(chan int),
		}},
	}
	out, err := Execute(results, knownTechniques("six_hats"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, ok := out.MetricsRollup["score"]; !ok {
		t.Fatal("expected serializable field to survive")
	}
	if _, ok := out.MetricsRollup["fn"]; ok {
		t.Fatal("expected function field to be stripped")
	}
	if _, ok := out.MetricsRollup["channel"]; ok {
		t.Fatal("expected channel field to be stripped")
	}
}
