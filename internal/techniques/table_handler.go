package techniques

import (
	"fmt"
	"strings"

	"lateral/engine/internal/domain"
	engerrors "lateral/engine/internal/errors"
)

// TableHandler is a data-driven Handler: its behavior is entirely a static
// table of steps plus a small set of per-technique structural-field
// checks. This mirrors the source system's technique handlers, which are
// themselves static tables with no internal state.
type TableHandler struct {
	id          string
	name        string
	emoji       string
	description string
	steps       []StepInfo
	guidance    []string

	// requiredFields lists structural checks on step-data fields:
	// ValidateStep hard-fails when a field marked Required is absent, or
	// when a present field does not have the given kind.
	requiredFields []FieldCheck
}

// FieldKind is the structural shape a technique-specific field must have.
type FieldKind int

const (
	// KindArray requires the field to decode as a JSON array ([]any).
	KindArray FieldKind = iota
	// KindObject requires the field to decode as a JSON object
	// (map[string]any), rejecting the common client error of sending a
	// stringified JSON blob instead.
	KindObject
	// KindString requires the field to be a string.
	KindString
)

// FieldCheck names one technique-specific structural requirement.
type FieldCheck struct {
	Field    string
	Kind     FieldKind
	Required bool
}

var _ Handler = (*TableHandler)(nil)

func (h *TableHandler) ID() string          { return h.id }
func (h *TableHandler) Name() string        { return h.name }
func (h *TableHandler) Emoji() string       { return h.emoji }
func (h *TableHandler) TotalSteps() int     { return len(h.steps) }
func (h *TableHandler) Description() string { return h.description }

func (h *TableHandler) GetStepInfo(localStep int) (StepInfo, error) {
	if localStep < 1 || localStep > len(h.steps) {
		return StepInfo{}, engerrors.Newf(engerrors.CodeInvalidStepNumber,
			"technique %q has no local step %d (of %d)", h.id, localStep, len(h.steps)).
			WithContext("technique", h.id)
	}
	return h.steps[localStep-1], nil
}

func (h *TableHandler) GetStepGuidance(localStep int, problem string) (string, error) {
	if localStep < 1 || localStep > len(h.guidance) {
		return "", engerrors.Newf(engerrors.CodeInvalidStepNumber,
			"technique %q has no guidance for local step %d", h.id, localStep)
	}
	tmpl := h.guidance[localStep-1]
	if problem == "" {
		return tmpl, nil
	}
	return strings.ReplaceAll(tmpl, "{problem}", problem), nil
}

// ValidateStep checks declared structural fields. A missing required field
// or a field of the wrong shape is a hard failure (matching spec §4.2's
// "pathImpact must be an object, not a stringified JSON" case); an
// out-of-range localStep is a soft failure (ok=false, err=nil) so the
// caller can record the step with a warning rather than abort, preserving
// backwards compatibility with over-long client step sequences.
func (h *TableHandler) ValidateStep(localStep int, data map[string]any) (bool, error) {
	for _, fc := range h.requiredFields {
		v, present := data[fc.Field]
		if !present {
			if fc.Required {
				return false, engerrors.Newf(engerrors.CodeValidationFailed,
					"field %q is required for technique %q", fc.Field, h.id).
					WithContext("field", fc.Field)
			}
			continue
		}
		if err := checkKind(fc.Field, fc.Kind, v); err != nil {
			return false, err
		}
	}
	if localStep < 1 || localStep > len(h.steps) {
		return false, nil
	}
	return true, nil
}

func checkKind(field string, kind FieldKind, v any) error {
	switch kind {
	case KindArray:
		if _, ok := v.([]any); !ok {
			return engerrors.Newf(engerrors.CodeValidationFailed,
				"field %q must be an array", field).WithContext("field", field)
		}
	case KindObject:
		if s, ok := v.(string); ok {
			trimmed := strings.TrimSpace(s)
			if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
				return engerrors.Newf(engerrors.CodeValidationFailed,
					"field %q must be an object, not a stringified JSON payload", field).
					WithSuggestion("send the parsed object, not json.Stringify(object)").
					WithContext("field", field)
			}
			return engerrors.Newf(engerrors.CodeValidationFailed, "field %q must be an object", field).
				WithContext("field", field)
		}
		if _, ok := v.(map[string]any); !ok {
			return engerrors.Newf(engerrors.CodeValidationFailed, "field %q must be an object", field).
				WithContext("field", field)
		}
	case KindString:
		if _, ok := v.(string); !ok {
			return engerrors.Newf(engerrors.CodeValidationFailed, "field %q must be a string", field).
				WithContext("field", field)
		}
	}
	return nil
}

// ExtractInsights collects the Insights field of each history entry, in
// first-seen order, skipping empty and duplicate strings. Entry output text
// is not scanned for insights.
func (h *TableHandler) ExtractInsights(history []domain.HistoryEntry) []string {
	seen := make(map[string]bool)
	var out []string
	for _, entry := range history {
		for _, insight := range entry.Insights {
			if insight == "" || seen[insight] {
				continue
			}
			seen[insight] = true
			out = append(out, insight)
		}
	}
	return out
}

// GetPromptContext returns the step's static info as a generic map, the
// shape a prompt-template handler (out of scope) would consume.
func (h *TableHandler) GetPromptContext(localStep int) map[string]any {
	info, err := h.GetStepInfo(localStep)
	if err != nil {
		return map[string]any{"technique": h.id, "localStep": localStep}
	}
	return map[string]any{
		"technique":   h.id,
		"localStep":   localStep,
		"name":        info.Name,
		"focus":       info.Focus,
		"description": info.Description,
	}
}

func stepInfo(name, focus, emoji, desc string) StepInfo {
	return StepInfo{Name: name, Focus: focus, Emoji: emoji, Description: desc}
}

func guidanceFor(problem, prompt string) string {
	return fmt.Sprintf("%s: %s", prompt, problem)
}
