package mcpserver

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"lateral/engine/internal/domain"
	"lateral/engine/internal/dto"
	engerrors "lateral/engine/internal/errors"
	"lateral/engine/internal/registry"
)

// envelopeVersion is the versioned-envelope format spec §6 requires for
// every persisted or exported session.
const envelopeVersion = "1.0.0"

// exportEnvelope is the on-the-wire shape every export produces,
// regardless of format: {version, format, compressed, encrypted, data}.
type exportEnvelope struct {
	Version    string `json:"version"`
	Format     string `json:"format"`
	Compressed bool   `json:"compressed"`
	Encrypted  bool   `json:"encrypted"`
	Data       string `json:"data"`
}

// PersistenceAdapter implements sessionOperation's "export" case (spec
// §4.1, §6): it never produces a compressed or encrypted envelope itself
// (both flags are always false) but leaves room for a future adapter
// that does, without changing the wire shape callers already depend on.
type PersistenceAdapter struct {
	registry *registry.Registry
}

// NewPersistenceAdapter wraps the engine's SessionRegistry in an export
// port. reg must be non-nil.
func NewPersistenceAdapter(reg *registry.Registry) *PersistenceAdapter {
	return &PersistenceAdapter{registry: reg}
}

// Export renders the named session as json, markdown, or csv and wraps
// it in the spec §6 versioned envelope.
func (a *PersistenceAdapter) Export(ctx context.Context, in dto.SessionOpInput) (string, error) {
	sessionID := in.SessionID
	if sessionID == "" {
		return "", engerrors.New(engerrors.CodeMissingField, "export requires sessionId")
	}
	sess, err := a.registry.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}

	format := in.Format
	if format == "" {
		format = "json"
	}

	var body string
	switch format {
	case "json":
		body, err = exportJSON(sess)
	case "markdown":
		body, err = exportMarkdown(sess)
	case "csv":
		body, err = exportCSV(sess)
	default:
		return "", engerrors.Newf(engerrors.CodeValidationFailed, "unknown export format %q", format).
			WithSuggestion("format must be one of json, markdown, csv")
	}
	if err != nil {
		return "", err
	}

	env := exportEnvelope{Version: envelopeVersion, Format: format, Data: body}
	out, err := json.Marshal(env)
	if err != nil {
		return "", engerrors.New(engerrors.CodeInternal, "marshaling export envelope").WithCause(err)
	}
	return string(out), nil
}

func exportJSON(sess *domain.Session) (string, error) {
	raw, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return "", engerrors.New(engerrors.CodeInternal, "marshaling session").WithCause(err)
	}
	return string(raw), nil
}

func exportMarkdown(sess *domain.Session) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s\n\n", sess.SessionID)
	fmt.Fprintf(&b, "- technique: %s\n", sess.Technique)
	fmt.Fprintf(&b, "- problem: %s\n", sess.Problem)
	fmt.Fprintf(&b, "- started: %s\n", sess.StartTime.UTC().Format(time.RFC3339))
	if sess.EndTime != nil {
		fmt.Fprintf(&b, "- ended: %s\n", sess.EndTime.UTC().Format(time.RFC3339))
	}
	b.WriteString("\n## History\n\n")
	for _, h := range sess.History {
		fmt.Fprintf(&b, "### Step %d\n\n%s\n\n", h.Step, h.Output)
		for _, ins := range h.Insights {
			fmt.Fprintf(&b, "- insight: %s\n", ins)
		}
	}
	if len(sess.Insights) > 0 {
		b.WriteString("\n## Insights\n\n")
		for _, ins := range sess.Insights {
			fmt.Fprintf(&b, "- %s\n", ins)
		}
	}
	return b.String(), nil
}

func exportCSV(sess *domain.Session) (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write([]string{"step", "timestamp", "output", "isRevision", "revisesStep"}); err != nil {
		return "", engerrors.New(engerrors.CodeInternal, "writing csv header").WithCause(err)
	}
	for _, h := range sess.History {
		record := []string{
			strconv.Itoa(h.Step),
			h.Timestamp.UTC().Format(time.RFC3339),
			h.Output,
			strconv.FormatBool(h.IsRevision),
			strconv.Itoa(h.RevisesStep),
		}
		if err := w.Write(record); err != nil {
			return "", engerrors.New(engerrors.CodeInternal, "writing csv row").WithCause(err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", engerrors.New(engerrors.CodeInternal, "flushing csv").WithCause(err)
	}
	return b.String(), nil
}
