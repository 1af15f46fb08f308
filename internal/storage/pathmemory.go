package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"lateral/engine/internal/domain"
)

// AppendPathEvent appends a PathEvent for a session. seq must be the next
// sequence number for that session (callers serialize this per session).
func (s *SQLiteStore) AppendPathEvent(ctx context.Context, sessionID string, seq int, e *domain.PathEvent) error {
	optionsOpened, err := json.Marshal(e.OptionsOpened)
	if err != nil {
		return err
	}
	optionsClosed, err := json.Marshal(e.OptionsClosed)
	if err != nil {
		return err
	}
	constraintsCreated, err := json.Marshal(e.ConstraintsCreated)
	if err != nil {
		return err
	}

	var revisesStep any
	if e.RevisesStep > 0 {
		revisesStep = e.RevisesStep
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO path_events (id, session_id, seq, timestamp, technique, step, decision,
			options_opened, options_closed, reversibility_cost, commitment_level, constraints_created, revises_step)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, sessionID, seq, e.Timestamp.UTC().Format(time.RFC3339Nano), e.Technique, e.Step, e.Decision,
		string(optionsOpened), string(optionsClosed), e.ReversibilityCost, e.CommitmentLevel,
		string(constraintsCreated), revisesStep)
	if err != nil {
		return fmt.Errorf("storage: appending path event: %w", err)
	}
	return nil
}

// ListPathEvents returns a session's full PathMemory in append order.
func (s *SQLiteStore) ListPathEvents(ctx context.Context, sessionID string) ([]*domain.PathEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, timestamp, technique, step, decision, options_opened, options_closed,
		       reversibility_cost, commitment_level, constraints_created, revises_step
		FROM path_events WHERE session_id = ? ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("storage: listing path events: %w", err)
	}
	defer rows.Close()

	var out []*domain.PathEvent
	for rows.Next() {
		var (
			e                                     domain.PathEvent
			timestamp, optionsOpened, optionsClosed, constraintsCreated string
			revisesStep                           sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Seq, &timestamp, &e.Technique, &e.Step, &e.Decision,
			&optionsOpened, &optionsClosed, &e.ReversibilityCost, &e.CommitmentLevel,
			&constraintsCreated, &revisesStep); err != nil {
			return nil, fmt.Errorf("storage: scanning path event: %w", err)
		}
		e.SessionID = sessionID
		var perr error
		if e.Timestamp, perr = parseRFC3339(timestamp); perr != nil {
			return nil, perr
		}
		if err := json.Unmarshal([]byte(optionsOpened), &e.OptionsOpened); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(optionsClosed), &e.OptionsClosed); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(constraintsCreated), &e.ConstraintsCreated); err != nil {
			return nil, err
		}
		if revisesStep.Valid {
			e.RevisesStep = int(revisesStep.Int64)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// NextPathEventSeq returns the next append sequence number for a session.
func (s *SQLiteStore) NextPathEventSeq(ctx context.Context, sessionID string) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(seq) FROM path_events WHERE session_id = ?", sessionID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("storage: computing next path event seq: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64) + 1, nil
}

// SaveFlexibilitySnapshot records a derived flexibility snapshot at a given
// sequence point.
func (s *SQLiteStore) SaveFlexibilitySnapshot(ctx context.Context, sessionID string, seq int, snap domain.FlexibilitySnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flexibility_snapshots (session_id, seq, flexibility_score, reversibility_index, option_velocity, commitment_depth, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO UPDATE SET
			flexibility_score=excluded.flexibility_score, reversibility_index=excluded.reversibility_index,
			option_velocity=excluded.option_velocity, commitment_depth=excluded.commitment_depth
	`, sessionID, seq, snap.FlexibilityScore, snap.ReversibilityIndex, snap.OptionVelocity, snap.CommitmentDepth, nowRFC3339())
	if err != nil {
		return fmt.Errorf("storage: saving flexibility snapshot: %w", err)
	}
	return nil
}

// LatestFlexibilitySnapshot returns the most recent snapshot for a session,
// or the zero value with ok=false if none exists.
func (s *SQLiteStore) LatestFlexibilitySnapshot(ctx context.Context, sessionID string) (domain.FlexibilitySnapshot, bool, error) {
	var snap domain.FlexibilitySnapshot
	err := s.db.QueryRowContext(ctx, `
		SELECT flexibility_score, reversibility_index, option_velocity, commitment_depth
		FROM flexibility_snapshots WHERE session_id = ? ORDER BY seq DESC LIMIT 1
	`, sessionID).Scan(&snap.FlexibilityScore, &snap.ReversibilityIndex, &snap.OptionVelocity, &snap.CommitmentDepth)
	if err == sql.ErrNoRows {
		return domain.FlexibilitySnapshot{}, false, nil
	}
	if err != nil {
		return domain.FlexibilitySnapshot{}, false, fmt.Errorf("storage: reading latest flexibility snapshot: %w", err)
	}
	return snap, true, nil
}
