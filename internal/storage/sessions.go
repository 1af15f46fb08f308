package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"lateral/engine/internal/domain"
)

// SaveSession upserts a session's full state.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *domain.Session) error {
	history, err := json.Marshal(sess.History)
	if err != nil {
		return fmt.Errorf("storage: marshaling history: %w", err)
	}
	branches, err := json.Marshal(sess.Branches)
	if err != nil {
		return fmt.Errorf("storage: marshaling branches: %w", err)
	}
	insights, err := json.Marshal(sess.Insights)
	if err != nil {
		return fmt.Errorf("storage: marshaling insights: %w", err)
	}

	var endTime any
	if sess.EndTime != nil {
		endTime = sess.EndTime.UTC().Format(time.RFC3339Nano)
	}
	var planID, groupID any
	if sess.PlanID != "" {
		planID = sess.PlanID
	}
	if sess.ParallelGroupID != "" {
		groupID = sess.ParallelGroupID
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, plan_id, technique, problem, start_time, last_activity_time, end_time, parallel_group_id, history, branches, insights)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			plan_id=excluded.plan_id, technique=excluded.technique, problem=excluded.problem,
			last_activity_time=excluded.last_activity_time, end_time=excluded.end_time,
			parallel_group_id=excluded.parallel_group_id, history=excluded.history,
			branches=excluded.branches, insights=excluded.insights
	`, sess.SessionID, planID, sess.Technique, sess.Problem,
		sess.StartTime.UTC().Format(time.RFC3339Nano), sess.LastActivityTime.UTC().Format(time.RFC3339Nano),
		endTime, groupID, string(history), string(branches), string(insights))
	if err != nil {
		return fmt.Errorf("storage: upserting session: %w", err)
	}
	return nil
}

// GetSession loads a session by id.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, plan_id, technique, problem, start_time, last_activity_time, end_time,
		       parallel_group_id, history, branches, insights
		FROM sessions WHERE session_id = ?
	`, sessionID)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*domain.Session, error) {
	var (
		sess                                       domain.Session
		planID, groupID, endTime                   sql.NullString
		startTime, lastActivity, history, branches string
		insights                                   string
	)
	if err := row.Scan(&sess.SessionID, &planID, &sess.Technique, &sess.Problem,
		&startTime, &lastActivity, &endTime, &groupID, &history, &branches, &insights); err != nil {
		if err == sql.ErrNoRows {
			return nil, wrapNotFound("session", "")
		}
		return nil, fmt.Errorf("storage: scanning session: %w", err)
	}
	sess.PlanID = planID.String
	sess.ParallelGroupID = groupID.String

	var err error
	if sess.StartTime, err = parseRFC3339(startTime); err != nil {
		return nil, fmt.Errorf("storage: parsing start_time: %w", err)
	}
	if sess.LastActivityTime, err = parseRFC3339(lastActivity); err != nil {
		return nil, fmt.Errorf("storage: parsing last_activity_time: %w", err)
	}
	if endTime.Valid && endTime.String != "" {
		t, err := parseRFC3339(endTime.String)
		if err != nil {
			return nil, fmt.Errorf("storage: parsing end_time: %w", err)
		}
		sess.EndTime = &t
	}
	if err := json.Unmarshal([]byte(history), &sess.History); err != nil {
		return nil, fmt.Errorf("storage: unmarshaling history: %w", err)
	}
	if err := json.Unmarshal([]byte(branches), &sess.Branches); err != nil {
		return nil, fmt.Errorf("storage: unmarshaling branches: %w", err)
	}
	if err := json.Unmarshal([]byte(insights), &sess.Insights); err != nil {
		return nil, fmt.Errorf("storage: unmarshaling insights: %w", err)
	}
	return &sess, nil
}

// ListSessions returns all sessions, optionally filtered by plan id when
// planID is non-empty.
func (s *SQLiteStore) ListSessions(ctx context.Context, planID string) ([]*domain.Session, error) {
	var (
		rows *sql.Rows
		err  error
	)
	query := `SELECT session_id, plan_id, technique, problem, start_time, last_activity_time, end_time,
	       parallel_group_id, history, branches, insights FROM sessions`
	if planID != "" {
		rows, err = s.db.QueryContext(ctx, query+" WHERE plan_id = ? ORDER BY last_activity_time", planID)
	} else {
		rows, err = s.db.QueryContext(ctx, query+" ORDER BY last_activity_time")
	}
	if err != nil {
		return nil, fmt.Errorf("storage: listing sessions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		var (
			sess                                       domain.Session
			planIDVal, groupID, endTime                sql.NullString
			startTime, lastActivity, history, branches string
			insights                                   string
		)
		if err := rows.Scan(&sess.SessionID, &planIDVal, &sess.Technique, &sess.Problem,
			&startTime, &lastActivity, &endTime, &groupID, &history, &branches, &insights); err != nil {
			return nil, fmt.Errorf("storage: scanning session row: %w", err)
		}
		sess.PlanID = planIDVal.String
		sess.ParallelGroupID = groupID.String
		var perr error
		if sess.StartTime, perr = parseRFC3339(startTime); perr != nil {
			return nil, perr
		}
		if sess.LastActivityTime, perr = parseRFC3339(lastActivity); perr != nil {
			return nil, perr
		}
		if endTime.Valid && endTime.String != "" {
			t, perr := parseRFC3339(endTime.String)
			if perr != nil {
				return nil, perr
			}
			sess.EndTime = &t
		}
		if err := json.Unmarshal([]byte(history), &sess.History); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(branches), &sess.Branches); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(insights), &sess.Insights); err != nil {
			return nil, err
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its dependent rows.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: beginning delete tx: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM path_events WHERE session_id = ?",
		"DELETE FROM flexibility_snapshots WHERE session_id = ?",
		"DELETE FROM progress_records WHERE session_id = ?",
		"DELETE FROM completion_metadata WHERE session_id = ?",
		"DELETE FROM sessions WHERE session_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, sessionID); err != nil {
			return fmt.Errorf("storage: deleting session dependents: %w", err)
		}
	}
	return tx.Commit()
}
