package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"lateral/engine/internal/domain"
)

// SaveProgressRecord upserts a session's progress state.
func (s *SQLiteStore) SaveProgressRecord(ctx context.Context, p *domain.ProgressRecord) error {
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO progress_records (session_id, current_step, total_steps, status, timestamp, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			current_step=excluded.current_step, total_steps=excluded.total_steps,
			status=excluded.status, timestamp=excluded.timestamp, metadata=excluded.metadata
	`, p.SessionID, p.CurrentStep, p.TotalSteps, string(p.Status), p.Timestamp.UTC().Format(time.RFC3339Nano), string(metadata))
	if err != nil {
		return fmt.Errorf("storage: saving progress record: %w", err)
	}
	return nil
}

// GetProgressRecord loads a session's progress state.
func (s *SQLiteStore) GetProgressRecord(ctx context.Context, sessionID string) (*domain.ProgressRecord, error) {
	var (
		p                   domain.ProgressRecord
		status, timestamp   string
		metadata            string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, current_step, total_steps, status, timestamp, metadata
		FROM progress_records WHERE session_id = ?
	`, sessionID).Scan(&p.SessionID, &p.CurrentStep, &p.TotalSteps, &status, &timestamp, &metadata)
	if err == sql.ErrNoRows {
		return nil, wrapNotFound("progress record", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: scanning progress record: %w", err)
	}
	p.Status = domain.ProgressStatus(status)
	if p.Timestamp, err = parseRFC3339(timestamp); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metadata), &p.Metadata); err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveCompletionMetadata upserts a session's completion coverage summary.
func (s *SQLiteStore) SaveCompletionMetadata(ctx context.Context, m *domain.CompletionMetadata) error {
	skipped, err := json.Marshal(m.SkippedTechniques)
	if err != nil {
		return err
	}
	missed, err := json.Marshal(m.MissedPerspectives)
	if err != nil {
		return err
	}
	gaps, err := json.Marshal(m.CriticalGapsIdentified)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO completion_metadata (session_id, completed_steps, total_planned_steps, overall_progress,
			skipped_techniques, missed_perspectives, critical_gaps_identified, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			completed_steps=excluded.completed_steps, total_planned_steps=excluded.total_planned_steps,
			overall_progress=excluded.overall_progress, skipped_techniques=excluded.skipped_techniques,
			missed_perspectives=excluded.missed_perspectives, critical_gaps_identified=excluded.critical_gaps_identified,
			updated_at=excluded.updated_at
	`, m.SessionID, m.CompletedSteps, m.TotalPlannedSteps, m.OverallProgress,
		string(skipped), string(missed), string(gaps), nowRFC3339())
	if err != nil {
		return fmt.Errorf("storage: saving completion metadata: %w", err)
	}
	return nil
}

// GetCompletionMetadata loads a session's completion coverage summary.
func (s *SQLiteStore) GetCompletionMetadata(ctx context.Context, sessionID string) (*domain.CompletionMetadata, error) {
	var (
		m                                     domain.CompletionMetadata
		skipped, missed, gaps                 string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, completed_steps, total_planned_steps, overall_progress,
		       skipped_techniques, missed_perspectives, critical_gaps_identified
		FROM completion_metadata WHERE session_id = ?
	`, sessionID).Scan(&m.SessionID, &m.CompletedSteps, &m.TotalPlannedSteps, &m.OverallProgress, &skipped, &missed, &gaps)
	if err == sql.ErrNoRows {
		return nil, wrapNotFound("completion metadata", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: scanning completion metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(skipped), &m.SkippedTechniques); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(missed), &m.MissedPerspectives); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(gaps), &m.CriticalGapsIdentified); err != nil {
		return nil, err
	}
	return &m, nil
}
