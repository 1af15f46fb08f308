package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"lateral/engine/internal/domain"
)

// SaveParallelGroup upserts a parallel group's state.
func (s *SQLiteStore) SaveParallelGroup(ctx context.Context, g *domain.ParallelGroup) error {
	sessionIDs, err := json.Marshal(g.SessionIDs)
	if err != nil {
		return err
	}
	planIDs, err := json.Marshal(g.PlanIDs)
	if err != nil {
		return err
	}
	sharedContext, err := json.Marshal(g.SharedContext)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO parallel_groups (group_id, session_ids, plan_ids, sync_strategy, shared_context, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET
			session_ids=excluded.session_ids, plan_ids=excluded.plan_ids, shared_context=excluded.shared_context,
			status=excluded.status, updated_at=excluded.updated_at
	`, g.GroupID, string(sessionIDs), string(planIDs), string(g.SyncStrategy), string(sharedContext),
		string(g.Status), g.CreatedAt.UTC().Format(time.RFC3339Nano), g.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("storage: upserting parallel group: %w", err)
	}
	return nil
}

// GetParallelGroup loads a parallel group by id.
func (s *SQLiteStore) GetParallelGroup(ctx context.Context, groupID string) (*domain.ParallelGroup, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT group_id, session_ids, plan_ids, sync_strategy, shared_context, status, created_at, updated_at
		FROM parallel_groups WHERE group_id = ?
	`, groupID)

	var (
		g                                                domain.ParallelGroup
		sessionIDs, planIDs, sharedContext               string
		syncStrategy, status, createdAt, updatedAt        string
	)
	if err := row.Scan(&g.GroupID, &sessionIDs, &planIDs, &syncStrategy, &sharedContext, &status, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, wrapNotFound("parallel group", groupID)
		}
		return nil, fmt.Errorf("storage: scanning parallel group: %w", err)
	}
	g.SyncStrategy = domain.SyncStrategy(syncStrategy)
	g.Status = domain.GroupStatus(status)

	if err := json.Unmarshal([]byte(sessionIDs), &g.SessionIDs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(planIDs), &g.PlanIDs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sharedContext), &g.SharedContext); err != nil {
		return nil, err
	}
	var err error
	if g.CreatedAt, err = parseRFC3339(createdAt); err != nil {
		return nil, err
	}
	if g.UpdatedAt, err = parseRFC3339(updatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

// DeleteParallelGroup removes a parallel group record.
func (s *SQLiteStore) DeleteParallelGroup(ctx context.Context, groupID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM parallel_groups WHERE group_id = ?", groupID)
	return err
}
