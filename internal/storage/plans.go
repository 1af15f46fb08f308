package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"lateral/engine/internal/domain"
)

// SavePlan persists a plan. Plans are immutable once written; calling
// SavePlan again with the same id overwrites it (used only for test setup).
func (s *SQLiteStore) SavePlan(ctx context.Context, p *domain.Plan) error {
	techniques, err := json.Marshal(p.Techniques)
	if err != nil {
		return fmt.Errorf("storage: marshaling techniques: %w", err)
	}
	workflow, err := json.Marshal(p.Workflow)
	if err != nil {
		return fmt.Errorf("storage: marshaling workflow: %w", err)
	}
	var parallelPlans []byte
	if len(p.ParallelPlans) > 0 {
		parallelPlans, err = json.Marshal(p.ParallelPlans)
		if err != nil {
			return fmt.Errorf("storage: marshaling parallel plans: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (plan_id, problem, mode, techniques, workflow, parallel_plans, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plan_id) DO UPDATE SET
			problem=excluded.problem, mode=excluded.mode, techniques=excluded.techniques,
			workflow=excluded.workflow, parallel_plans=excluded.parallel_plans
	`, p.PlanID, p.Problem, string(p.Mode), string(techniques), string(workflow), nullableString(parallelPlans), p.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("storage: inserting plan: %w", err)
	}
	return nil
}

// GetPlan loads a plan by id. Returns an error wrapping ErrNotFound if absent.
func (s *SQLiteStore) GetPlan(ctx context.Context, planID string) (*domain.Plan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT plan_id, problem, mode, techniques, workflow, parallel_plans, created_at
		FROM plans WHERE plan_id = ?
	`, planID)

	var (
		p                                 domain.Plan
		mode, techniques, workflow, createdAt string
		parallelPlans                     sql.NullString
	)
	if err := row.Scan(&p.PlanID, &p.Problem, &mode, &techniques, &workflow, &parallelPlans, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, wrapNotFound("plan", planID)
		}
		return nil, fmt.Errorf("storage: scanning plan: %w", err)
	}
	p.Mode = domain.ExecutionMode(mode)

	if err := json.Unmarshal([]byte(techniques), &p.Techniques); err != nil {
		return nil, fmt.Errorf("storage: unmarshaling techniques: %w", err)
	}
	if err := json.Unmarshal([]byte(workflow), &p.Workflow); err != nil {
		return nil, fmt.Errorf("storage: unmarshaling workflow: %w", err)
	}
	if parallelPlans.Valid && parallelPlans.String != "" {
		if err := json.Unmarshal([]byte(parallelPlans.String), &p.ParallelPlans); err != nil {
			return nil, fmt.Errorf("storage: unmarshaling parallel plans: %w", err)
		}
	}
	t, err := parseRFC3339(createdAt)
	if err != nil {
		return nil, fmt.Errorf("storage: parsing plan created_at: %w", err)
	}
	p.CreatedAt = t

	return &p, nil
}

// DeletePlan removes a plan record. It does not cascade to sessions.
func (s *SQLiteStore) DeletePlan(ctx context.Context, planID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM plans WHERE plan_id = ?", planID)
	if err != nil {
		return fmt.Errorf("storage: deleting plan: %w", err)
	}
	return nil
}

func nullableString(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
