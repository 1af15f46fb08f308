package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"lateral/engine/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	store, err := NewSQLiteStore(context.Background(), filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewSQLiteStoreMigrates(t *testing.T) {
	store := newTestStore(t)

	var count int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("querying schema_migrations: %v", err)
	}
	if count == 0 {
		t.Fatal("expected at least one migration recorded")
	}
}

func TestSaveAndGetPlan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	plan := &domain.Plan{
		PlanID:     "plan-1",
		Problem:    "Foster innovation in risk-averse team",
		Techniques: []string{"six_hats"},
		Mode:       domain.ModeSequential,
		Workflow: []domain.WorkflowStep{
			{Technique: "six_hats", LocalStep: 1, CumulativeStep: 1, Description: "Facts"},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	if err := store.SavePlan(ctx, plan); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}

	got, err := store.GetPlan(ctx, "plan-1")
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if got.Problem != plan.Problem {
		t.Errorf("problem = %q, want %q", got.Problem, plan.Problem)
	}
	if len(got.Workflow) != 1 || got.Workflow[0].Technique != "six_hats" {
		t.Errorf("workflow not round-tripped: %+v", got.Workflow)
	}
}

func TestGetPlanNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetPlan(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown plan id")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	sess := &domain.Session{
		SessionID:        "sess-1",
		Technique:        "six_hats",
		Problem:          "test problem",
		StartTime:        now,
		LastActivityTime: now,
		History:          []domain.HistoryEntry{{Step: 1, Timestamp: now, Output: "white hat facts"}},
		Branches:         map[string][]domain.HistoryEntry{},
		Insights:         []string{"insight one"},
	}

	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	got, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Problem != sess.Problem {
		t.Errorf("problem = %q, want %q", got.Problem, sess.Problem)
	}
	if len(got.History) != 1 || got.History[0].Output != "white hat facts" {
		t.Errorf("history not round-tripped: %+v", got.History)
	}
	if len(got.Insights) != 1 || got.Insights[0] != "insight one" {
		t.Errorf("insights not round-tripped: %+v", got.Insights)
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	sess := &domain.Session{SessionID: "sess-del", Technique: "six_hats", Problem: "p", StartTime: now, LastActivityTime: now}
	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := store.AppendPathEvent(ctx, "sess-del", 0, &domain.PathEvent{ID: "e1", Timestamp: now, Technique: "six_hats", Step: 1, Decision: "d"}); err != nil {
		t.Fatalf("AppendPathEvent: %v", err)
	}

	if err := store.DeleteSession(ctx, "sess-del"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	if _, err := store.GetSession(ctx, "sess-del"); err == nil {
		t.Fatal("expected session to be gone")
	}
	events, err := store.ListPathEvents(ctx, "sess-del")
	if err != nil {
		t.Fatalf("ListPathEvents: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected path events to be deleted, got %d", len(events))
	}
}

func TestPathEventAppendOrderAndSeq(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	sess := &domain.Session{SessionID: "sess-path", Technique: "six_hats", Problem: "p", StartTime: now, LastActivityTime: now}
	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	for i := 0; i < 3; i++ {
		seq, err := store.NextPathEventSeq(ctx, "sess-path")
		if err != nil {
			t.Fatalf("NextPathEventSeq: %v", err)
		}
		if seq != i {
			t.Fatalf("seq = %d, want %d", seq, i)
		}
		err = store.AppendPathEvent(ctx, "sess-path", seq, &domain.PathEvent{
			ID: "e" + string(rune('0'+i)), Timestamp: now.Add(time.Duration(i) * time.Second),
			Technique: "six_hats", Step: i + 1, Decision: "d", ReversibilityCost: 0.1, CommitmentLevel: 0.2,
		})
		if err != nil {
			t.Fatalf("AppendPathEvent: %v", err)
		}
	}

	events, err := store.ListPathEvents(ctx, "sess-path")
	if err != nil {
		t.Fatalf("ListPathEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, e := range events {
		if e.Step != i+1 {
			t.Errorf("event[%d].Step = %d, want %d", i, e.Step, i+1)
		}
	}
}

func TestProgressRecordRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	sess := &domain.Session{SessionID: "sess-prog", Technique: "six_hats", Problem: "p", StartTime: now, LastActivityTime: now}
	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	pr := &domain.ProgressRecord{SessionID: "sess-prog", CurrentStep: 2, TotalSteps: 6, Status: domain.StatusInProgress, Timestamp: now}
	if err := store.SaveProgressRecord(ctx, pr); err != nil {
		t.Fatalf("SaveProgressRecord: %v", err)
	}

	got, err := store.GetProgressRecord(ctx, "sess-prog")
	if err != nil {
		t.Fatalf("GetProgressRecord: %v", err)
	}
	if got.Status != domain.StatusInProgress || got.CurrentStep != 2 {
		t.Errorf("unexpected progress record: %+v", got)
	}
}
