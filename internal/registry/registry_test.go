package registry

import (
	"context"
	"testing"
	"time"

	"lateral/engine/internal/domain"
	engerrors "lateral/engine/internal/errors"
)

func TestValidSessionID(t *testing.T) {
	cases := map[string]bool{
		"abc123":        true,
		"a.b-c_d":       true,
		"":               false,
		"has space":      false,
		"has/slash":      false,
	}
	for id, want := range cases {
		if got := ValidSessionID(id); got != want {
			t.Errorf("ValidSessionID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestCreateSessionRejectsBadID(t *testing.T) {
	r := New(Limits{}, nil)
	err := r.CreateSession(context.Background(), &domain.Session{SessionID: "bad id!"})
	if engerrors.GetCode(err) != engerrors.CodeValidationFailed {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateSessionEvictsOldestIdle(t *testing.T) {
	now := time.Now().UTC()
	r := New(Limits{MaxTrackedSessions: 2}, nil).WithClock(func() time.Time { return now })

	mustCreate := func(id string, lastActivity time.Time) {
		t.Helper()
		if err := r.CreateSession(context.Background(), &domain.Session{
			SessionID: id, StartTime: lastActivity, LastActivityTime: lastActivity,
		}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	mustCreate("s1", now.Add(-time.Hour))
	mustCreate("s2", now.Add(-time.Minute))
	mustCreate("s3", now) // should evict s1 (oldest)

	if _, err := r.GetSession(context.Background(), "s1"); err == nil {
		t.Fatal("expected s1 to be evicted")
	}
	if _, err := r.GetSession(context.Background(), "s3"); err != nil {
		t.Fatalf("expected s3 present: %v", err)
	}
}

func TestCreateSessionFailsWhenNoneEvictable(t *testing.T) {
	now := time.Now().UTC()
	r := New(Limits{MaxTrackedSessions: 1}, nil).WithClock(func() time.Time { return now })
	if err := r.CreateSession(context.Background(), &domain.Session{
		SessionID: "s1", StartTime: now, LastActivityTime: now, ParallelGroupID: "g1",
	}); err != nil {
		t.Fatalf("create s1: %v", err)
	}
	err := r.CreateSession(context.Background(), &domain.Session{SessionID: "s2", StartTime: now, LastActivityTime: now})
	if engerrors.GetCode(err) != engerrors.CodeMaxSessionsExceeded {
		t.Fatalf("expected MAX_SESSIONS_EXCEEDED, got %v", err)
	}
}

func TestGetPlanNotFound(t *testing.T) {
	r := New(Limits{}, nil)
	_, err := r.GetPlan(context.Background(), "nope")
	if engerrors.GetCode(err) != engerrors.CodeWorkflowPlanNotFound {
		t.Fatalf("expected PLAN_NOT_FOUND, got %v", err)
	}
}

func TestParallelGroupCapsMembership(t *testing.T) {
	r := New(Limits{MaxParallelSessions: 2}, nil)
	ctx := context.Background()

	g := &domain.ParallelGroup{GroupID: "g1", SessionIDs: []string{"s1"}}
	if err := r.CreateParallelGroup(ctx, g); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := r.AddParallelGroupMember(ctx, "g1", "s2"); err != nil {
		t.Fatalf("add second member: %v", err)
	}
	if _, err := r.AddParallelGroupMember(ctx, "g1", "s3"); engerrors.GetCode(err) != engerrors.CodeMaxSessionsExceeded {
		t.Fatalf("expected MAX_SESSIONS_EXCEEDED for third member, got %v", err)
	}
}

func TestAddParallelGroupMemberUnknownGroup(t *testing.T) {
	r := New(Limits{}, nil)
	if _, err := r.AddParallelGroupMember(context.Background(), "missing", "s1"); engerrors.GetCode(err) != engerrors.CodeWorkflowGroupNotFound {
		t.Fatalf("expected GROUP_NOT_FOUND, got %v", err)
	}
}

func TestEvictExpiredSkipsGroupMembers(t *testing.T) {
	now := time.Now().UTC()
	r := New(Limits{IdleExpiry: time.Minute}, nil).WithClock(func() time.Time { return now })
	old := now.Add(-time.Hour)
	_ = r.CreateSession(context.Background(), &domain.Session{SessionID: "idle", StartTime: old, LastActivityTime: old})
	_ = r.CreateSession(context.Background(), &domain.Session{SessionID: "grouped", StartTime: old, LastActivityTime: old, ParallelGroupID: "g1"})

	evicted := r.EvictExpired(context.Background())
	if len(evicted) != 1 || evicted[0] != "idle" {
		t.Fatalf("expected only idle session evicted, got %v", evicted)
	}
	if _, err := r.GetSession(context.Background(), "grouped"); err != nil {
		t.Fatalf("expected grouped session to survive eviction: %v", err)
	}
}
