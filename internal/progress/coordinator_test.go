package progress

import (
	"testing"

	"lateral/engine/internal/domain"
)

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	c := New()
	c.Track("s1", 5, "")
	c.Transition("s1", domain.StatusCompleted, 5, nil) // pending -> completed is illegal
	rec, _ := c.Get("s1")
	if rec.Status != domain.StatusPending {
		t.Fatalf("expected status to remain pending, got %s", rec.Status)
	}
}

func TestTransitionCompletedIsTerminal(t *testing.T) {
	c := New()
	c.Track("s1", 5, "")
	c.Transition("s1", domain.StatusInProgress, 1, nil)
	c.Transition("s1", domain.StatusCompleted, 5, nil)
	c.Transition("s1", domain.StatusInProgress, 1, nil) // must be rejected
	rec, _ := c.Get("s1")
	if rec.Status != domain.StatusCompleted {
		t.Fatalf("expected completed to remain terminal, got %s", rec.Status)
	}
}

func TestTransitionWaitingInProgressReentrant(t *testing.T) {
	c := New()
	c.Track("s1", 5, "")
	c.Transition("s1", domain.StatusInProgress, 1, nil)
	c.Transition("s1", domain.StatusWaiting, 1, []string{"s2"})
	c.Transition("s1", domain.StatusInProgress, 2, nil)
	rec, _ := c.Get("s1")
	if rec.Status != domain.StatusInProgress || rec.CurrentStep != 2 {
		t.Fatalf("expected in_progress at step 2, got %+v", rec)
	}
}

func TestGroupDeadlockDetection(t *testing.T) {
	c := New()
	c.Track("a", 3, "g1")
	c.Track("b", 3, "g1")

	var deadlocks int
	unsub := c.Subscribe("g1", func(ev Event) {
		if ev.Kind == EventDeadlock {
			deadlocks++
		}
	})
	defer unsub()

	c.Transition("a", domain.StatusInProgress, 1, nil)
	c.Transition("a", domain.StatusWaiting, 1, []string{"b"})
	// b stays pending: all members are {pending, waiting} with >=1 waiting.
	if deadlocks == 0 {
		t.Fatal("expected deadlock event when all members are pending/waiting with one waiting")
	}
}

func TestGroupAggregateCounts(t *testing.T) {
	c := New()
	c.Track("a", 4, "g1")
	c.Track("b", 4, "g1")
	c.Transition("a", domain.StatusInProgress, 2, nil)
	c.Transition("a", domain.StatusCompleted, 4, nil)
	c.Transition("b", domain.StatusInProgress, 1, nil)

	agg := c.GroupAggregate("g1")
	if agg.Total != 2 || agg.Completed != 1 || agg.InProgress != 1 {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}
}

func TestClearGroupProgressRemovesListeners(t *testing.T) {
	c := New()
	c.Track("a", 1, "g1")
	unsub := c.Subscribe("g1", func(Event) {})
	_ = unsub
	if c.ListenerCount("g1") != 1 {
		t.Fatalf("expected 1 listener before clear")
	}
	c.ClearGroupProgress("g1")
	if c.ListenerCount("g1") != 0 {
		t.Fatalf("expected 0 listeners after clearGroupProgress, got %d", c.ListenerCount("g1"))
	}
}
