package timeoutmon

import (
	"sync"
	"testing"
	"time"
)

func TestStartExecutionFiresWarningThenTimeout(t *testing.T) {
	var mu sync.Mutex
	var events []EventKind
	m := New(Options{WarnFraction: 0.5, StaleInterval: time.Hour, DependencyWait: time.Hour}, func(e Event) {
		mu.Lock()
		events = append(events, e.Kind)
		mu.Unlock()
	})
	defer m.StopAll()

	m.StartExecution("s1", 40*time.Millisecond)
	time.Sleep(120 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(events) < 2 || events[0] != EventTimeoutWarning || events[1] != EventTimeout {
		t.Fatalf("expected [timeout-warning, timeout], got %v", events)
	}
}

func TestExtendTimeoutDelaysExpiry(t *testing.T) {
	var mu sync.Mutex
	fired := false
	m := New(Options{StaleInterval: time.Hour, DependencyWait: time.Hour}, func(e Event) {
		if e.Kind == EventTimeout {
			mu.Lock()
			fired = true
			mu.Unlock()
		}
	})
	defer m.StopAll()

	m.StartExecution("s1", 30*time.Millisecond)
	m.ExtendTimeout("s1", 100*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired {
		t.Fatal("expected extended session to not have timed out yet")
	}
}

func TestExtendTimeoutNoOpOnUnknownSession(t *testing.T) {
	m := New(Options{}, func(Event) {})
	m.ExtendTimeout("never-started", time.Second) // must not panic
}

func TestStopMonitoringCancelsTimers(t *testing.T) {
	var mu sync.Mutex
	fired := false
	m := New(Options{StaleInterval: time.Hour, DependencyWait: time.Hour}, func(e Event) {
		if e.Kind == EventTimeout {
			mu.Lock()
			fired = true
			mu.Unlock()
		}
	})
	m.StartExecution("s1", 20*time.Millisecond)
	m.StopMonitoring("s1")
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired {
		t.Fatal("expected stopMonitoring to prevent the timeout from firing")
	}
}

func TestDependencyTimeoutFires(t *testing.T) {
	var mu sync.Mutex
	var kinds []EventKind
	m := New(Options{StaleInterval: time.Hour, DependencyWait: 20 * time.Millisecond}, func(e Event) {
		mu.Lock()
		kinds = append(kinds, e.Kind)
		mu.Unlock()
	})
	defer m.StopAll()

	m.StartExecution("s1", time.Hour)
	m.StartDependencyWait("s1")
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	found := false
	for _, k := range kinds {
		if k == EventDependencyTimeout {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected dependency-timeout event, got %v", kinds)
	}
}
