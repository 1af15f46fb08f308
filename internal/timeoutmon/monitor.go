// Package timeoutmon implements the SessionTimeoutMonitor (component 12):
// per-session execution, progress-stale, and dependency-wait timers,
// grounded on the teacher's time.AfterFunc/time.Ticker usage in its hub
// and rate-limiter packages (session-hub/internal/hub, backpressure).
package timeoutmon

import (
	"sync"
	"time"
)

// EventKind names a timer-driven event (spec §4.10).
type EventKind string

const (
	EventTimeoutWarning    EventKind = "timeout-warning"
	EventTimeout           EventKind = "timeout"
	EventProgressStale     EventKind = "progress-stale"
	EventDependencyTimeout EventKind = "dependency-timeout"
)

// Event is delivered to the monitor's sink.
type Event struct {
	Kind      EventKind
	SessionID string
	At        time.Time
}

// Sink receives timer events. Implementations must not block.
type Sink func(Event)

type sessionTimers struct {
	mu             sync.Mutex
	start          time.Time
	originalLimit  time.Duration
	extended       time.Duration
	warningTimer   *time.Timer
	timeoutTimer   *time.Timer
	staleTicker    *time.Ticker
	staleStop      chan struct{}
	dependencyTimer *time.Timer
	expired        bool
}

// Monitor owns timers for every actively-monitored session.
type Monitor struct {
	mu       sync.Mutex
	sessions map[string]*sessionTimers
	sink     Sink
	now      func() time.Time

	warnFraction    float64
	staleInterval   time.Duration
	dependencyWait  time.Duration
}

// Options configures a Monitor's timing parameters.
type Options struct {
	// WarnFraction is the execution-timeout fraction at which
	// timeout-warning fires (spec: 80%).
	WarnFraction   float64
	StaleInterval  time.Duration
	DependencyWait time.Duration
}

// New constructs a Monitor. sink receives every fired event.
func New(opts Options, sink Sink) *Monitor {
	if opts.WarnFraction <= 0 {
		opts.WarnFraction = 0.8
	}
	if opts.StaleInterval <= 0 {
		opts.StaleInterval = 30 * time.Second
	}
	if opts.DependencyWait <= 0 {
		opts.DependencyWait = 5 * time.Minute
	}
	return &Monitor{
		sessions:       make(map[string]*sessionTimers),
		sink:           sink,
		now:            time.Now,
		warnFraction:   opts.WarnFraction,
		staleInterval:  opts.StaleInterval,
		dependencyWait: opts.DependencyWait,
	}
}

// StartExecution arms a session's execution-timeout and progress-stale
// timers. executionLimit is the quick/thorough/comprehensive preset.
func (m *Monitor) StartExecution(sessionID string, executionLimit time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked(sessionID)

	st := &sessionTimers{
		start:         m.now(),
		originalLimit: executionLimit,
		extended:      executionLimit,
		staleStop:     make(chan struct{}),
	}
	m.sessions[sessionID] = st

	warnAt := time.Duration(float64(executionLimit) * m.warnFraction)
	st.warningTimer = time.AfterFunc(warnAt, func() { m.emit(sessionID, EventTimeoutWarning) })
	st.timeoutTimer = time.AfterFunc(executionLimit, func() { m.fireTimeout(sessionID) })
	st.staleTicker = time.NewTicker(m.staleInterval)
	stopCh := st.staleStop
	ticker := st.staleTicker
	go func() {
		for {
			select {
			case <-ticker.C:
				m.emit(sessionID, EventProgressStale)
			case <-stopCh:
				return
			}
		}
	}()
}

// StartDependencyWait arms a dependency-wait timer for a session that has
// transitioned to waiting. Calling this again for the same session
// replaces any previous dependency timer.
func (m *Monitor) StartDependencyWait(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	st.mu.Lock()
	if st.dependencyTimer != nil {
		st.dependencyTimer.Stop()
	}
	st.dependencyTimer = time.AfterFunc(m.dependencyWait, func() { m.emit(sessionID, EventDependencyTimeout) })
	st.mu.Unlock()
}

// StopDependencyWait cancels a session's dependency-wait timer, e.g. once
// the awaited dependency arrives.
func (m *Monitor) StopDependencyWait(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	st.mu.Lock()
	if st.dependencyTimer != nil {
		st.dependencyTimer.Stop()
		st.dependencyTimer = nil
	}
	st.mu.Unlock()
}

// ExtendTimeout rebinds sessionID's execution timer to originalLimit+delta.
// Idempotent: a repeated call with the same delta simply re-arms from now
// using the same cumulative limit. No-op on an unknown or already-expired
// session (spec §4.10).
func (m *Monitor) ExtendTimeout(sessionID string, delta time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.expired {
		return
	}
	st.extended = st.originalLimit + delta
	remaining := st.extended - m.now().Sub(st.start)
	if remaining < 0 {
		remaining = 0
	}
	if st.timeoutTimer != nil {
		st.timeoutTimer.Stop()
	}
	st.timeoutTimer = time.AfterFunc(remaining, func() { m.fireTimeout(sessionID) })

	warnRemaining := time.Duration(float64(st.extended)*m.warnFraction) - m.now().Sub(st.start)
	if warnRemaining < 0 {
		warnRemaining = 0
	}
	if st.warningTimer != nil {
		st.warningTimer.Stop()
	}
	st.warningTimer = time.AfterFunc(warnRemaining, func() { m.emit(sessionID, EventTimeoutWarning) })
}

// StopMonitoring clears all timers for sessionID.
func (m *Monitor) StopMonitoring(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked(sessionID)
}

// StopAll clears every timer the monitor owns, deterministically (spec:
// "stopMonitoring() clears all timers deterministically").
func (m *Monitor) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sessionID := range m.sessions {
		m.stopLocked(sessionID)
	}
}

func (m *Monitor) stopLocked(sessionID string) {
	st, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	st.mu.Lock()
	if st.warningTimer != nil {
		st.warningTimer.Stop()
	}
	if st.timeoutTimer != nil {
		st.timeoutTimer.Stop()
	}
	if st.dependencyTimer != nil {
		st.dependencyTimer.Stop()
	}
	if st.staleTicker != nil {
		st.staleTicker.Stop()
		close(st.staleStop)
	}
	st.mu.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Monitor) fireTimeout(sessionID string) {
	m.mu.Lock()
	st, ok := m.sessions[sessionID]
	if ok {
		st.mu.Lock()
		st.expired = true
		st.mu.Unlock()
	}
	m.mu.Unlock()
	m.emit(sessionID, EventTimeout)
}

func (m *Monitor) emit(sessionID string, kind EventKind) {
	if m.sink == nil {
		return
	}
	m.sink(Event{Kind: kind, SessionID: sessionID, At: m.now()})
}
