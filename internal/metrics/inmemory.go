package metrics

import (
	"sync"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	AuthSuccesses       uint64
	AuthFailures        map[string]uint64
	Signups             uint64
	Logins              map[string]uint64
	EventsPublished     map[string]uint64
	RunsStarted         uint64
	RunsFinished        map[string]uint64
	StepsExecuted       map[string]uint64
	NotifyDurationCount uint64
	NotifyDurationTotal time.Duration
	RunQueueDepth       int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu                  sync.Mutex
	authSuccesses       uint64
	authFailures        map[string]uint64
	signups             uint64
	logins              map[string]uint64
	eventsPublished     map[string]uint64
	runsStarted         uint64
	runsFinished        map[string]uint64
	stepsExecuted       map[string]uint64
	notifyDurationCount uint64
	notifyDurationTotal time.Duration
	runQueueDepth       int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		authFailures:    make(map[string]uint64),
		logins:          make(map[string]uint64),
		eventsPublished: make(map[string]uint64),
		runsFinished:    make(map[string]uint64),
		stepsExecuted:   make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		AuthSuccesses:       m.authSuccesses,
		AuthFailures:        copyMap(m.authFailures),
		Signups:             m.signups,
		Logins:              copyMap(m.logins),
		EventsPublished:     copyMap(m.eventsPublished),
		RunsStarted:         m.runsStarted,
		RunsFinished:        copyMap(m.runsFinished),
		StepsExecuted:       copyMap(m.stepsExecuted),
		NotifyDurationCount: m.notifyDurationCount,
		NotifyDurationTotal: m.notifyDurationTotal,
		RunQueueDepth:       m.runQueueDepth,
	}
}

// IncAuthSuccess increments the auth success counter.
func (m *InMemoryRecorder) IncAuthSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authSuccesses++
}

// IncAuthFailure increments the auth failure counter for a reason.
func (m *InMemoryRecorder) IncAuthFailure(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authFailures[reason]++
}

// IncSignup increments the signup counter.
func (m *InMemoryRecorder) IncSignup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signups++
}

// IncLogin increments the login counter for a status.
func (m *InMemoryRecorder) IncLogin(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins[status]++
}

// IncEventPublished increments the published event counter.
func (m *InMemoryRecorder) IncEventPublished(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventsPublished[status]++
}

// IncRunStarted increments the run started counter.
func (m *InMemoryRecorder) IncRunStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runsStarted++
}

// IncRunFinished increments the run finished counter for a status.
func (m *InMemoryRecorder) IncRunFinished(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runsFinished[status]++
}

// IncStepExecuted increments the step execution counter.
func (m *InMemoryRecorder) IncStepExecuted(step, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stepsExecuted[step+":"+status]++
}

// ObserveNotifyDuration records a notifier invocation duration.
func (m *InMemoryRecorder) ObserveNotifyDuration(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifyDurationCount++
	m.notifyDurationTotal += duration
}

// SetRunQueueDepth sets the run queue depth gauge.
func (m *InMemoryRecorder) SetRunQueueDepth(depth int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runQueueDepth = depth
}

func copyMap(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
