// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Auth metrics
	IncAuthSuccess()
	IncAuthFailure(reason string) // reason: "missing_token", "invalid_token", "forbidden"
	IncSignup()
	IncLogin(status string) // status: "success", "not_found", "mismatch"

	// Onboarding workflow metrics
	IncEventPublished(status string) // status: "success" or "dropped"
	IncRunStarted()
	IncRunFinished(status string) // status: "succeeded", "failed", "exhausted"
	IncStepExecuted(step, status string)
	ObserveNotifyDuration(duration time.Duration)
	SetRunQueueDepth(depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
