package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncAuthSuccess is a no-op.
func (n *NoopRecorder) IncAuthSuccess() {}

// IncAuthFailure is a no-op.
func (n *NoopRecorder) IncAuthFailure(reason string) {}

// IncSignup is a no-op.
func (n *NoopRecorder) IncSignup() {}

// IncLogin is a no-op.
func (n *NoopRecorder) IncLogin(status string) {}

// IncEventPublished is a no-op.
func (n *NoopRecorder) IncEventPublished(status string) {}

// IncRunStarted is a no-op.
func (n *NoopRecorder) IncRunStarted() {}

// IncRunFinished is a no-op.
func (n *NoopRecorder) IncRunFinished(status string) {}

// IncStepExecuted is a no-op.
func (n *NoopRecorder) IncStepExecuted(step, status string) {}

// ObserveNotifyDuration is a no-op.
func (n *NoopRecorder) ObserveNotifyDuration(duration time.Duration) {}

// SetRunQueueDepth is a no-op.
func (n *NoopRecorder) SetRunQueueDepth(depth int64) {}
