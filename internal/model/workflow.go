// Package model defines domain entities for the application.
package model

import "time"

// EventKindUserOnboarded is the event published after a successful signup.
const EventKindUserOnboarded = "user-onboarded"

// OnboardingEvent is the payload published to the event stream when a
// new user is created. Emitted only after the user row is durably stored.
type OnboardingEvent struct {
	Kind  string `json:"kind"`
	Email string `json:"email"`
}

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

// Workflow run statuses.
const (
	// RunStatusPending means the run is waiting for its first or next attempt.
	RunStatusPending RunStatus = "pending"
	// RunStatusRunning means a worker is currently executing the run.
	RunStatusRunning RunStatus = "running"
	// RunStatusSucceeded means every step completed.
	RunStatusSucceeded RunStatus = "succeeded"
	// RunStatusFailed means a step raised a terminal failure; never retried.
	RunStatusFailed RunStatus = "failed"
	// RunStatusExhausted means the attempt budget ran out on retriable
	// failures. Reported terminal, distinct from a step-level terminal.
	RunStatusExhausted RunStatus = "exhausted"
)

// IsTerminal returns true if the status is a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusExhausted
}

// WorkflowRun is one execution instance of the onboarding pipeline,
// keyed by the stream event that triggered it.
type WorkflowRun struct {
	ID             string    `json:"id"`
	EventID        string    `json:"event_id"`
	Email          string    `json:"email"`
	Status         RunStatus `json:"status"`
	AttemptCount   int       `json:"attempt_count"`
	MaxAttempts    int       `json:"max_attempts"`
	NextAttemptAt  time.Time `json:"next_attempt_at"`
	SucceededSteps []string  `json:"succeeded_steps"`
	StepResults    []byte    `json:"-"` // JSON object keyed by step name
	LastError      *string   `json:"last_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasSucceededStep reports whether the named step already has a
// durably recorded success for this run.
func (r *WorkflowRun) HasSucceededStep(name string) bool {
	for _, s := range r.SucceededSteps {
		if s == name {
			return true
		}
	}
	return false
}
