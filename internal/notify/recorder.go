package notify

import (
	"context"
	"sync"
)

// Invocation records a single Send call on a RecorderNotifier.
type Invocation struct {
	To      string
	Subject string
	Body    string
}

// RecorderNotifier is a Notifier test double. It records every Send
// call and returns scripted errors in order, then nil once the script
// is exhausted.
type RecorderNotifier struct {
	mu          sync.Mutex
	invocations []Invocation
	script      []error
}

// NewRecorderNotifier creates a RecorderNotifier whose first len(script)
// Send calls return the scripted errors in order.
func NewRecorderNotifier(script ...error) *RecorderNotifier {
	return &RecorderNotifier{script: script}
}

// Send records the invocation and returns the next scripted error.
func (r *RecorderNotifier) Send(ctx context.Context, to, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.invocations = append(r.invocations, Invocation{To: to, Subject: subject, Body: body})

	if len(r.script) > 0 {
		err := r.script[0]
		r.script = r.script[1:]
		return err
	}
	return nil
}

// Invocations returns a copy of all recorded Send calls.
func (r *RecorderNotifier) Invocations() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Invocation, len(r.invocations))
	copy(out, r.invocations)
	return out
}
