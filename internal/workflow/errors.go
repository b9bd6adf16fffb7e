package workflow

import (
	"errors"
	"fmt"
)

// ErrRunNotFound indicates the workflow run does not exist.
var ErrRunNotFound = errors.New("workflow run not found")

// TerminalError stops a run immediately: no further steps execute and
// the run is never retried. Any other step error is treated as
// retriable up to the run's attempt budget.
type TerminalError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *TerminalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("terminal: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("terminal: %s", e.Reason)
}

// Unwrap returns the underlying error.
func (e *TerminalError) Unwrap() error {
	return e.Err
}

// Terminal wraps err as a terminal failure.
func Terminal(reason string, err error) *TerminalError {
	return &TerminalError{Reason: reason, Err: err}
}

// IsTerminal reports whether err is a terminal failure.
func IsTerminal(err error) bool {
	var te *TerminalError
	return errors.As(err, &te)
}
