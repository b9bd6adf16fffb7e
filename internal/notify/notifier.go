// Package notify delivers outbound messages to users.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// Notifier delivers a message to a destination address. An error return
// is either a *PermanentError (retrying cannot help: malformed address,
// rejected recipient) or transient (transport unavailable, timeout),
// which callers may retry.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// PermanentError marks a delivery failure that no retry can fix.
type PermanentError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *PermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("permanent delivery failure: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("permanent delivery failure: %s", e.Reason)
}

// Unwrap returns the underlying error.
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError wraps err as a permanent delivery failure.
func NewPermanentError(reason string, err error) *PermanentError {
	return &PermanentError{Reason: reason, Err: err}
}

// IsPermanent reports whether err is a permanent delivery failure.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
