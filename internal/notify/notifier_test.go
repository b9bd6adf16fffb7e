package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsPermanent(t *testing.T) {
	t.Parallel()

	base := errors.New("550 mailbox unavailable")
	perm := NewPermanentError("recipient rejected", base)

	if !IsPermanent(perm) {
		t.Error("PermanentError should be permanent")
	}
	if !IsPermanent(fmt.Errorf("send: %w", perm)) {
		t.Error("wrapped PermanentError should stay permanent")
	}
	if IsPermanent(errors.New("connection refused")) {
		t.Error("plain error should not be permanent")
	}
	if IsPermanent(nil) {
		t.Error("nil should not be permanent")
	}
}

func TestPermanentError_Unwrap(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	perm := NewPermanentError("delivery rejected", base)

	if !errors.Is(perm, base) {
		t.Error("PermanentError should unwrap to its cause")
	}
	if perm.Error() == "" {
		t.Error("Error() should describe the failure")
	}
}

func TestRecorderNotifier_Script(t *testing.T) {
	t.Parallel()

	first := errors.New("transient")
	rec := NewRecorderNotifier(first)

	if err := rec.Send(context.Background(), "a@x.com", "s1", "b1"); !errors.Is(err, first) {
		t.Errorf("first Send error = %v, want scripted error", err)
	}
	if err := rec.Send(context.Background(), "a@x.com", "s2", "b2"); err != nil {
		t.Errorf("Send after script exhausted = %v, want nil", err)
	}

	invocations := rec.Invocations()
	if len(invocations) != 2 {
		t.Fatalf("recorded %d invocations, want 2", len(invocations))
	}
	if invocations[0].Subject != "s1" || invocations[1].Subject != "s2" {
		t.Errorf("invocations out of order: %+v", invocations)
	}
}
