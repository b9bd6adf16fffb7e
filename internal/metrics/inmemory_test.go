package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestInMemoryRecorder_Counters(t *testing.T) {
	t.Parallel()

	rec := NewInMemory()

	rec.IncAuthSuccess()
	rec.IncAuthFailure("missing_token")
	rec.IncAuthFailure("missing_token")
	rec.IncAuthFailure("invalid_token")
	rec.IncSignup()
	rec.IncLogin("success")
	rec.IncLogin("not_found")
	rec.IncEventPublished("success")
	rec.IncRunStarted()
	rec.IncRunFinished("succeeded")
	rec.IncStepExecuted("resolve-user", "success")
	rec.ObserveNotifyDuration(200 * time.Millisecond)
	rec.SetRunQueueDepth(7)

	snap := rec.Snapshot()

	if snap.AuthSuccesses != 1 {
		t.Errorf("AuthSuccesses = %d, want 1", snap.AuthSuccesses)
	}
	if snap.AuthFailures["missing_token"] != 2 {
		t.Errorf("AuthFailures[missing_token] = %d, want 2", snap.AuthFailures["missing_token"])
	}
	if snap.AuthFailures["invalid_token"] != 1 {
		t.Errorf("AuthFailures[invalid_token] = %d, want 1", snap.AuthFailures["invalid_token"])
	}
	if snap.Signups != 1 {
		t.Errorf("Signups = %d, want 1", snap.Signups)
	}
	if snap.Logins["success"] != 1 || snap.Logins["not_found"] != 1 {
		t.Errorf("Logins = %v", snap.Logins)
	}
	if snap.RunsFinished["succeeded"] != 1 {
		t.Errorf("RunsFinished = %v", snap.RunsFinished)
	}
	if snap.StepsExecuted["resolve-user:success"] != 1 {
		t.Errorf("StepsExecuted = %v", snap.StepsExecuted)
	}
	if snap.NotifyDurationCount != 1 || snap.NotifyDurationTotal != 200*time.Millisecond {
		t.Errorf("notify duration: count=%d total=%v", snap.NotifyDurationCount, snap.NotifyDurationTotal)
	}
	if snap.RunQueueDepth != 7 {
		t.Errorf("RunQueueDepth = %d, want 7", snap.RunQueueDepth)
	}
}

func TestInMemoryRecorder_SnapshotIsolation(t *testing.T) {
	t.Parallel()

	rec := NewInMemory()
	rec.IncLogin("success")

	snap := rec.Snapshot()
	snap.Logins["success"] = 99

	if rec.Snapshot().Logins["success"] != 1 {
		t.Error("mutating a snapshot should not affect the recorder")
	}
}

func TestInMemoryRecorder_Concurrent(t *testing.T) {
	t.Parallel()

	rec := NewInMemory()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rec.IncSignup()
				rec.IncLogin("success")
			}
		}()
	}
	wg.Wait()

	snap := rec.Snapshot()
	if snap.Signups != 1000 {
		t.Errorf("Signups = %d, want 1000", snap.Signups)
	}
	if snap.Logins["success"] != 1000 {
		t.Errorf("Logins[success] = %d, want 1000", snap.Logins["success"])
	}
}
