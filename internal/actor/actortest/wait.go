package actortest

import (
	"testing"
	"time"
)

// Eventually polls cond until it returns true or the deadline passes. Actors
// apply inputs asynchronously, so tests converge on state instead of
// asserting immediately after an enqueue.
func Eventually(t testing.TB, timeout time.Duration, cond func() bool, msgAndArgs ...any) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if cond() {
		return
	}
	if len(msgAndArgs) > 0 {
		t.Fatalf("condition not met within %s: %v", timeout, msgAndArgs)
	}
	t.Fatalf("condition not met within %s", timeout)
}
