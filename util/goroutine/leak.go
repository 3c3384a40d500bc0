package goroutine

import (
	"runtime"
	"testing"
	"time"
)

// AssertNoLeaks fails t if more goroutines are running at cleanup than when
// it was called. Goroutines get up to five seconds to exit.
func AssertNoLeaks(t *testing.T) {
	t.Helper()
	before := runtime.NumGoroutine()

	t.Cleanup(func() {
		if WaitForGoroutineCount(before, 5*time.Second, 50*time.Millisecond) {
			return
		}
		current := runtime.NumGoroutine()
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		t.Errorf("goroutine leak detected: started with %d goroutines, ended with %d", before, current)
		t.Logf("Active goroutines:\n%s", buf[:n])
	})
}

// WaitForGoroutineCount polls until at most target goroutines are running.
// It returns false if timeout expires first.
func WaitForGoroutineCount(target int, timeout, pollInterval time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if runtime.NumGoroutine() <= target {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}
