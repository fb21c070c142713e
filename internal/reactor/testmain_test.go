package reactor_test

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain runs all tests in the reactor_test package and checks for
// goroutine leaks after all tests complete. Every Run goroutine started by
// a test must have observed its context cancellation by then.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
