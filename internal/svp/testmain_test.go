package svp_test

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain runs all tests in the svp_test package and checks for goroutine
// leaks after all tests complete. The transport tests run loopback TCP
// servers on their own goroutines; every one must be joined before its test
// returns.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
