//go:build !integration

package queue

import (
	"testing"

	"go.uber.org/goleak"
)

// Container-backed tests leave reaper goroutines behind, so leak checks only
// run in the default build.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
