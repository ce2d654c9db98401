package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pollInterval scales polling to the timeout, between 2ms and 25ms
func pollInterval(timeout time.Duration) time.Duration {
	return min(max(timeout/100, 2*time.Millisecond), 25*time.Millisecond)
}

// RequireEventually fails t unless condition holds before timeout. The
// condition is checked once more at the deadline so a slow last poll still
// counts.
func RequireEventually(t testing.TB, condition func() bool, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	tick := pollInterval(timeout)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(tick)
	}
	if condition() {
		return
	}
	require.Fail(t, "condition not met within "+timeout.String(), msgAndArgs...)
}

// RequireNever fails t as soon as condition holds during timeout
func RequireNever(t testing.TB, condition func() bool, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	tick := pollInterval(timeout)
	start := time.Now()
	for time.Since(start) < timeout {
		if condition() {
			require.Fail(t, "condition met after "+time.Since(start).Round(time.Millisecond).String(), msgAndArgs...)
			return
		}
		time.Sleep(tick)
	}
}
