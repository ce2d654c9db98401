package testutil

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPollInterval(t *testing.T) {
	assert.Equal(t, 2*time.Millisecond, pollInterval(50*time.Millisecond))
	assert.Equal(t, 10*time.Millisecond, pollInterval(time.Second))
	assert.Equal(t, 25*time.Millisecond, pollInterval(time.Minute))
}

func TestRequireEventually(t *testing.T) {
	var calls atomic.Int32
	RequireEventually(t, func() bool { return calls.Add(1) >= 3 }, time.Second)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestRequireNever(t *testing.T) {
	var calls atomic.Int32
	RequireNever(t, func() bool { calls.Add(1); return false }, 50*time.Millisecond)
	assert.Greater(t, calls.Load(), int32(1))
}
