package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"fail2ban-exporter/internal/test/testutil"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cycleOutcome struct {
	res *CycleResult
	err error
}

func startRunner(t *testing.T, h *harness, interval time.Duration) (*Runner, chan cycleOutcome, func() error) {
	r := NewRunner(h.engine, interval, h.logs.Logger())
	outcomes := make(chan cycleOutcome, 100)
	r.afterCycle = func(res *CycleResult, err error) {
		outcomes <- cycleOutcome{res, err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	stop := func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("runner did not stop")
			return nil
		}
	}
	t.Cleanup(func() { cancel() })
	return r, outcomes, stop
}

func nextOutcome(t *testing.T, outcomes chan cycleOutcome) cycleOutcome {
	select {
	case o := <-outcomes:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("no cycle ran")
		return cycleOutcome{}
	}
}

func TestRunnerWaitsBeforeFirstCycle(t *testing.T) {
	h := newHarness(t)
	h.source.SetJail("sshd", "1.2.3.4")

	var cycles atomic.Int32
	r := NewRunner(h.engine, 300*time.Millisecond, h.logs.Logger())
	r.afterCycle = func(*CycleResult, error) { cycles.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	testutil.RequireNever(t, func() bool { return cycles.Load() > 0 }, 150*time.Millisecond)
	testutil.RequireEventually(t, func() bool { return cycles.Load() > 0 }, 2*time.Second)
	h.logs.Hook().RequireEntry(t, logrus.InfoLevel, "Performing first update in 300ms")
}

func TestRunnerRetainsStateAcrossCycles(t *testing.T) {
	h := newHarness(t)
	h.source.SetJail("sshd", "1.2.3.4")

	r, outcomes, stop := startRunner(t, h, 10*time.Millisecond)

	first := nextOutcome(t, outcomes)
	require.NoError(t, first.err)
	assert.Equal(t, []string{"1.2.3.4"}, first.res.New)

	second := nextOutcome(t, outcomes)
	require.NoError(t, second.err)
	assert.Empty(t, second.res.New)

	assert.ErrorIs(t, stop(), context.Canceled)
	assert.Contains(t, r.State().KnownAttackers, "1.2.3.4")
}

func TestRunnerSurvivesErrorsAndPanics(t *testing.T) {
	h := newHarness(t)
	h.source.SetJail("sshd", "1.2.3.4")
	h.source.SetPanic("boom")

	_, outcomes, stop := startRunner(t, h, 10*time.Millisecond)

	o := nextOutcome(t, outcomes)
	require.Error(t, o.err)
	assert.Contains(t, o.err.Error(), "boom")
	assert.GreaterOrEqual(t, h.sink.Errors(), 1)

	h.source.SetPanic("")
	h.source.SetListError(errors.New("socket gone"))
	testutil.RequireEventually(t, func() bool {
		o := <-outcomes
		return o.err != nil && o.err.Error() == "socket gone"
	}, 2*time.Second)

	h.source.SetListError(nil)
	testutil.RequireEventually(t, func() bool {
		o := <-outcomes
		return o.err == nil && len(o.res.New) == 1
	}, 2*time.Second)

	assert.ErrorIs(t, stop(), context.Canceled)
	assert.NotEmpty(t, h.logs.Hook().Find(logrus.ErrorLevel, "Failed to run update"))
}

func TestRunnerSleepsFullIntervalAfterSlowCycle(t *testing.T) {
	const (
		interval = 100 * time.Millisecond
		delay    = 150 * time.Millisecond
	)
	h := newHarness(t)
	h.source.SetJail("sshd", "1.2.3.4")
	h.source.SetDelay(delay)

	_, outcomes, stop := startRunner(t, h, interval)

	var ends []time.Time
	for i := 0; i < 3; i++ {
		o := nextOutcome(t, outcomes)
		require.NoError(t, o.err)
		ends = append(ends, time.Now())
	}
	assert.ErrorIs(t, stop(), context.Canceled)

	// a cycle that overruns the interval must not start the next one early
	for i := 1; i < len(ends); i++ {
		assert.GreaterOrEqual(t, ends[i].Sub(ends[i-1]), interval+delay-10*time.Millisecond,
			"cycle %d started without a full pause", i+1)
	}
}
