package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Runner polls on a fixed interval, one cycle at a time
type Runner struct {
	engine   *Engine
	state    *State
	interval time.Duration
	log      logrus.FieldLogger

	// called after every cycle, mainly for tests
	afterCycle func(*CycleResult, error)
}

// NewRunner creates a runner owning a fresh state
func NewRunner(engine *Engine, interval time.Duration, log logrus.FieldLogger) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{
		engine:   engine,
		state:    NewState(),
		interval: interval,
		log:      log,
	}
}

// State returns the retained state. Only safe once Run has returned.
func (r *Runner) State() *State {
	return r.state
}

// Run waits one interval, then runs cycles until ctx is done. Every cycle is
// followed by a full interval of sleep, however long the cycle took.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Infof("Performing first update in %s", r.interval)

	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			res, err := r.runOnce(ctx)
			if r.afterCycle != nil {
				r.afterCycle(res, err)
			}
			timer.Reset(r.interval)
		}
	}
}

// runOnce runs a cycle and turns a panic into a counted error
func (r *Runner) runOnce(ctx context.Context) (res *CycleResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("cycle panicked: %v", p)
			r.log.WithError(err).Error("Failed to run update")
			r.engine.sink.ReportError()
		}
	}()
	return r.engine.RunCycle(ctx, r.state)
}
