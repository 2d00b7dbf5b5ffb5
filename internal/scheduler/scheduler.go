// Package scheduler implements the single-flight tick clock: exactly one
// tick runs at a time, overrunning ticks are skipped rather than queued,
// and shutdown drains the in-flight tick before returning.
package scheduler

import (
	"context"
	"log"
	"time"
)

// TickFunc is invoked once per tick. It receives a context that is
// cancelled if the scheduler is asked to stop mid-tick.
type TickFunc func(ctx context.Context)

// Clock fires TickFunc at a fixed period, never overlapping invocations.
type Clock struct {
	period time.Duration
	fn     TickFunc
}

// New creates a clock with the given period and tick function.
func New(period time.Duration, fn TickFunc) *Clock {
	return &Clock{period: period, fn: fn}
}

// Run blocks until ctx is cancelled, firing the tick function at most
// once per period. If a tick is still running when the next period
// elapses, that firing is skipped rather than queued.
func (c *Clock) Run(ctx context.Context) {
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	busy := make(chan struct{}, 1)
	busy <- struct{}{}

	for {
		select {
		case <-ctx.Done():
			// Drain: wait for any in-flight tick before returning.
			<-busy
			return

		case <-ticker.C:
			select {
			case <-busy:
			default:
				log.Println("scheduler: previous tick still running, skipping this period")
				continue
			}
			go func() {
				defer func() { busy <- struct{}{} }()
				c.fn(ctx)
			}()
		}
	}
}
