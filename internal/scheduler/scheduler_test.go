package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestClockFiresRepeatedly(t *testing.T) {
	var count int32
	c := New(5*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt32(&count, 1)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	if atomic.LoadInt32(&count) < 3 {
		t.Fatalf("expected at least 3 ticks in 60ms at a 5ms period, got %d", count)
	}
}

func TestClockSkipsOverrunningTick(t *testing.T) {
	// A tick function that blocks far longer than the period should never
	// run concurrently with itself: the scheduler must skip, not queue.
	var running int32
	var maxConcurrent int32
	release := make(chan struct{})

	c := New(2*time.Millisecond, func(ctx context.Context) {
		n := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&maxConcurrent)
			if n <= old || atomic.CompareAndSwapInt32(&maxConcurrent, old, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&running, -1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Run(ctx)
	}()

	time.Sleep(30 * time.Millisecond) // several periods elapse while the first tick blocks
	close(release)
	cancel()
	wg.Wait()

	if atomic.LoadInt32(&maxConcurrent) > 1 {
		t.Fatalf("max concurrent ticks = %d, want at most 1", maxConcurrent)
	}
}

func TestClockDrainsInFlightTickOnShutdown(t *testing.T) {
	done := make(chan struct{})
	started := make(chan struct{})

	c := New(2*time.Millisecond, func(ctx context.Context) {
		close(started)
		time.Sleep(20 * time.Millisecond)
		close(done)
	})

	ctx, cancel := context.WithCancel(context.Background())
	runReturned := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(runReturned)
	}()

	<-started
	cancel()
	<-runReturned

	select {
	case <-done:
	default:
		t.Fatal("Run returned before the in-flight tick finished")
	}
}
