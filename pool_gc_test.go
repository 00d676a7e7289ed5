package forkjoin_test

import (
	"context"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	forkjoin "github.com/Swind/go-forkjoin"
	"github.com/Swind/go-forkjoin/core"
)

func forceGC(done func() bool) {
	for i := 0; i < 50 && !done(); i++ {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
}

// TestThreadPool_GC_StoppedPoolIsCollected tests a stopped pool does not leak
// Given: a ThreadPool that has executed nested launches
// When: it is stopped and the reference is dropped
// Then: the ThreadPool is garbage collected
func TestThreadPool_GC_StoppedPoolIsCollected(t *testing.T) {
	// Arrange - Create pool with finalizer
	var poolFinalized atomic.Bool

	pool := forkjoin.NewThreadPool("gc-pool", &core.SchedulerConfig{Logger: core.NewNoOpLogger()})
	pool.Start(2)
	runtime.SetFinalizer(pool, func(p *forkjoin.ThreadPool) {
		poolFinalized.Store(true)
	})

	// Act - Execute work and stop
	err := forkjoin.ParallelFor(context.Background(), forkjoin.NewBlockedRange(0, 64, 4),
		func(ctx context.Context, _, _, _, _ int) error {
			return forkjoin.ParallelFor(ctx, forkjoin.NewBlockedRange(0, 4, 1),
				func(context.Context, int, int, int, int) error { return nil },
				forkjoin.WithPool(pool))
		}, forkjoin.WithPool(pool))
	if err != nil {
		t.Fatalf("ParallelFor() = %v, want nil", err)
	}
	pool.Stop()
	pool = nil

	forceGC(poolFinalized.Load)

	// Assert
	if !poolFinalized.Load() {
		t.Error("ThreadPool GC'd: got = false, want = true")
	}
}

// TestThreadPool_GC_DroppedTrackersReleaseTasks tests trackers that are never waited on
// Given: asynchronous launches whose trackers are dropped after completion
// When: the garbage collector runs
// Then: every task is released and the live task count returns to 0
func TestThreadPool_GC_DroppedTrackersReleaseTasks(t *testing.T) {
	// Arrange
	pool := forkjoin.NewThreadPool("gc-trackers", &core.SchedulerConfig{Logger: core.NewNoOpLogger()})
	pool.Start(2)
	defer pool.Stop()

	var ran atomic.Int32
	for range 10 {
		forkjoin.DoAsync(context.Background(), func(context.Context) error {
			ran.Add(1)
			return nil
		}, forkjoin.WithPool(pool))
	}

	// Act
	deadline := time.Now().Add(2 * time.Second)
	for ran.Load() != 10 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	forceGC(func() bool { return pool.Stats().LiveTasks == 0 })

	// Assert
	if got := ran.Load(); got != 10 {
		t.Fatalf("tasks run: got = %d, want 10", got)
	}
	if got := pool.Stats().LiveTasks; got != 0 {
		t.Errorf("live tasks: got = %d, want 0", got)
	}
}
