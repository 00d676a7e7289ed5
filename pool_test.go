package forkjoin

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-forkjoin/core"
)

func newTestPool(t *testing.T, workers int) *ThreadPool {
	t.Helper()
	pool := NewThreadPool("", &core.SchedulerConfig{Logger: core.NewNoOpLogger()})
	pool.Start(workers)
	t.Cleanup(pool.Stop)
	return pool
}

// TestThreadPool_Lifecycle verifies start, stop and restart
// Given: A new pool
// When: It is started, stopped and started again
// Then: Size and IsRunning follow, and the generated ID is stable
func TestThreadPool_Lifecycle(t *testing.T) {
	// Arrange
	pool := NewThreadPool("", &core.SchedulerConfig{Logger: core.NewNoOpLogger()})
	want := min(2, runtime.GOMAXPROCS(0))

	// Act and Assert
	assert.NotEmpty(t, pool.ID())
	assert.False(t, pool.IsRunning())
	assert.Equal(t, 0, pool.Size())

	pool.Start(2)
	assert.True(t, pool.IsRunning())
	assert.Equal(t, want, pool.Size())

	pool.Start(2) // no-op
	assert.Equal(t, want, pool.Size())

	pool.Stop()
	assert.False(t, pool.IsRunning())
	assert.Equal(t, 0, pool.Size())

	pool.Start(1)
	defer pool.Stop()
	assert.True(t, pool.IsRunning())
	assert.Equal(t, 1, pool.Size())
	require.NoError(t, pool.Parallelize(context.Background(), KAll, nil, func(context.Context, int, int, any) error {
		return nil
	}, nil))
}

// TestThreadPool_StartResolvesThreadCount verifies KAll, capping and invalid counts
// Given: Pools started with KAll, too many workers and a negative count
// When: Start is called
// Then: KAll and oversized counts resolve to GOMAXPROCS and negative counts panic
func TestThreadPool_StartResolvesThreadCount(t *testing.T) {
	hw := runtime.GOMAXPROCS(0)

	assert.Equal(t, hw, newTestPool(t, KAll).Size())
	assert.Equal(t, hw, newTestPool(t, hw+8).Size())
	assert.Equal(t, 0, newTestPool(t, 0).Size())

	pool := NewThreadPool("bad", nil)
	assert.PanicsWithValue(t, core.ErrInvalidThreadCount, func() { pool.Start(-2) })
	assert.PanicsWithValue(t, core.ErrInvalidThreadCount, func() {
		_ = pool.Parallelize(context.Background(), -5, nil, nil, nil)
	})
}

// TestParallelize_RunsEveryUnitOnce verifies unit indices and epilogue
// Given: A pool with several workers
// When: Parallelize runs 16 units with an epilogue
// Then: Every unit index runs once and the epilogue runs once after all of them
func TestParallelize_RunsEveryUnitOnce(t *testing.T) {
	// Arrange
	pool := newTestPool(t, 4)
	var counts [16]atomic.Int32
	var epilogues, doneAtEpilogue atomic.Int32

	// Act
	err := pool.Parallelize(context.Background(), 16, &counts,
		func(_ context.Context, unit, _ int, data any) error {
			data.(*[16]atomic.Int32)[unit].Add(1)
			return nil
		},
		func(_ context.Context, numUnits, _ int, data any) error {
			epilogues.Add(1)
			var done int32
			for i := range numUnits {
				done += data.(*[16]atomic.Int32)[i].Load()
			}
			doneAtEpilogue.Store(done)
			return nil
		})

	// Assert
	require.NoError(t, err)
	for i := range counts {
		assert.Equal(t, int32(1), counts[i].Load(), "unit %d", i)
	}
	assert.Equal(t, int32(1), epilogues.Load())
	assert.Equal(t, int32(16), doneAtEpilogue.Load())
	assert.Equal(t, 0, pool.Stats().LiveTasks)
}

// TestParallelize_UnitZeroRunsOnCaller verifies the caller takes part
// Given: A pool and a caller that is not a worker
// When: Parallelize runs KAll units
// Then: Unit 0 runs with the first guest thread index and all indices stay within MaxThreadIndex
func TestParallelize_UnitZeroRunsOnCaller(t *testing.T) {
	// Arrange
	pool := newTestPool(t, 2)
	size := pool.Size()
	threads := make([]atomic.Int32, size)

	// Act
	err := pool.Parallelize(context.Background(), KAll, nil, func(_ context.Context, unit, thread int, _ any) error {
		threads[unit].Store(int32(thread))
		return nil
	}, nil)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int32(size), threads[0].Load(), "unit 0 should run on the first guest index")
	assert.Equal(t, size, pool.MaxThreadIndex(context.Background(), false))
	for unit := range threads {
		assert.LessOrEqual(t, int(threads[unit].Load()), pool.MaxThreadIndex(context.Background(), false))
	}
}

// TestParallelize_ZeroThreads verifies synchronous execution
// Given: A pool with workers and a pool with none
// When: Parallelize is called with 0 threads on the first and 3 on the second
// Then: Units run in order on the caller and the epilogue sees the unit count
func TestParallelize_ZeroThreads(t *testing.T) {
	for _, tc := range []struct {
		name      string
		workers   int
		threads   int
		wantUnits []int
	}{
		{name: "zero threads", workers: 2, threads: 0, wantUnits: []int{0}},
		{name: "zero workers", workers: 0, threads: 3, wantUnits: []int{0, 1, 2}},
		{name: "zero workers all", workers: 0, threads: KAll, wantUnits: []int{0}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pool := newTestPool(t, tc.workers)
			var units []int
			var epilogueUnits int

			err := pool.Parallelize(context.Background(), tc.threads, nil,
				func(_ context.Context, unit, _ int, _ any) error {
					units = append(units, unit)
					return nil
				},
				func(_ context.Context, numUnits, _ int, _ any) error {
					epilogueUnits = numUnits
					return nil
				})

			require.NoError(t, err)
			assert.Equal(t, tc.wantUnits, units)
			assert.Equal(t, len(tc.wantUnits), epilogueUnits)
		})
	}
}

// TestParallelize_FirstErrorWins verifies a single failing unit
// Given: A pool and a task where exactly one unit fails with "boom"
// When: Parallelize returns
// Then: The error message is "boom"
func TestParallelize_FirstErrorWins(t *testing.T) {
	pool := newTestPool(t, 4)

	err := pool.Parallelize(context.Background(), 8, nil, func(_ context.Context, unit, _ int, _ any) error {
		if unit == 5 {
			return errors.New("boom")
		}
		return nil
	}, nil)

	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())
}

// TestParallelize_PanicInUnit verifies panics surface as errors
// Given: A unit that panics
// When: Parallelize returns
// Then: The error is a PanicError and the pool keeps working
func TestParallelize_PanicInUnit(t *testing.T) {
	pool := newTestPool(t, 2)

	err := pool.Parallelize(context.Background(), KAll, nil, func(context.Context, int, int, any) error {
		panic("kaboom")
	}, nil)

	require.Error(t, err)
	assert.True(t, IsPanic(err))
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)

	require.NoError(t, pool.Parallelize(context.Background(), KAll, nil, func(context.Context, int, int, any) error {
		return nil
	}, nil))
}

// TestParallelizeAsync_TrackerLifecycle verifies ready, wait and repeated wait
// Given: A pool with workers and a task blocked on a channel
// When: The tracker is polled, the task released, and waited on twice
// Then: Ready is false while blocked and both waits return the same error
func TestParallelizeAsync_TrackerLifecycle(t *testing.T) {
	// Arrange
	pool := newTestPool(t, 2)
	release := make(chan struct{})
	wantErr := errors.New("late failure")

	// Act
	tracker := pool.ParallelizeAsync(context.Background(), 1, nil, func(context.Context, int, int, any) error {
		<-release
		return wantErr
	}, nil)

	// Assert
	assert.False(t, tracker.Ready())
	close(release)
	first := tracker.Wait(context.Background())
	second := tracker.Wait(context.Background())
	assert.ErrorIs(t, first, wantErr)
	assert.Equal(t, first, second)
	assert.True(t, tracker.Ready())
}

// TestParallelizeAsync_ZeroWorkers verifies the synchronous fallback
// Given: A pool without workers
// When: ParallelizeAsync is called with a failing unit
// Then: The unit already ran and the ready tracker carries the error
func TestParallelizeAsync_ZeroWorkers(t *testing.T) {
	pool := newTestPool(t, 0)
	var ran bool

	tracker := pool.ParallelizeAsync(context.Background(), 1, nil, func(context.Context, int, int, any) error {
		ran = true
		return errors.New("boom")
	}, nil)

	assert.True(t, ran)
	assert.True(t, tracker.Ready())
	assert.EqualError(t, tracker.Wait(context.Background()), "boom")
}

// TestThreadPool_StopRunsQueuedWork verifies no tracker hangs across Stop
// Given: A pool with many queued asynchronous tasks
// When: The pool is stopped
// Then: Every tracker is ready and the pool is empty
func TestThreadPool_StopRunsQueuedWork(t *testing.T) {
	// Arrange
	pool := NewThreadPool("stop", &core.SchedulerConfig{Logger: core.NewNoOpLogger()})
	pool.Start(2)
	var ran atomic.Int32
	trackers := make([]*TaskTracker, 0, 32)
	for range 32 {
		trackers = append(trackers, pool.ParallelizeAsync(context.Background(), 2, nil, func(context.Context, int, int, any) error {
			time.Sleep(100 * time.Microsecond)
			ran.Add(1)
			return nil
		}, nil))
	}

	// Act
	pool.Stop()

	// Assert
	for i, tr := range trackers {
		assert.True(t, tr.Ready(), "tracker %d", i)
		require.NoError(t, tr.Wait(context.Background()))
	}
	assert.Equal(t, int32(64), ran.Load())
	stats := pool.Stats()
	assert.Equal(t, 0, stats.Queued)
	assert.Equal(t, 0, stats.LiveTasks)
	assert.False(t, stats.Running)
}

// TestThreadPool_LaunchRacingStop verifies a launch that passed the worker check before Stop is not stranded
// Given: A pool that was stopped after a launcher saw it running
// When: The launcher's units reach the scheduler
// Then: They run on the launcher and the tracker is ready without a Wait
func TestThreadPool_LaunchRacingStop(t *testing.T) {
	// Arrange
	pool := NewThreadPool("racing-stop", &core.SchedulerConfig{Logger: core.NewNoOpLogger()})
	pool.Start(2)
	pool.Stop()
	var ran atomic.Int32

	// Act
	tracker := pool.Scheduler().Async(context.Background(), 2, nil, func(context.Context, int, int, any) error {
		ran.Add(1)
		return nil
	}, nil, 0, false)

	// Assert
	assert.True(t, tracker.Ready())
	assert.Equal(t, int32(2), ran.Load())
	assert.Equal(t, 0, pool.Stats().Queued)
	require.NoError(t, tracker.Wait(context.Background()))

	pool.Start(1)
	defer pool.Stop()
	tracker = pool.ParallelizeAsync(context.Background(), 2, nil, func(context.Context, int, int, any) error {
		ran.Add(1)
		return nil
	}, nil)
	require.NoError(t, tracker.Wait(context.Background()))
	assert.Equal(t, int32(4), ran.Load())
}

// TestThreadPool_ConcurrentLaunchers verifies many top-level launchers share a pool
// Given: A pool and 8 goroutines launching blocking tasks
// When: They all run concurrently
// Then: Every launch completes and every task is released
func TestThreadPool_ConcurrentLaunchers(t *testing.T) {
	pool := newTestPool(t, KAll)
	var total atomic.Int64
	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				err := pool.Parallelize(context.Background(), KAll, nil, func(context.Context, int, int, any) error {
					total.Add(1)
					return nil
				}, nil)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(8*20*pool.Size()), total.Load())
	assert.Equal(t, 0, pool.Stats().LiveTasks)
}

// TestSingleton verifies the process-wide pool
// Given: Repeated calls to Singleton and InitSingleton
// When: They are compared
// Then: The same running pool is returned every time
func TestSingleton(t *testing.T) {
	a := Singleton()
	b := InitSingleton(1, nil)

	assert.Same(t, a, b)
	assert.True(t, a.IsRunning())
	assert.Equal(t, runtime.GOMAXPROCS(0), a.Size())
}

// TestThreadPool_RecentTasks verifies completed launches are recorded
// Given: A pool
// When: A blocking launch completes
// Then: RecentTasks reports it with its unit count
func TestThreadPool_RecentTasks(t *testing.T) {
	pool := newTestPool(t, 2)

	require.NoError(t, pool.Parallelize(context.Background(), 3, nil, func(context.Context, int, int, any) error {
		return nil
	}, nil))

	records := pool.RecentTasks(1)
	require.Len(t, records, 1)
	assert.Equal(t, 3, records[0].NumUnits)
	assert.Equal(t, 1, records[0].NestingLevel)
}
