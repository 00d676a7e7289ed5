package forkjoin

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Swind/go-forkjoin/core"
)

// ThreadPool manages a set of worker goroutines sharing one work queue.
// Launches made through it are fork-join: a blocking launch returns only when
// every unit of the task, and every task those units launched, has completed.
type ThreadPool struct {
	id        string
	scheduler *core.Scheduler
	wg        sync.WaitGroup
	size      atomic.Int32 // workers accepting launches; 0 once Stop begins
	workers   int
	running   bool
	runningMu sync.RWMutex
}

// NewThreadPool creates a stopped pool. An empty id is replaced by a generated
// one. A nil config uses core.DefaultSchedulerConfig.
func NewThreadPool(id string, config *core.SchedulerConfig) *ThreadPool {
	if id == "" {
		id = "pool-" + uuid.NewString()
	}
	if config == nil {
		config = core.DefaultSchedulerConfig()
	}
	return &ThreadPool{
		id:        id,
		scheduler: core.NewSchedulerWithConfig(id, config),
	}
}

// resolveWorkers maps a requested worker count to the number actually
// started. Worker counts are capped to GOMAXPROCS.
func resolveWorkers(numThreads int) int {
	hw := runtime.GOMAXPROCS(0)
	switch {
	case numThreads == KAll:
		return hw
	case numThreads < 0:
		panic(core.ErrInvalidThreadCount)
	default:
		return min(numThreads, hw)
	}
}

// Start spawns numThreads workers (KAll for one per GOMAXPROCS). With zero
// workers every launch runs synchronously on the caller.
func (tp *ThreadPool) Start(numThreads int) {
	n := resolveWorkers(numThreads)

	tp.runningMu.Lock()
	defer tp.runningMu.Unlock()

	if tp.running {
		tp.scheduler.GetLogger().Warn("Thread pool already running", core.F("pool", tp.id))
		return // Already running
	}

	tp.running = true
	tp.workers = n
	tp.scheduler.SetWorkerCount(n)

	for i := range n {
		tp.wg.Add(1)
		go tp.workerLoop(i)
	}
	tp.size.Store(int32(n))

	tp.scheduler.GetLogger().Debug("Started thread pool", core.F("pool", tp.id), core.F("workers", n))
}

// Stop shuts every worker down and waits for them to exit. Units still
// queued once the workers are gone are run on the calling goroutine.
// A stopped pool can be started again.
func (tp *ThreadPool) Stop() {
	tp.runningMu.Lock()
	defer tp.runningMu.Unlock()

	if !tp.running {
		return
	}

	// New launches run inline from here on
	tp.size.Store(0)

	// Exactly one sentinel per worker
	tp.scheduler.PostShutdown(tp.workers)
	tp.wg.Wait()

	if n := tp.scheduler.QueuedUnitCount(); n > 0 {
		tp.scheduler.GetLogger().Error("Work queue not empty after stopping workers",
			core.F("pool", tp.id), core.F("units", n))
		tp.scheduler.DrainStranded(context.Background())
	}

	tp.running = false
	tp.workers = 0
	tp.scheduler.SetWorkerCount(0)

	tp.scheduler.GetLogger().Debug("Stopped thread pool", core.F("pool", tp.id))
}

// workerLoop is the main loop for each worker
func (tp *ThreadPool) workerLoop(threadIndex int) {
	defer tp.wg.Done()
	ctx := tp.scheduler.WorkerContext(context.Background(), threadIndex)

	for tp.dispatch(ctx, threadIndex) {
	}
}

// dispatch runs one unit. A panic escaping the scheduler is reported and
// the worker keeps going.
func (tp *ThreadPool) dispatch(ctx context.Context, threadIndex int) (more bool) {
	defer func() {
		if r := recover(); r != nil {
			tp.scheduler.GetPanicHandler().HandlePanic(ctx, tp.id, threadIndex, r, debug.Stack())
			more = true
		}
	}()

	u := tp.scheduler.GetWork()
	return tp.scheduler.Dispatch(ctx, u, threadIndex)
}

// ID returns the ID of the thread pool
func (tp *ThreadPool) ID() string {
	return tp.id
}

// Size returns the number of workers accepting launches.
func (tp *ThreadPool) Size() int {
	return int(tp.size.Load())
}

// IsRunning returns whether the thread pool is running
func (tp *ThreadPool) IsRunning() bool {
	tp.runningMu.RLock()
	defer tp.runningMu.RUnlock()
	return tp.running
}

// MaxThreadIndex returns the largest thread index in use by this pool. Pass
// includeCaller when the calling goroutine is about to enter the pool as a
// guest and must be accounted for; a ctx received by a unit already holds
// an index and adds nothing.
func (tp *ThreadPool) MaxThreadIndex(ctx context.Context, includeCaller bool) int {
	return tp.scheduler.MaxThreadIndex(ctx, includeCaller)
}

// Scheduler exposes the underlying scheduler.
func (tp *ThreadPool) Scheduler() *core.Scheduler {
	return tp.scheduler
}

// Stats returns a point-in-time snapshot of the pool.
func (tp *ThreadPool) Stats() core.PoolStats {
	return core.PoolStats{
		ID:        tp.id,
		Workers:   tp.Size(),
		Queued:    tp.scheduler.QueuedUnitCount(),
		Active:    tp.scheduler.ActiveUnitCount(),
		Helpers:   tp.scheduler.HelperCount(),
		LiveTasks: tp.scheduler.LiveTaskCount(),
		Running:   tp.IsRunning(),
	}
}

// RecentTasks returns records of recently completed tasks, newest first.
func (tp *ThreadPool) RecentTasks(limit int) []core.TaskExecutionRecord {
	return tp.scheduler.RecentTasks(limit)
}

// =============================================================================
// Launching
// =============================================================================

func (tp *ThreadPool) resolveUnits(numThreads int) int {
	switch {
	case numThreads == KAll:
		return tp.Size()
	case numThreads < 0:
		panic(core.ErrInvalidThreadCount)
	default:
		return numThreads
	}
}

// Parallelize runs fn once for every unit in [0, numThreads) and then the
// epilogue (which may be nil), and returns the first error any of them
// returned or panicked with. numThreads may be KAll for one unit per worker.
//
// Unit 0 runs on the calling goroutine. While waiting for the other units, the
// caller helps with queued work of the same or deeper nesting. Launches made
// from inside a unit go to the front of the queue so that they drain before
// outer work. With zero workers, or numThreads == 0, everything runs
// synchronously on the caller.
func (tp *ThreadPool) Parallelize(ctx context.Context, numThreads int, data any, fn, epilogue TaskFn) error {
	numThreads = tp.resolveUnits(numThreads)
	if numThreads == 0 || tp.Size() == 0 {
		return tp.scheduler.RunLocally(ctx, numThreads, data, fn, epilogue)
	}

	ctx, threadIndex, leave := tp.scheduler.EnterThread(ctx)
	defer leave()

	front := core.NestingLevel(ctx) > 0
	tracker := tp.scheduler.Async(ctx, numThreads, data, fn, epilogue, 1, front)
	tp.scheduler.RunTask(ctx, tracker.Task(), 0, threadIndex)
	return tracker.Wait(ctx)
}

// ParallelizeAsync is the non-blocking form of Parallelize: no unit runs on
// the caller, and the returned tracker reports completion and the error.
// With zero workers the task runs synchronously and a ready tracker is
// returned.
func (tp *ThreadPool) ParallelizeAsync(ctx context.Context, numThreads int, data any, fn, epilogue TaskFn) *TaskTracker {
	numThreads = tp.resolveUnits(numThreads)
	if numThreads == 0 || tp.Size() == 0 {
		return core.CompletedTracker(tp.scheduler.RunLocally(ctx, numThreads, data, fn, epilogue))
	}

	front := core.NestingLevel(ctx) > 0
	return tp.scheduler.Async(ctx, numThreads, data, fn, epilogue, 0, front)
}

// =============================================================================
// Process-wide pool (Singleton)
// =============================================================================

var (
	singletonPool *ThreadPool
	singletonMu   sync.Mutex
)

// Singleton returns the process-wide pool, creating it with one worker per
// GOMAXPROCS on first use. It is never stopped; workers live until the
// process exits.
func Singleton() *ThreadPool {
	return InitSingleton(KAll, nil)
}

// InitSingleton creates and starts the process-wide pool with the given
// worker count and config. It has no effect if the pool already exists, and
// returns the existing pool in that case.
func InitSingleton(numThreads int, config *core.SchedulerConfig) *ThreadPool {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	if singletonPool == nil {
		p := NewThreadPool("singleton", config)
		p.Start(numThreads)
		singletonPool = p
	}
	return singletonPool
}
