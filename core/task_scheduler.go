package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler owns the shared work queue and the lifecycle of every task
// launched on it. Worker goroutines are managed by the thread pool on top of
// it; the scheduler only hands out work units.
type Scheduler struct {
	id string

	mu       sync.Mutex
	workCond *sync.Cond // idle workers: queue not empty
	helpCond *sync.Cond // waiters: queue head or a dependency count changed
	queue    *WorkQueue
	helpers  int
	shutdown bool // set by PostShutdown until workers are reserved again

	// Guarded by mu, see thread_index.go
	workers   int
	guestNext int
	guestFree []int

	active    atomic.Int32 // units executing
	liveTasks atomic.Int32 // tasks not yet released

	logger       Logger
	panicHandler PanicHandler
	metrics      Metrics
	history      *executionHistory
}

// NewScheduler creates a scheduler with the default config.
func NewScheduler(id string) *Scheduler {
	return NewSchedulerWithConfig(id, DefaultSchedulerConfig())
}

// NewSchedulerWithConfig creates a scheduler with no workers reserved. Nil
// fields of config fall back to the defaults.
func NewSchedulerWithConfig(id string, config *SchedulerConfig) *Scheduler {
	s := &Scheduler{
		id:    id,
		queue: NewWorkQueue(),
	}
	s.workCond = sync.NewCond(&s.mu)
	s.helpCond = sync.NewCond(&s.mu)

	historyCapacity := 0
	// Apply config
	if config != nil {
		s.logger = config.Logger
		s.panicHandler = config.PanicHandler
		s.metrics = config.Metrics
		historyCapacity = config.HistoryCapacity
	}

	// Use defaults if not provided
	if s.logger == nil {
		s.logger = NewDefaultLogger()
	}
	if s.panicHandler == nil {
		s.panicHandler = &DefaultPanicHandler{Logger: s.logger}
	}
	if s.metrics == nil {
		s.metrics = &NilMetrics{}
	}
	s.history = newExecutionHistory(historyCapacity)

	return s
}

// =============================================================================
// Reference counting
// =============================================================================

// Bind takes a reference on task.
func (s *Scheduler) Bind(task *Task) {
	if task == nil {
		return
	}
	task.refcount.Add(1)
}

// Unbind drops a reference on task. The last reference releases the task
// and, in turn, the reference it held on its parent.
func (s *Scheduler) Unbind(task *Task) {
	for task != nil {
		n := task.refcount.Add(-1)
		if n < 0 {
			panic("forkjoin: task reference count underflow")
		}
		if n > 0 {
			return
		}
		parent := task.parent
		task.release()
		task = parent
	}
}

// =============================================================================
// Launching
// =============================================================================

// Async creates a task of numUnits units, parents it to the task running
// with ctx, and queues all but reservedUnits of its units. Reserved units
// (indices [0, reservedUnits)) must be run by the caller through RunTask.
// Nested launches should pass front=true so that inner work drains before
// outer work.
func (s *Scheduler) Async(ctx context.Context, numUnits int, data any, fn, epilogue TaskFn, reservedUnits int, front bool) *TaskTracker {
	task := newTask(numUnits, data, fn, epilogue)
	task.owner = s
	if parent := CurrentTask(ctx); parent != nil && parent.tryBind() {
		task.parent = parent
		bindParents(parent)
	}
	s.liveTasks.Add(1)

	// Get the tracker before the task is handed off
	tracker := newTaskTracker(task, s)

	queued := numUnits - reservedUnits
	task.refcount.Add(int32(queued))
	s.metrics.RecordTaskLaunched(s.id, numUnits, task.parent != nil)

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		s.runInline(ctx, task, reservedUnits, numUnits)
		return tracker
	}
	if front {
		for i := numUnits - 1; i >= reservedUnits; i-- {
			s.queue.PushFront(WorkUnit{Task: task, Index: i})
		}
	} else {
		for i := reservedUnits; i < numUnits; i++ {
			s.queue.PushBack(WorkUnit{Task: task, Index: i})
		}
	}
	depth := s.queue.Len()
	wake := s.helpers > 0
	s.mu.Unlock()

	// Wake every worker, some will find nothing to do
	if queued > 0 {
		s.workCond.Broadcast()
		if wake {
			s.helpCond.Broadcast()
		}
	}

	s.metrics.RecordQueueDepth(s.id, depth)
	return tracker
}

// runInline runs units [from, to) of task on the caller. Async uses it once
// the workers were told to shut down, so no launch is left in the queue.
func (s *Scheduler) runInline(ctx context.Context, task *Task, from, to int) {
	if from == to {
		return
	}
	s.logger.Debug("Running launch inline, scheduler is shutting down",
		F("scheduler", s.id), F("units", to-from))

	ctx, threadIndex, leave := s.EnterThread(ctx)
	defer leave()
	for i := from; i < to; i++ {
		s.RunTask(ctx, task, i, threadIndex)
		s.Unbind(task)
	}
}

// RunLocally runs numUnits units (at least one) and the epilogue on the
// calling goroutine, bypassing the queue. No task is created, so launches
// made by fn keep the caller's parent. After the first error the remaining
// units are skipped; the epilogue always runs.
func (s *Scheduler) RunLocally(ctx context.Context, numUnits int, data any, fn, epilogue TaskFn) error {
	if numUnits == 0 {
		numUnits = 1
	}

	ctx, threadIndex, leave := s.EnterThread(ctx)
	defer leave()

	var first error
	for i := range numUnits {
		if first != nil {
			break
		}
		first = invoke(func() error { return fn(ctx, i, threadIndex, data) })
	}

	if epilogue != nil {
		err := invoke(func() error { return epilogue(ctx, numUnits, threadIndex, data) })
		if first == nil {
			first = err
		}
	}
	return first
}

// =============================================================================
// Execution
// =============================================================================

// RunTask runs one unit of task. When it is the last unit, the epilogue runs
// on the spot and the task's dependency counts are released.
func (s *Scheduler) RunTask(ctx context.Context, task *Task, unitIndex, threadIndex int) {
	ctx = withTask(ctx, task, s, threadIndex)

	if !task.failed.Load() {
		s.active.Add(1)
		err := invoke(func() error { return task.fn(ctx, unitIndex, threadIndex, task.data) })
		s.active.Add(-1)
		if err != nil {
			s.captureError(task, err, unitIndex, threadIndex)
		}
	} else {
		s.logger.Debug("Skipping unit because another unit of this task failed",
			F("unit", unitIndex), F("thread", threadIndex))
	}

	if task.completed.Add(1) == task.numUnits {
		s.finish(ctx, task, threadIndex)
	}
}

func (s *Scheduler) finish(ctx context.Context, task *Task, threadIndex int) {
	if task.epilogue != nil {
		err := invoke(func() error { return task.epilogue(ctx, int(task.numUnits), threadIndex, task.data) })
		if err != nil {
			s.captureError(task, err, int(task.numUnits), threadIndex)
		}
	}

	finishedAt := time.Now()
	s.metrics.RecordTaskDuration(s.id, finishedAt.Sub(task.launchedAt))
	s.history.Add(newTaskExecutionRecord(task, finishedAt))

	unbindParents(task)
}

func (s *Scheduler) captureError(task *Task, err error, unitIndex, threadIndex int) {
	if task.claimError(err) {
		s.logger.Debug("Storing error returned by a task",
			F("unit", unitIndex), F("thread", threadIndex), F("error", err))
		s.metrics.RecordTaskFailed(s.id, IsPanic(err))
		return
	}
	s.logger.Debug("Ignoring error returned by a task (another error has already been stored)",
		F("unit", unitIndex), F("thread", threadIndex), F("error", err))
}

// PickWorkUnit lets a waiting goroutine help. It returns once awaited is
// done or after running one unit taken from the head of the queue. A head
// unit belonging to a shallower nesting level than the caller's is never
// taken; the caller parks until the head or a dependency count changes.
func (s *Scheduler) PickWorkUnit(ctx context.Context, nestingLevel, threadIndex int, awaited *Task) {
	s.mu.Lock()
	for {
		if awaited != nil && awaited.Done() {
			s.mu.Unlock()
			return
		}

		if u, ok := s.queue.Front(); ok && u.Task.valid() && u.Task.nestingLevel() >= nestingLevel {
			s.queue.PopFront()
			wake := s.helpers > 0
			s.mu.Unlock()
			if wake {
				s.helpCond.Broadcast()
			}

			s.RunTask(ctx, u.Task, u.Index, threadIndex)
			s.Unbind(u.Task)
			return
		}

		s.helpers++
		s.helpCond.Wait()
		s.helpers--
	}
}

// GetWork (Called by Worker) blocks until a unit is available and pops it.
func (s *Scheduler) GetWork() WorkUnit {
	s.mu.Lock()
	for s.queue.IsEmpty() {
		s.workCond.Wait()
	}
	u, _ := s.queue.PopFront()
	wake := s.helpers > 0
	s.mu.Unlock()

	if wake {
		s.helpCond.Broadcast()
	}
	return u
}

// Dispatch runs a unit obtained from GetWork and drops its reference.
// It returns false for the shutdown sentinel.
func (s *Scheduler) Dispatch(ctx context.Context, u WorkUnit, threadIndex int) bool {
	if !u.Task.valid() {
		s.Unbind(u.Task)
		return false
	}
	s.RunTask(ctx, u.Task, u.Index, threadIndex)
	s.Unbind(u.Task)
	return true
}

// PostShutdown queues one sentinel per worker; each worker exits on the
// first sentinel it pops. Launches made afterwards run on the caller until
// SetWorkerCount reserves workers again.
func (s *Scheduler) PostShutdown(workers int) {
	s.mu.Lock()
	s.shutdown = true
	for range workers {
		task := newSentinelTask()
		s.Bind(task)
		s.queue.PushBack(WorkUnit{Task: task})
	}
	s.mu.Unlock()
	s.workCond.Broadcast()
}

// DrainStranded runs, on the calling goroutine, every unit left in the queue
// once all workers have exited. It returns the number of units run.
func (s *Scheduler) DrainStranded(ctx context.Context) int {
	ctx, threadIndex, leave := s.EnterThread(ctx)
	defer leave()

	ran := 0
	for {
		s.mu.Lock()
		u, ok := s.queue.PopFront()
		s.mu.Unlock()
		if !ok {
			return ran
		}
		if s.Dispatch(ctx, u, threadIndex) {
			ran++
		}
	}
}

func (s *Scheduler) wakeHelpers() {
	s.mu.Lock()
	wake := s.helpers > 0
	s.mu.Unlock()
	if wake {
		s.helpCond.Broadcast()
	}
}

// =============================================================================
// Observability
// =============================================================================

func (s *Scheduler) ID() string { return s.id }

func (s *Scheduler) QueuedUnitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

func (s *Scheduler) HelperCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.helpers
}

func (s *Scheduler) ActiveUnitCount() int { return int(s.active.Load()) }
func (s *Scheduler) LiveTaskCount() int   { return int(s.liveTasks.Load()) }

// RecentTasks returns completed task records in newest-first order.
func (s *Scheduler) RecentTasks(limit int) []TaskExecutionRecord {
	return s.history.Recent(limit)
}

// GetLogger returns the logger for this scheduler
func (s *Scheduler) GetLogger() Logger {
	return s.logger
}

// GetPanicHandler returns the panic handler for this scheduler
func (s *Scheduler) GetPanicHandler() PanicHandler {
	return s.panicHandler
}

// GetMetrics returns the metrics collector for this scheduler
func (s *Scheduler) GetMetrics() Metrics {
	return s.metrics
}
