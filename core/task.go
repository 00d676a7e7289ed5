package core

import (
	"context"
	"sync/atomic"
	"time"
)

// TaskFn is the function run for every unit of a task.
//
// For the epilogue the same signature is used, but the first int argument is
// the number of units instead of a unit index. ctx carries the scheduling
// context of the running unit; pass it to any nested launch so that the new
// task is parented correctly.
type TaskFn func(ctx context.Context, unitIndex, threadIndex int, data any) error

// =============================================================================
// Task: record of a single fork-join launch
// =============================================================================

// Task is owned by the Scheduler and only ever handled through pointers.
// Callers interact with it through a TaskTracker.
type Task struct {
	// Read-only after creation.
	data       any
	fn         TaskFn
	epilogue   TaskFn
	parent     *Task
	owner      *Scheduler
	numUnits   int32 // 0 marks the shutdown sentinel
	launchedAt time.Time

	completed    atomic.Int32 // units run or skipped
	refcount     atomic.Int32 // trackers + queued units + children
	dependencies atomic.Int32 // 1 for self + 1 per running descendant

	failed atomic.Bool
	err    error // written once by the goroutine that wins failed
}

func newTask(numUnits int, data any, fn, epilogue TaskFn) *Task {
	t := &Task{
		data:       data,
		fn:         fn,
		epilogue:   epilogue,
		numUnits:   int32(numUnits),
		launchedAt: time.Now(),
	}
	t.dependencies.Store(1)
	return t
}

// newSentinelTask creates the invalid task used to terminate one worker.
func newSentinelTask() *Task {
	return &Task{}
}

func (t *Task) valid() bool {
	return t.numUnits != 0
}

// NumUnits returns the number of units the task was launched with.
func (t *Task) NumUnits() int {
	return int(t.numUnits)
}

// Done reports whether the task and everything it spawned have completed.
func (t *Task) Done() bool {
	return t.dependencies.Load() == 0
}

// nestingLevel counts the task itself and all of its ancestors.
func (t *Task) nestingLevel() int {
	level := 0
	for ; t != nil; t = t.parent {
		level++
	}
	return level
}

// tryBind takes a reference unless the task has already been released.
func (t *Task) tryBind() bool {
	for {
		n := t.refcount.Load()
		if n <= 0 {
			return false
		}
		if t.refcount.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// release runs exactly once, when the last reference is dropped.
func (t *Task) release() {
	if t.owner != nil && t.valid() {
		t.owner.liveTasks.Add(-1)
	}
	t.data, t.fn, t.epilogue = nil, nil, nil
}

// claimError stores err if no other error was stored before.
func (t *Task) claimError(err error) bool {
	if !t.failed.CompareAndSwap(false, true) {
		return false
	}
	t.err = err
	return true
}

// bindParents records a new running descendant on every ancestor.
func bindParents(t *Task) {
	for ; t != nil; t = t.parent {
		t.dependencies.Add(1)
	}
}

// unbindParents is called once the epilogue of t has run. Schedulers owning
// a task that became done are woken so that waiters can return.
func unbindParents(t *Task) {
	for ; t != nil; t = t.parent {
		if t.dependencies.Add(-1) == 0 && t.owner != nil {
			t.owner.wakeHelpers()
		}
	}
}
