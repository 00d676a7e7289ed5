package core

import (
	"context"
	"runtime"
)

// TaskTracker is a handle on a launched task. It holds one reference on the
// task until Wait or Release is called; a tracker that is dropped without
// either gives its reference back when it is garbage collected, discarding
// any error the task captured.
//
// A tracker must not be waited on from several goroutines at once. Use Clone
// to hand a separate tracker to each waiter; all of them observe the same
// error.
type TaskTracker struct {
	task      *Task
	scheduler *Scheduler
	err       error
	cleanup   runtime.Cleanup
}

func newTaskTracker(task *Task, s *Scheduler) *TaskTracker {
	s.Bind(task)
	t := &TaskTracker{task: task, scheduler: s}
	t.cleanup = runtime.AddCleanup(t, s.Unbind, task)
	return t
}

// CompletedTracker returns a ready tracker carrying err. Launches that ran
// synchronously on the caller return one.
func CompletedTracker(err error) *TaskTracker {
	return &TaskTracker{err: err}
}

// Task returns the tracked task, or nil once the tracker was waited on or
// released.
func (t *TaskTracker) Task() *Task {
	if t == nil {
		return nil
	}
	return t.task
}

// Ready reports, without blocking, whether the task and every task it
// spawned have completed. An empty tracker is always ready.
func (t *TaskTracker) Ready() bool {
	if t == nil || t.task == nil {
		return true
	}
	return t.task.Done()
}

// Wait blocks until the task and all of its descendants have completed and
// returns the first error captured by one of the task's units or its
// epilogue. While waiting, the calling goroutine runs queued units that are
// at least as deeply nested as itself.
//
// Errors of descendant tasks are not reported here unless they were returned
// through the task's own unit functions.
func (t *TaskTracker) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if t.task == nil {
		return t.err
	}

	task, s := t.task, t.scheduler
	if !task.Done() {
		ctx, threadIndex, leave := s.EnterThread(ctx)
		level := NestingLevel(ctx)
		for !task.Done() {
			s.PickWorkUnit(ctx, level, threadIndex, task)
		}
		leave()
	}

	t.err = task.err
	t.detach()
	return t.err
}

// Clone returns a new tracker on the same task.
func (t *TaskTracker) Clone() *TaskTracker {
	if t == nil || t.task == nil {
		return CompletedTracker(t.errOrNil())
	}
	return newTaskTracker(t.task, t.scheduler)
}

// Release drops the tracker's reference without waiting. Any error the task
// captures is discarded.
func (t *TaskTracker) Release() {
	if t == nil || t.task == nil {
		return
	}
	t.detach()
}

func (t *TaskTracker) detach() {
	t.cleanup.Stop()
	t.scheduler.Unbind(t.task)
	t.task, t.scheduler = nil, nil
}

func (t *TaskTracker) errOrNil() error {
	if t == nil {
		return nil
	}
	return t.err
}
