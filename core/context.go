package core

import "context"

const (
	// KAll requests every thread of the pool.
	KAll = -1

	// KInvalidThreadIndex is reported for contexts that never entered a scheduler.
	KInvalidThreadIndex = -1
)

// =============================================================================
// Context Helper
// =============================================================================

// execState is the scheduling state of a goroutine while it is inside a
// scheduler: the task it is running (if any) and its thread index.
type execState struct {
	task        *Task
	scheduler   *Scheduler
	threadIndex int
}

type execStateKeyType struct{}

var execStateKey execStateKeyType

func stateFrom(ctx context.Context) *execState {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(execStateKey).(*execState); ok {
		return v
	}
	return nil
}

func withTask(ctx context.Context, task *Task, s *Scheduler, threadIndex int) context.Context {
	return context.WithValue(ctx, execStateKey, &execState{task: task, scheduler: s, threadIndex: threadIndex})
}

func withThread(ctx context.Context, s *Scheduler, threadIndex int) context.Context {
	return withTask(ctx, CurrentTask(ctx), s, threadIndex)
}

// CurrentTask returns the task whose unit (or epilogue) is running with ctx,
// or nil outside of any task.
func CurrentTask(ctx context.Context) *Task {
	if st := stateFrom(ctx); st != nil {
		return st.task
	}
	return nil
}

// NestingLevel returns the depth of nested parallelism at ctx: 0 outside of
// any task, 1 inside a top-level task, and so on.
func NestingLevel(ctx context.Context) int {
	return CurrentTask(ctx).nestingLevel()
}

// ThreadIndex returns the thread index ctx holds, or KInvalidThreadIndex if
// ctx never entered a scheduler.
func ThreadIndex(ctx context.Context) int {
	if st := stateFrom(ctx); st != nil && st.scheduler != nil {
		return st.threadIndex
	}
	return KInvalidThreadIndex
}

// threadIndexFor returns the index ctx holds within s.
func threadIndexFor(ctx context.Context, s *Scheduler) (int, bool) {
	if st := stateFrom(ctx); st != nil && st.scheduler == s && st.threadIndex >= 0 {
		return st.threadIndex, true
	}
	return KInvalidThreadIndex, false
}
