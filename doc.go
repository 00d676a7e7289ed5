// Package forkjoin provides a nesting-aware fork-join scheduler for CPU-bound
// work.
//
// A ThreadPool owns a set of worker goroutines and one shared work queue.
// A launch splits a task into units that are queued for the workers; any unit
// may itself launch further tasks, and a task is not complete until every
// task it transitively spawned has completed.
//
// # Quick Start
//
// Most code only needs the wrappers, which run on the process-wide pool:
//
//	var counter [1000]atomic.Int32
//	err := forkjoin.ParallelFor(ctx, forkjoin.NewBlockedRange(0, 1000, 37),
//		func(ctx context.Context, begin, end, unit, thread int) error {
//			for i := begin; i < end; i++ {
//				counter[i].Add(1)
//			}
//			return nil
//		})
//
// # Nesting Context
//
// Every unit function receives a context.Context carrying the task it runs
// for and the thread index of the goroutine running it. Pass that context to
// nested launches; it is how the new task learns its parent. A launch made
// with an unrelated context is a top-level launch.
//
// While a goroutine waits on a task it runs queued units itself, but only
// those at the same or a deeper nesting level. Nested launches are queued at
// the front so that inner work drains before outer work.
//
// # Errors
//
// The first error returned (or panic raised) by a unit or an epilogue is
// stored on the task; later units of a failed task are skipped. Blocking
// launches return the error, asynchronous ones report it from
// TaskTracker.Wait. Errors are not forwarded to parent tasks: a nested
// ParallelFor returns its error to the unit body that called it.
//
// # Thread Indices
//
// Workers use thread indices [0, Size()). Other goroutines entering a pool
// borrow a higher index for as long as they stay inside. Use
// ThreadPool.MaxThreadIndex to size per-thread scratch storage.
package forkjoin
