package forkjoin

import "github.com/Swind/go-forkjoin/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the forkjoin package for most use cases.

// TaskFn is the function run for every unit of a task (and for its epilogue)
type TaskFn = core.TaskFn

// TaskTracker is a handle to wait on a launched task
type TaskTracker = core.TaskTracker

// PanicError is the error a panicking unit is reported with
type PanicError = core.PanicError

// PoolStats is a snapshot of a pool's state
type PoolStats = core.PoolStats

const (
	// KAll requests one unit (or worker) per available thread.
	KAll = core.KAll

	// KInvalidThreadIndex is reported outside of any pool.
	KInvalidThreadIndex = core.KInvalidThreadIndex
)

// NestingLevel returns how many tasks deep ctx is nested (0 outside any task)
var NestingLevel = core.NestingLevel

// ThreadIndex returns the thread index held by ctx
var ThreadIndex = core.ThreadIndex

// IsPanic reports whether err carries a recovered panic
var IsPanic = core.IsPanic
