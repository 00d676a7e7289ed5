package core

import "time"

// TaskExecutionRecord captures a completed task.
type TaskExecutionRecord struct {
	Name         string
	NumUnits     int
	NestingLevel int
	LaunchedAt   time.Time
	FinishedAt   time.Time
	Duration     time.Duration
	Failed       bool

	fnPC uintptr
}

// PoolStats represents runtime observability state for a thread pool.
type PoolStats struct {
	ID        string
	Workers   int
	Queued    int
	Active    int // units executing right now
	Helpers   int // waiters parked for eligible work
	LiveTasks int // tasks not yet released
	Running   bool
}
