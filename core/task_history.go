package core

import (
	"reflect"
	"runtime"
	"sync"
	"time"
)

const defaultTaskHistoryCapacity = 100

type executionHistory struct {
	mu    sync.Mutex
	items []TaskExecutionRecord
	head  int
	count int
}

func newExecutionHistory(capacity int) *executionHistory {
	if capacity < 1 {
		capacity = defaultTaskHistoryCapacity
	}
	return &executionHistory{items: make([]TaskExecutionRecord, capacity)}
}

func (h *executionHistory) Add(record TaskExecutionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items[h.head] = record
	h.head = (h.head + 1) % len(h.items)
	if h.count < len(h.items) {
		h.count++
	}
}

func (h *executionHistory) Recent(limit int) []TaskExecutionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return nil
	}

	if limit <= 0 || limit > h.count {
		limit = h.count
	}

	out := make([]TaskExecutionRecord, 0, limit)
	for i := range limit {
		idx := (h.head - 1 - i + len(h.items)) % len(h.items)
		out = append(out, h.items[idx].named())
	}
	return out
}

func (h *executionHistory) Last() (TaskExecutionRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return TaskExecutionRecord{}, false
	}

	idx := (h.head - 1 + len(h.items)) % len(h.items)
	return h.items[idx].named(), true
}

func newTaskExecutionRecord(task *Task, finishedAt time.Time) TaskExecutionRecord {
	return TaskExecutionRecord{
		NumUnits:     task.NumUnits(),
		NestingLevel: task.nestingLevel(),
		LaunchedAt:   task.launchedAt,
		FinishedAt:   finishedAt,
		Duration:     finishedAt.Sub(task.launchedAt),
		Failed:       task.failed.Load(),
		fnPC:         functionPC(task.fn),
	}
}

// named resolves the task function name; symbol lookup is deferred to reads.
func (r TaskExecutionRecord) named() TaskExecutionRecord {
	if r.Name == "" {
		r.Name = resolveTaskName(r.fnPC)
	}
	return r
}

func functionPC(fn TaskFn) uintptr {
	if fn == nil {
		return 0
	}
	return reflect.ValueOf(fn).Pointer()
}

// resolveTaskName returns the symbol name of the function at pc.
func resolveTaskName(pc uintptr) string {
	if pc == 0 {
		return "anonymous"
	}

	f := runtime.FuncForPC(pc)
	if f == nil || f.Name() == "" {
		return "anonymous"
	}
	return f.Name()
}
