package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling panics escaping a worker's dispatch
// =============================================================================

// PanicHandler is called when a panic escapes the worker dispatch loop.
// Panics raised by task functions never reach it: they are captured on the
// task and returned from TaskTracker.Wait. Anything reaching the handler is
// a scheduler fault; the worker keeps running afterwards.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a worker recovers a panic.
	//
	// Parameters:
	// - ctx: The worker context
	// - poolID: The ID of the pool the worker belongs to
	// - workerID: The thread index of the worker
	// - panicInfo: The panic value recovered
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, poolID string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs recovered panics through a Logger.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic at error level.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, poolID string, workerID int, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("Caught a panic in a worker thread",
		F("pool", poolID),
		F("worker", workerID),
		F("panic", fmt.Sprint(panicInfo)),
		F("stack", string(stackTrace)))
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting scheduler metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast; they are called on the launch and
// completion paths of every task.
type Metrics interface {
	// RecordTaskLaunched records a task handed to the scheduler.
	//
	// Parameters:
	// - poolID: The ID of the pool
	// - numUnits: The number of units of the task
	// - nested: Whether the task was launched from inside another task
	RecordTaskLaunched(poolID string, numUnits int, nested bool)

	// RecordTaskDuration records the time from launch to epilogue completion.
	RecordTaskDuration(poolID string, duration time.Duration)

	// RecordTaskFailed records that a task captured an error.
	//
	// Parameters:
	// - poolID: The ID of the pool
	// - panicked: Whether the captured error came from a panic
	RecordTaskFailed(poolID string, panicked bool)

	// RecordQueueDepth records the queue depth after units were enqueued.
	RecordQueueDepth(poolID string, depth int)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordTaskLaunched is a no-op.
func (m *NilMetrics) RecordTaskLaunched(poolID string, numUnits int, nested bool) {}

// RecordTaskDuration is a no-op.
func (m *NilMetrics) RecordTaskDuration(poolID string, duration time.Duration) {}

// RecordTaskFailed is a no-op.
func (m *NilMetrics) RecordTaskFailed(poolID string, panicked bool) {}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(poolID string, depth int) {}

// =============================================================================
// SchedulerConfig: Configuration for Scheduler
// =============================================================================

// SchedulerConfig holds configuration options for Scheduler.
// All fields are optional; if not provided, default implementations will be used.
type SchedulerConfig struct {
	// Logger receives scheduler diagnostics. Defaults to DefaultLogger (Info).
	Logger Logger

	// PanicHandler is called when a panic escapes a worker. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record scheduler metrics. Defaults to NilMetrics.
	Metrics Metrics

	// HistoryCapacity is the number of completed task records kept. Defaults to 100.
	HistoryCapacity int
}

// DefaultSchedulerConfig returns a config with default handlers.
func DefaultSchedulerConfig() *SchedulerConfig {
	logger := NewDefaultLogger()
	return &SchedulerConfig{
		Logger:          logger,
		PanicHandler:    &DefaultPanicHandler{Logger: logger},
		Metrics:         &NilMetrics{},
		HistoryCapacity: defaultTaskHistoryCapacity,
	}
}
