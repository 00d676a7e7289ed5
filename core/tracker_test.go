package core

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"
)

// TestTaskTracker_EmptyTrackersAreReady verifies trackers without a task
// Given: A nil tracker and a completed tracker carrying an error
// When: Ready and Wait are called
// Then: Both are ready and Wait returns the stored error
func TestTaskTracker_EmptyTrackersAreReady(t *testing.T) {
	// Arrange
	var nilTracker *TaskTracker
	wantErr := errors.New("done badly")
	completed := CompletedTracker(wantErr)

	// Act and Assert
	if !nilTracker.Ready() || nilTracker.Wait(context.Background()) != nil {
		t.Error("nil tracker: want ready with nil error")
	}
	if !completed.Ready() {
		t.Error("CompletedTracker().Ready() = false, want true")
	}
	if err := completed.Wait(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("CompletedTracker().Wait() = %v, want %v", err, wantErr)
	}
	if err := completed.Clone().Wait(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("Clone().Wait() = %v, want %v", err, wantErr)
	}
}

// TestTaskTracker_WaitTwiceReturnsSameError verifies repeated waits
// Given: A task that fails
// When: Its tracker is waited on twice
// Then: Both calls return the same error and the task is released once
func TestTaskTracker_WaitTwiceReturnsSameError(t *testing.T) {
	// Arrange
	s := newTestScheduler()
	startWorkers(t, s, 2)
	ctx := context.Background()
	tracker := s.Async(ctx, 2, nil, func(context.Context, int, int, any) error {
		return errors.New("boom")
	}, nil, 0, false)

	// Act
	first := tracker.Wait(ctx)
	second := tracker.Wait(ctx)

	// Assert
	if first == nil || first != second {
		t.Errorf("Wait() = %v then %v, want the same non-nil error", first, second)
	}
	if tracker.Task() != nil {
		t.Error("Task() != nil after Wait")
	}
	if s.LiveTaskCount() != 0 {
		t.Errorf("LiveTaskCount() = %d, want 0", s.LiveTaskCount())
	}
}

// TestTaskTracker_CloneObservesError verifies every clone sees the error
// Given: A failing task and a clone of its tracker
// When: Both trackers are waited on from different goroutines
// Then: Both return the error and the task is released after the last wait
func TestTaskTracker_CloneObservesError(t *testing.T) {
	// Arrange
	s := newTestScheduler()
	startWorkers(t, s, 2)
	ctx := context.Background()
	release := make(chan struct{})
	tracker := s.Async(ctx, 1, nil, func(context.Context, int, int, any) error {
		<-release
		return errors.New("boom")
	}, nil, 0, false)
	clone := tracker.Clone()

	// Act
	errs := make(chan error, 2)
	go func() { errs <- tracker.Wait(ctx) }()
	go func() { errs <- clone.Wait(ctx) }()
	close(release)

	// Assert
	for range 2 {
		if err := <-errs; err == nil || err.Error() != "boom" {
			t.Errorf("Wait() = %v, want boom", err)
		}
	}
	if s.LiveTaskCount() != 0 {
		t.Errorf("LiveTaskCount() = %d, want 0", s.LiveTaskCount())
	}
}

// TestTaskTracker_WaitHelpsRunQueuedUnits verifies a waiter runs work itself
// Given: A scheduler with no workers and a queued 3-unit task
// When: The caller waits
// Then: The caller runs every unit under its guest thread index
func TestTaskTracker_WaitHelpsRunQueuedUnits(t *testing.T) {
	// Arrange
	s := newTestScheduler()
	s.SetWorkerCount(2)
	var threads []int
	tracker := s.Async(context.Background(), 3, nil, func(_ context.Context, _, thread int, _ any) error {
		threads = append(threads, thread)
		return nil
	}, nil, 0, false)

	// Act
	if err := tracker.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() = %v, want nil", err)
	}

	// Assert
	if len(threads) != 3 {
		t.Fatalf("units run = %d, want 3", len(threads))
	}
	for _, idx := range threads {
		if idx != 2 {
			t.Errorf("thread index = %d, want guest index 2", idx)
		}
	}
	if s.MaxThreadIndex(context.Background(), false) != 2 {
		t.Errorf("MaxThreadIndex(false) = %d, want 2", s.MaxThreadIndex(context.Background(), false))
	}
}

// TestTaskTracker_ReleaseWithoutWait verifies releasing drops the reference
// Given: A completed task whose tracker is never waited on
// When: Release is called
// Then: The task is released
func TestTaskTracker_ReleaseWithoutWait(t *testing.T) {
	s := newTestScheduler()
	tracker := s.Async(context.Background(), 1, nil, noopUnit, nil, 0, false)
	drain(s)

	tracker.Release()
	tracker.Release()

	if s.LiveTaskCount() != 0 {
		t.Errorf("LiveTaskCount() = %d, want 0", s.LiveTaskCount())
	}
}

// TestTaskTracker_DroppedTrackerIsCollected verifies GC cleanup of forgotten trackers
// Given: A completed task whose tracker is dropped without Wait or Release
// When: The garbage collector runs
// Then: The task is released
func TestTaskTracker_DroppedTrackerIsCollected(t *testing.T) {
	// Arrange
	s := newTestScheduler()
	func() {
		tracker := s.Async(context.Background(), 1, nil, noopUnit, nil, 0, false)
		drain(s)
		_ = tracker.Ready()
	}()

	// Act
	deadline := time.Now().Add(2 * time.Second)
	for s.LiveTaskCount() != 0 && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}

	// Assert
	if s.LiveTaskCount() != 0 {
		t.Errorf("LiveTaskCount() = %d after GC, want 0", s.LiveTaskCount())
	}
}
