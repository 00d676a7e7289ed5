package core

import (
	"context"
	"slices"
)

// Thread indices are unique within a scheduler. Workers own [0, workers).
// Any other goroutine entering the scheduler is a guest and borrows an index
// >= workers for as long as it stays inside (a blocking launch or a Wait).
// Returned guest indices are recycled, lowest first.

// SetWorkerCount reserves [0, n) for worker goroutines. A positive n lets
// launches queue again after PostShutdown.
func (s *Scheduler) SetWorkerCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workers = n
	if n > 0 {
		s.shutdown = false
	}
	if s.guestNext < n {
		s.guestNext = n
	}
	s.guestFree = slices.DeleteFunc(s.guestFree, func(i int) bool { return i < n })
}

// EnterThread returns a context holding a thread index of s. If ctx already
// holds one it is reused and leave is a no-op; otherwise a guest index is
// borrowed and leave gives it back.
func (s *Scheduler) EnterThread(ctx context.Context) (_ context.Context, threadIndex int, leave func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if idx, ok := threadIndexFor(ctx, s); ok {
		return ctx, idx, func() {}
	}

	idx := s.acquireGuestIndex()
	return withThread(ctx, s, idx), idx, func() { s.releaseGuestIndex(idx) }
}

// WorkerContext returns the context a worker with the given index runs with.
func (s *Scheduler) WorkerContext(ctx context.Context, threadIndex int) context.Context {
	return withThread(ctx, s, threadIndex)
}

// MaxThreadIndex returns the largest thread index handed out so far. With
// includeCaller it accounts for the caller entering as a guest right now,
// unless ctx already carries a thread index of s. Use it to size per-thread
// resources.
func (s *Scheduler) MaxThreadIndex(ctx context.Context, includeCaller bool) int {
	if includeCaller && ctx != nil {
		if _, ok := threadIndexFor(ctx, s); ok {
			includeCaller = false
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if includeCaller && len(s.guestFree) == 0 {
		return s.guestNext
	}
	return s.guestNext - 1
}

func (s *Scheduler) acquireGuestIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.guestFree); n > 0 {
		idx := s.guestFree[0]
		s.guestFree = s.guestFree[1:]
		return idx
	}
	idx := s.guestNext
	s.guestNext++
	return idx
}

func (s *Scheduler) releaseGuestIndex(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx < s.workers {
		return
	}
	i, _ := slices.BinarySearch(s.guestFree, idx)
	s.guestFree = slices.Insert(s.guestFree, i, idx)
}
