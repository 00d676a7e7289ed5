package forkjoin

import (
	"context"
	"sync/atomic"

	"golang.org/x/exp/constraints"
)

// RangeFn processes the elements [begin, end) of a claimed block.
type RangeFn[Int constraints.Integer] func(ctx context.Context, begin, end Int, unitIndex, threadIndex int) error

// EpilogueFn runs once after every unit of a launch has finished.
type EpilogueFn func(ctx context.Context, numUnits, threadIndex int) error

type rangePayload[Int constraints.Integer] struct {
	r        BlockedRange[Int]
	next     atomic.Uint32
	fn       RangeFn[Int]
	epilogue EpilogueFn
}

// rangeUnit claims blocks until the range is exhausted or fn fails.
func rangeUnit[Int constraints.Integer](ctx context.Context, unitIndex, threadIndex int, data any) error {
	p := data.(*rangePayload[Int])
	lb := NewAtomicLoadBalance(&p.next, p.r)
	for lb.Advance() {
		if err := p.fn(ctx, lb.Begin, lb.End, unitIndex, threadIndex); err != nil {
			return err
		}
	}
	return nil
}

// rangeEpilogue runs the user epilogue and drops the payload's references.
func rangeEpilogue[Int constraints.Integer](ctx context.Context, numUnits, threadIndex int, data any) error {
	p := data.(*rangePayload[Int])
	epilogue := p.epilogue
	p.fn, p.epilogue = nil, nil
	if epilogue == nil {
		return nil
	}
	return epilogue(ctx, numUnits, threadIndex)
}

// ParallelFor calls fn for every block of r, spreading the blocks over the
// units of one launch, and returns once all blocks are processed. Blocks are
// claimed dynamically, so the number of units (WithThreads, default KAll) is
// independent of the number of blocks.
//
// Call it with the ctx a unit received to nest it inside that unit's task.
func ParallelFor[Int constraints.Integer](ctx context.Context, r BlockedRange[Int], fn RangeFn[Int], opts ...Option) error {
	o := applyOptions(opts)
	p := &rangePayload[Int]{r: r, fn: fn}
	return o.pool.Parallelize(ctx, o.threads, p, rangeUnit[Int], nil)
}

// ParallelForAsync is the non-blocking form of ParallelFor. The epilogue, if
// not nil, runs once after every block was processed and before the tracker
// becomes ready.
func ParallelForAsync[Int constraints.Integer](ctx context.Context, r BlockedRange[Int], fn RangeFn[Int], epilogue EpilogueFn, opts ...Option) *TaskTracker {
	o := applyOptions(opts)
	p := &rangePayload[Int]{r: r, fn: fn, epilogue: epilogue}
	return o.pool.ParallelizeAsync(ctx, o.threads, p, rangeUnit[Int], rangeEpilogue[Int])
}

// EstimateThreads returns how many units a workload of workloadSize elements
// is worth splitting into when each unit should get at least minUnitSize
// elements, capped to the number of workers of pool (Singleton if nil).
func EstimateThreads(workloadSize, minUnitSize int, pool *ThreadPool) int {
	if pool == nil {
		pool = Singleton()
	}
	if workloadSize <= 0 {
		return 0
	}
	minUnitSize = max(minUnitSize, 1)
	chunks := (workloadSize + minUnitSize - 1) / minUnitSize
	return min(chunks, pool.Size())
}
