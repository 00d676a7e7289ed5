// Package workload holds the reference computations driven by the forkjoin
// command: a flat reduction, a nested grid reduction and a nesting probe.
package workload

import (
	"context"
	"slices"
	"sync"

	forkjoin "github.com/Swind/go-forkjoin"
	"github.com/Swind/go-forkjoin/progress"
)

// Values returns n deterministic inputs in [-512, 512).
func Values(n int) []int64 {
	values := make([]int64, max(n, 0))
	for i := range values {
		values[i] = int64(i%1024) - 512
	}
	return values
}

// unitCount is the number of units a launch with threads produces on pool.
func unitCount(pool *forkjoin.ThreadPool, threads int) int {
	if threads == forkjoin.KAll {
		threads = pool.Size()
	}
	return max(threads, 1)
}

// SumOfSquares adds v*v over values in blocks of blockSize, split into
// threads units. The result does not depend on threads.
func SumOfSquares(ctx context.Context, pool *forkjoin.ThreadPool, values []int64, blockSize, threads int) (int64, error) {
	partial := make([]int64, unitCount(pool, threads))
	var total int64

	tracker := forkjoin.ParallelForAsync(ctx, forkjoin.NewBlockedRange(0, len(values), blockSize),
		func(_ context.Context, begin, end, unit, _ int) error {
			var s int64
			for _, v := range values[begin:end] {
				s += v * v
			}
			partial[unit] += s
			return nil
		},
		func(_ context.Context, numUnits, _ int) error {
			for _, s := range partial[:numUnits] {
				total += s
			}
			return nil
		}, forkjoin.WithThreads(threads), forkjoin.WithPool(pool))

	if err := tracker.Wait(ctx); err != nil {
		return 0, err
	}
	return total, nil
}

// Grid is a row-major matrix.
type Grid [][]int64

// NewGrid returns a width x height grid filled with fill.
func NewGrid(width, height int, fill int64) Grid {
	g := make(Grid, height)
	for y := range g {
		g[y] = make([]int64, width)
		for x := range g[y] {
			g[y][x] = fill
		}
	}
	return g
}

// GridSum reduces g with an outer loop over rows and an inner parallel loop
// over each row. Per-unit partials are combined in the epilogue. p, which may
// be nil, advances by one step per row.
func GridSum(ctx context.Context, pool *forkjoin.ThreadPool, g Grid, threads int, p *progress.AtomicProgress) (int64, error) {
	partial := make([]int64, unitCount(pool, threads))
	var total int64
	p.SetNumSteps(len(g))

	tracker := forkjoin.ParallelForAsync(ctx, forkjoin.NewBlockedRange(0, len(g), 1),
		func(ctx context.Context, begin, end, unit, _ int) error {
			for y := begin; y < end; y++ {
				if p.Canceled() {
					return context.Canceled
				}
				s, err := rowSum(ctx, pool, g[y])
				if err != nil {
					return err
				}
				partial[unit] += s
				p.Inc()
			}
			return nil
		},
		func(_ context.Context, numUnits, _ int) error {
			for _, s := range partial[:numUnits] {
				total += s
			}
			return nil
		}, forkjoin.WithThreads(threads), forkjoin.WithPool(pool))

	if err := tracker.Wait(ctx); err != nil {
		return 0, err
	}
	p.SetDone()
	return total, nil
}

func rowSum(ctx context.Context, pool *forkjoin.ThreadPool, row []int64) (int64, error) {
	const block = 64
	sums := make([]int64, (len(row)+block-1)/block)
	err := forkjoin.ParallelFor(ctx, forkjoin.NewBlockedRange(0, len(row), block),
		func(_ context.Context, begin, end, _, _ int) error {
			var s int64
			for _, v := range row[begin:end] {
				s += v
			}
			sums[begin/block] = s
			return nil
		}, forkjoin.WithPool(pool))
	if err != nil {
		return 0, err
	}

	var total int64
	for _, s := range sums {
		total += s
	}
	return total, nil
}

// NestReport summarizes a Nest run.
type NestReport struct {
	Leaves       int64
	MaxNesting   int
	LevelsSeen   []int
	LiveAfterRun int
}

// Nest launches fanout units at every level down to depth and counts the
// leaves, which total fanout^depth.
func Nest(ctx context.Context, pool *forkjoin.ThreadPool, depth, fanout int) (NestReport, error) {
	var (
		mu     sync.Mutex
		leaves int64
		levels = make(map[int]struct{})
	)

	var visit func(ctx context.Context, depth int) error
	visit = func(ctx context.Context, depth int) error {
		if depth == 0 {
			mu.Lock()
			leaves++
			mu.Unlock()
			return nil
		}
		return forkjoin.ParallelFor(ctx, forkjoin.NewBlockedRange(0, fanout, 1),
			func(ctx context.Context, begin, end, _, _ int) error {
				mu.Lock()
				levels[forkjoin.NestingLevel(ctx)] = struct{}{}
				mu.Unlock()
				for range end - begin {
					if err := visit(ctx, depth-1); err != nil {
						return err
					}
				}
				return nil
			}, forkjoin.WithThreads(fanout), forkjoin.WithPool(pool))
	}

	if err := visit(ctx, depth); err != nil {
		return NestReport{}, err
	}

	report := NestReport{Leaves: leaves, LiveAfterRun: pool.Stats().LiveTasks}
	for level := range levels {
		report.LevelsSeen = append(report.LevelsSeen, level)
		report.MaxNesting = max(report.MaxNesting, level)
	}
	slices.Sort(report.LevelsSeen)
	return report, nil
}
