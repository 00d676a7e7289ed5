package forkjoin

import (
	"context"

	"github.com/Swind/go-forkjoin/progress"
)

type asyncPayload struct {
	fn func(ctx context.Context) error
}

func asyncUnit(ctx context.Context, _, _ int, data any) error {
	p := data.(*asyncPayload)
	return p.fn(ctx)
}

func asyncEpilogue(_ context.Context, _, _ int, data any) error {
	p := data.(*asyncPayload)
	p.fn = nil
	return nil
}

// DoAsync runs fn once as a single-unit task and returns its tracker.
// WithThreads has no effect.
func DoAsync(ctx context.Context, fn func(ctx context.Context) error, opts ...Option) *TaskTracker {
	o := applyOptions(opts)
	return o.pool.ParallelizeAsync(ctx, 1, &asyncPayload{fn: fn}, asyncUnit, asyncEpilogue)
}

// DoAsyncWithProgress runs fn once like DoAsync, handing it p to report
// progress on and to check for cancellation. p is set done when fn returns
// without error.
func DoAsyncWithProgress(ctx context.Context, fn func(ctx context.Context, p *progress.AtomicProgress) error, p *progress.AtomicProgress, opts ...Option) *TaskTracker {
	o := applyOptions(opts)
	payload := &asyncPayload{fn: func(ctx context.Context) error {
		if err := fn(ctx, p); err != nil {
			return err
		}
		p.SetDone()
		return nil
	}}
	return o.pool.ParallelizeAsync(ctx, 1, payload, asyncUnit, asyncEpilogue)
}
