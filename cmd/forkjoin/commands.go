package main

import (
	"context"
	"fmt"
	"time"

	forkjoin "github.com/Swind/go-forkjoin"
	"github.com/Swind/go-forkjoin/core"
	"github.com/Swind/go-forkjoin/internal/workload"
	"github.com/Swind/go-forkjoin/progress"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func sumCommand() *cli.Command {
	return &cli.Command{
		Name:  "sum",
		Usage: "Sum of squares computed serially and in parallel",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "n", Usage: "number of elements"},
			&cli.IntFlag{Name: "block-size", Aliases: []string{"b"}, Usage: "elements per block"},
		},
		Action: sumAction,
	}
}

func sumAction(c *cli.Context) error {
	e, err := envFrom(c)
	if err != nil {
		return err
	}
	n := intOr(c, "n", e.cfg.Sum.N)
	blockSize := intOr(c, "block-size", e.cfg.Sum.BlockSize)
	if n < 0 || blockSize < 1 {
		return cli.Exit("n must be non-negative and block-size positive", 1)
	}

	values := workload.Values(n)
	var serial, parallel int64
	start := time.Now()
	err = e.traced(c.Context, "sum", func(ctx context.Context) error {
		// The serial pass runs on a worker while the caller drives the parallel one.
		tracker := forkjoin.DoAsync(ctx, func(ctx context.Context) error {
			s, err := workload.SumOfSquares(ctx, e.pool, values, blockSize, 0)
			serial = s
			return err
		}, forkjoin.WithPool(e.pool))

		p, err := workload.SumOfSquares(ctx, e.pool, values, blockSize, forkjoin.KAll)
		if werr := tracker.Wait(ctx); err == nil {
			err = werr
		}
		parallel = p
		return err
	}, attribute.Int("n", n), attribute.Int("block_size", blockSize))
	if err != nil {
		return cli.Exit(fmt.Sprintf("sum failed: %v", err), 1)
	}

	fmt.Fprintf(c.App.Writer, "sum of squares n=%d block=%d workers=%d\n", n, blockSize, e.pool.Size())
	fmt.Fprintf(c.App.Writer, "  serial:   %d\n", serial)
	fmt.Fprintf(c.App.Writer, "  parallel: %d\n", parallel)
	fmt.Fprintf(c.App.Writer, "  match: %t (%s)\n", serial == parallel, time.Since(start).Round(time.Microsecond))
	return nil
}

func gridCommand() *cli.Command {
	return &cli.Command{
		Name:  "grid",
		Usage: "Nested reduction of a grid of ones",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "width", Usage: "grid width"},
			&cli.IntFlag{Name: "height", Usage: "grid height"},
		},
		Action: gridAction,
	}
}

func gridAction(c *cli.Context) error {
	e, err := envFrom(c)
	if err != nil {
		return err
	}
	width := intOr(c, "width", e.cfg.Grid.Width)
	height := intOr(c, "height", e.cfg.Grid.Height)
	if width < 0 || height < 0 {
		return cli.Exit("width and height must be non-negative", 1)
	}

	p := progress.New(1)
	stop := context.AfterFunc(c.Context, p.Cancel)
	defer stop()

	var total int64
	start := time.Now()
	err = e.traced(c.Context, "grid", func(ctx context.Context) error {
		var err error
		total, err = workload.GridSum(ctx, e.pool, workload.NewGrid(width, height, 1), forkjoin.KAll, p)
		return err
	}, attribute.Int("width", width), attribute.Int("height", height))
	if err != nil {
		return cli.Exit(fmt.Sprintf("grid failed: %v", err), 1)
	}

	want := int64(width) * int64(height)
	fmt.Fprintf(c.App.Writer, "grid %dx%d: total=%d expected=%d ok=%t (%s)\n",
		width, height, total, want, total == want, time.Since(start).Round(time.Microsecond))
	return nil
}

func nestedCommand() *cli.Command {
	return &cli.Command{
		Name:  "nested",
		Usage: "Launch parallel loops nested inside each other and count the leaves",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "depth", Usage: "nesting depth"},
			&cli.IntFlag{Name: "fanout", Usage: "units per level"},
		},
		Action: nestedAction,
	}
}

func nestedAction(c *cli.Context) error {
	e, err := envFrom(c)
	if err != nil {
		return err
	}
	depth := intOr(c, "depth", e.cfg.Nested.Depth)
	fanout := intOr(c, "fanout", e.cfg.Nested.Fanout)
	if depth < 0 || fanout < 1 {
		return cli.Exit("depth must be non-negative and fanout positive", 1)
	}

	var report workload.NestReport
	err = e.traced(c.Context, "nested", func(ctx context.Context) error {
		var err error
		report, err = workload.Nest(ctx, e.pool, depth, fanout)
		return err
	}, attribute.Int("depth", depth), attribute.Int("fanout", fanout))
	if err != nil {
		return cli.Exit(fmt.Sprintf("nested failed: %v", err), 1)
	}

	fmt.Fprintf(c.App.Writer, "nested depth=%d fanout=%d: leaves=%d levels=%v live=%d\n",
		depth, fanout, report.Leaves, report.LevelsSeen, report.LiveAfterRun)
	return nil
}

// traced runs fn inside a span named name and logs its outcome.
func (e *env) traced(ctx context.Context, name string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := e.tracing.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	span.SetAttributes(attribute.Int("workers", e.pool.Size()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("Workload failed", core.F("workload", name), core.F("error", err))
		return err
	}
	span.SetStatus(codes.Ok, "")
	e.logger.Info("Workload finished",
		core.F("workload", name), core.F("duration", time.Since(start)))
	return nil
}

func intOr(c *cli.Context, name string, fallback int) int {
	if c.IsSet(name) {
		return c.Int(name)
	}
	return fallback
}
