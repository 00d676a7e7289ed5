// Command forkjoin drives the fork-join thread pool through reference
// workloads, with logging, Prometheus metrics and tracing wired from config.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/Swind/go-forkjoin/internal/config"
	"github.com/urfave/cli/v2"
)

const envKey = "env"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "forkjoin",
		Usage:     "Run fork-join workloads on a thread pool",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a config file"},
			&cli.IntFlag{Name: "threads", Aliases: []string{"t"}, Usage: "worker count, -1 for one per CPU"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Usage: "json or console"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address"},
			&cli.StringFlag{Name: "trace-output", Usage: "write spans to this file (enables tracing)"},
			&cli.BoolFlag{Name: "trace", Usage: "enable tracing"},
		},
		Commands: []*cli.Command{
			sumCommand(),
			gridCommand(),
			nestedCommand(),
		},
		Before: before,
		After:  after,
	}
}

func before(c *cli.Context) error {
	v, err := config.New(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	overrides := map[string]string{
		"threads":      "threads",
		"log-level":    "logging.level",
		"log-format":   "logging.format",
		"metrics-addr": "metrics.addr",
		"trace-output": "tracing.output",
		"trace":        "tracing.enabled",
	}
	for flag, key := range overrides {
		if c.IsSet(flag) {
			v.Set(key, c.Value(flag))
		}
	}
	if c.IsSet("trace-output") {
		v.Set("tracing.enabled", true)
	}

	cfg, err := config.Load(v)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	e, err := newEnv(c.Context, cfg, c.App.ErrWriter)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[envKey] = e
	return nil
}

func after(c *cli.Context) error {
	e, ok := c.App.Metadata[envKey].(*env)
	if !ok {
		return nil
	}
	delete(c.App.Metadata, envKey)
	return e.close(context.WithoutCancel(c.Context))
}

func envFrom(c *cli.Context) (*env, error) {
	e, ok := c.App.Metadata[envKey].(*env)
	if !ok {
		return nil, errors.New("forkjoin: environment not initialized")
	}
	return e, nil
}
