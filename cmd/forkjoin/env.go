package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	forkjoin "github.com/Swind/go-forkjoin"
	"github.com/Swind/go-forkjoin/core"
	"github.com/Swind/go-forkjoin/internal/config"
	fjprom "github.com/Swind/go-forkjoin/observability/prometheus"
	"github.com/Swind/go-forkjoin/observability/zaplog"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/automaxprocs/maxprocs"
)

// env is everything a command needs, built once per run from the config.
type env struct {
	cfg      *config.Config
	logger   *zaplog.Logger
	pool     *forkjoin.ThreadPool
	registry *prom.Registry
	poller   *fjprom.SnapshotPoller
	tracing  *tracing
	server   *http.Server
	undo     func()
}

func newEnv(ctx context.Context, cfg *config.Config, errOut io.Writer) (*env, error) {
	level, err := core.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logger, err := zaplog.NewProduction(level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, logger: logger}

	undo, err := maxprocs.Set(maxprocs.Logger(logger.Zap().Sugar().Debugf))
	if err != nil {
		logger.Warn("Failed to align GOMAXPROCS with the CPU quota", core.F("error", err))
	}
	e.undo = undo

	e.registry = prom.NewRegistry()
	e.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	exporter, err := fjprom.NewMetricsExporter(cfg.Metrics.Namespace, e.registry, fjprom.ExporterOptions{})
	if err != nil {
		e.close(ctx)
		return nil, fmt.Errorf("metrics exporter: %w", err)
	}

	e.pool = forkjoin.NewThreadPool("forkjoin", &core.SchedulerConfig{
		Logger:          logger,
		PanicHandler:    &core.DefaultPanicHandler{Logger: logger},
		Metrics:         exporter,
		HistoryCapacity: cfg.History.Capacity,
	})
	e.pool.Start(cfg.Threads)
	logger.Info("Thread pool started",
		core.F("pool", e.pool.ID()), core.F("workers", e.pool.Size()))

	if e.poller, err = fjprom.NewSnapshotPoller(e.registry, cfg.Metrics.PollInterval); err != nil {
		e.close(ctx)
		return nil, fmt.Errorf("snapshot poller: %w", err)
	}
	e.poller.AddPool(e.pool.ID(), e.pool)
	e.poller.Start(ctx)

	if cfg.Metrics.Addr != "" {
		if err := e.serveMetrics(cfg.Metrics.Addr); err != nil {
			e.close(ctx)
			return nil, err
		}
	}

	if e.tracing, err = newTracing(cfg.Tracing.Enabled, cfg.Tracing.Output, errOut); err != nil {
		e.close(ctx)
		return nil, fmt.Errorf("tracing: %w", err)
	}
	return e, nil
}

func (e *env) metricsHandler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}

func (e *env) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.metricsHandler())
	e.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("Metrics server stopped", core.F("error", err))
		}
	}()
	e.logger.Info("Serving metrics", core.F("addr", ln.Addr().String()))
	return nil
}

// close releases resources in reverse order of creation. It tolerates a
// partially built env.
func (e *env) close(ctx context.Context) error {
	var errs []error
	if e.tracing != nil {
		errs = append(errs, e.tracing.close(ctx))
	}
	if e.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		errs = append(errs, e.server.Shutdown(shutdownCtx))
		cancel()
	}
	e.poller.Stop()
	if e.pool != nil {
		for _, rec := range e.pool.RecentTasks(5) {
			e.logger.Debug("Recent task",
				core.F("name", rec.Name), core.F("units", rec.NumUnits),
				core.F("nesting", rec.NestingLevel), core.F("duration", rec.Duration),
				core.F("failed", rec.Failed))
		}
		e.pool.Stop()
	}
	if e.undo != nil {
		e.undo()
	}
	_ = e.logger.Sync()
	return errors.Join(errs...)
}
