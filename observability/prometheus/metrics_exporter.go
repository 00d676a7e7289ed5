package prometheus

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Swind/go-forkjoin/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
	UnitBuckets     []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	tasksLaunchedTotal  *prom.CounterVec
	taskUnits           *prom.HistogramVec
	taskDurationSeconds *prom.HistogramVec
	tasksFailedTotal    *prom.CounterVec
	queueDepth          *prom.GaugeVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "forkjoin"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	durationBuckets := opts.DurationBuckets
	if len(durationBuckets) == 0 {
		durationBuckets = prom.DefBuckets
	}
	unitBuckets := opts.UnitBuckets
	if len(unitBuckets) == 0 {
		unitBuckets = prom.ExponentialBuckets(1, 2, 10)
	}

	launchedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_launched_total",
		Help:      "Total number of tasks handed to the scheduler.",
	}, []string{"pool", "nested"})
	unitsVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_units",
		Help:      "Number of work units per launched task.",
		Buckets:   unitBuckets,
	}, []string{"pool"})
	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Time from launch to epilogue completion in seconds.",
		Buckets:   durationBuckets,
	}, []string{"pool"})
	failedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_failed_total",
		Help:      "Total number of tasks that captured an error.",
	}, []string{"pool", "panicked"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Queued work units after the latest launch.",
	}, []string{"pool"})

	var err error
	if launchedVec, err = registerCollector(reg, launchedVec); err != nil {
		return nil, err
	}
	if unitsVec, err = registerCollector(reg, unitsVec); err != nil {
		return nil, err
	}
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if failedVec, err = registerCollector(reg, failedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		tasksLaunchedTotal:  launchedVec,
		taskUnits:           unitsVec,
		taskDurationSeconds: durationVec,
		tasksFailedTotal:    failedVec,
		queueDepth:          queueDepthVec,
	}, nil
}

// RecordTaskLaunched records a task launch and its unit count.
func (m *MetricsExporter) RecordTaskLaunched(poolID string, numUnits int, nested bool) {
	if m == nil {
		return
	}
	pool := normalizeLabel(poolID, "unknown")
	m.tasksLaunchedTotal.WithLabelValues(pool, strconv.FormatBool(nested)).Inc()
	m.taskUnits.WithLabelValues(pool).Observe(float64(numUnits))
}

// RecordTaskDuration records task execution duration.
func (m *MetricsExporter) RecordTaskDuration(poolID string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(poolID, "unknown")).Observe(duration.Seconds())
}

// RecordTaskFailed records a failed task.
func (m *MetricsExporter) RecordTaskFailed(poolID string, panicked bool) {
	if m == nil {
		return
	}
	m.tasksFailedTotal.WithLabelValues(normalizeLabel(poolID, "unknown"), strconv.FormatBool(panicked)).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(poolID string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(poolID, "unknown")).Set(float64(depth))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
