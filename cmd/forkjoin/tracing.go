package main

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	serviceName    = "forkjoin"
	serviceVersion = "0.1.0"
)

// tracing owns the tracer provider of one command run.
type tracing struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	file     *os.File
}

// newTracing returns a no-op tracer unless enabled. Spans are written to
// output, or to fallback when output is empty.
func newTracing(enabled bool, output string, fallback io.Writer) (*tracing, error) {
	if !enabled {
		return &tracing{tracer: noop.NewTracerProvider().Tracer(serviceName)}, nil
	}

	t := &tracing{}
	w := fallback
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return nil, err
		}
		t.file = f
		w = f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		t.close(context.Background())
		return nil, err
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		t.close(context.Background())
		return nil, err
	}

	t.provider = sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	t.tracer = t.provider.Tracer(serviceName)
	return t, nil
}

func (t *tracing) close(ctx context.Context) error {
	var err error
	if t.provider != nil {
		err = t.provider.Shutdown(ctx)
	}
	if t.file != nil {
		if cerr := t.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
